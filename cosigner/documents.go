package cosigner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/uuid/v5"
)

// FileStore keeps signing documents under a root directory, addressed by
// slash separated references relative to the root.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	err := os.MkdirAll(root, 0700)
	if err != nil {
		return nil, err
	}
	return &FileStore{root: root}, nil
}

func (fs *FileStore) Path(ref string) string {
	return filepath.Join(fs.root, filepath.FromSlash(ref))
}

func (fs *FileStore) Read(ref string) ([]byte, error) {
	p, err := fs.localPath(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (fs *FileStore) Exists(ref string) (bool, error) {
	p, err := fs.localPath(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (fs *FileStore) Remove(ref string) error {
	p, err := fs.localPath(ref)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (fs *FileStore) Rename(from, to string) error {
	src, err := fs.localPath(from)
	if err != nil {
		return err
	}
	dst, err := fs.localPath(to)
	if err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// Write replaces the document atomically by renaming a synced temporary file
// in the same directory.
func (fs *FileStore) Write(ref string, data []byte) error {
	p, err := fs.localPath(ref)
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(p), 0700)
	if err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(p), fmt.Sprintf(".%s.tmp", uuid.Must(uuid.NewV4())))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	_, err = f.Write(data)
	if err != nil {
		f.Close()
		return err
	}
	err = f.Sync()
	if err != nil {
		f.Close()
		return err
	}
	err = f.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (fs *FileStore) localPath(ref string) (string, error) {
	local := filepath.FromSlash(ref)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("invalid document reference %s", ref)
	}
	return filepath.Join(fs.root, local), nil
}
