package cosigner

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/gofrs/uuid/v5"
	"github.com/pkg/errors"
)

const documentDateLayout = "2006-01-02"

// UploadTransaction stores the document under the directory of the current
// day and registers it. Uploading the same file name again on the same day
// replaces the earlier record and clears its signatures, unless that record
// was already pushed. Nothing changes when registration fails.
func (node *Node) UploadTransaction(ctx context.Context, name string, data []byte, uploader string) (*store.Record, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return nil, errors.Wrapf(common.ErrValidation, "invalid file name %s", name)
	}
	ref := path.Join(now().Format(documentDateLayout), name)
	return node.registerTransaction(ctx, ref, data, uploader, true)
}

func (node *Node) registerTransaction(ctx context.Context, ref string, data []byte, uploader string, write bool) (*store.Record, error) {
	doc, mc, err := node.registry.parseAndMatch(data)
	if err != nil {
		logger.Printf("node.registerTransaction(%s) => %v", ref, err)
		return nil, err
	}
	hash, err := node.hasher(doc.Transaction)
	if err != nil {
		return nil, errors.Wrap(common.ErrValidation, err.Error())
	}

	unlock := node.locks.Lock(ref)
	defer unlock()

	current, err := node.store.ReadRecordBySource(ctx, ref)
	if err != nil {
		return nil, errors.Wrap(common.ErrPersistence, err.Error())
	}
	if current != nil && current.State != store.RecordStateUploaded {
		return nil, errors.Wrapf(common.ErrPreconditionFailed, "transaction %s already finalized (%s)", current.Id, current.StateName())
	}
	old, err := node.store.ReadRecordByHash(ctx, hash)
	if err != nil {
		return nil, errors.Wrap(common.ErrPersistence, err.Error())
	}
	if old != nil && old.SourceReference != ref {
		return nil, errors.Wrapf(common.ErrDuplicate, "transaction %s exists as %s (%s)", hash, old.Id, old.SourceReference)
	}

	file := ref
	if write {
		file = stagingReference(ref)
		err = node.documents.Write(file, data)
		if err != nil {
			return nil, errors.Wrap(common.ErrPersistence, err.Error())
		}
		defer node.documents.Remove(file)
	}

	r := &store.Record{
		TxHash:          hash,
		SourceReference: ref,
		Config:          mc,
		MultisigType:    node.multisigType(mc.CodeHash),
		UploadedBy:      uploader,
		UploadedAt:      now(),
	}
	if node.toolbox != nil {
		r.Description, r.Digest, err = node.describeTransaction(ctx, file, mc)
		if err != nil {
			return nil, err
		}
	}

	var previous []byte
	if write {
		previous, err = node.replaceDocument(ref, file)
		if err != nil {
			return nil, errors.Wrap(common.ErrPersistence, err.Error())
		}
	}
	r, err = node.store.InsertOrReplaceRecord(ctx, r)
	if err != nil {
		if write {
			node.restoreDocument(ref, previous)
		}
		return nil, err
	}
	logger.Printf("node.registerTransaction(%s, %s) => %s %s", ref, uploader, r.Id, r.TxHash)
	return r, nil
}

// replaceDocument moves the staged document over ref and returns the bytes
// it replaced, nil if ref did not exist.
func (node *Node) replaceDocument(ref, staged string) ([]byte, error) {
	existed, err := node.documents.Exists(ref)
	if err != nil {
		return nil, err
	}
	var previous []byte
	if existed {
		previous, err = node.documents.Read(ref)
		if err != nil {
			return nil, err
		}
	}
	return previous, node.documents.Rename(staged, ref)
}

func (node *Node) restoreDocument(ref string, previous []byte) {
	var err error
	if previous == nil {
		err = node.documents.Remove(ref)
	} else {
		err = node.documents.Write(ref, previous)
	}
	if err != nil {
		logger.Printf("node.restoreDocument(%s) => %v", ref, err)
	}
}

func stagingReference(ref string) string {
	return path.Join(path.Dir(ref), fmt.Sprintf(".%s.upload", uuid.Must(uuid.NewV4())))
}

func (node *Node) describeTransaction(ctx context.Context, ref string, mc *store.MultisigConfig) (string, string, error) {
	ctx, cancel := node.withCommandTimeout(ctx)
	defer cancel()

	file := node.documents.Path(ref)
	description, err := node.toolbox.Description(ctx, node.conf.Network, file)
	if err != nil {
		return "", "", errors.Wrapf(common.ErrExternalTool, "description %s %v", ref, err)
	}
	address, err := node.MultisigAddress(mc)
	if err != nil {
		return "", "", errors.Wrap(common.ErrValidation, err.Error())
	}
	digest, err := node.toolbox.Digest(ctx, address, file)
	if err != nil {
		return "", "", errors.Wrapf(common.ErrExternalTool, "digest %s %v", ref, err)
	}
	return strings.TrimSpace(description), digest, nil
}
