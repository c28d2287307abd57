package common

import (
	"encoding/hex"
	"encoding/json"
	"os/user"
	"path/filepath"
	"strings"
)

func MarshalJSONOrPanic(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func ExpandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		panic(err)
	}
	return filepath.Join(usr.HomeDir, path[2:])
}

// NormalizeHex lower cases a 0x prefixed hex string, returning false if
// s is not valid hex.
func NormalizeHex(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		return "", false
	}
	_, err := hex.DecodeString(s[2:])
	if err != nil {
		return "", false
	}
	return s, true
}
