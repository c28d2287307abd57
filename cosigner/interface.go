package cosigner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
)

const (
	DefaultListenPort     = 7090
	DefaultCommandTimeout = 60
)

type User struct {
	Name       string `toml:"name" json:"name"`
	PubKeyHash string `toml:"pub-key-hash" json:"pubKeyHash"`
}

type ScriptType struct {
	Name   string `toml:"name"`
	TypeId string `toml:"type-id"`
}

type Configuration struct {
	StoreDir         string                  `toml:"store-dir"`
	TransactionsDir  string                  `toml:"transactions-dir"`
	Listen           int                     `toml:"listen"`
	Network          string                  `toml:"network"`
	CkbRPC           string                  `toml:"ckb-rpc"`
	CkbCliBin        string                  `toml:"ckb-cli-bin"`
	ToolboxCliBin    string                  `toml:"toolbox-cli-bin"`
	CommandTimeout   int64                   `toml:"command-timeout"`
	MultisigCodeHash string                  `toml:"multisig-code-hash"`
	Users            []*User                 `toml:"users"`
	Scripts          []*ScriptType           `toml:"scripts"`
	Multisig         []*store.MultisigConfig `toml:"multisig"`
}

func (c *Configuration) commandTimeout() time.Duration {
	if c.CommandTimeout <= 0 {
		return DefaultCommandTimeout * time.Second
	}
	return time.Duration(c.CommandTimeout) * time.Second
}

func (c *Configuration) listenPort() int {
	if c.Listen <= 0 {
		return DefaultListenPort
	}
	return c.Listen
}

// TransactionHasher computes the canonical hash of the transaction body of a
// signing document.
type TransactionHasher func(tx json.RawMessage) (string, error)

type DocumentStore interface {
	Read(ref string) ([]byte, error)
	Write(ref string, data []byte) error
	Exists(ref string) (bool, error)
	Remove(ref string) error
	Rename(from, to string) error
	Path(ref string) string
}

// Toolbox produces the human readable description and the signing digest of a
// document, and builds plain transfers.
type Toolbox interface {
	Description(ctx context.Context, network, file string) (string, error)
	Digest(ctx context.Context, address, file string) (string, error)
	Transfer(ctx context.Context, from, to, value, fee, file string) error
}

// Submitter broadcasts a fully signed document to the network.
type Submitter interface {
	SendTransaction(ctx context.Context, file string) (string, error)
}

type ChainQuerier interface {
	TransactionStatus(ctx context.Context, hash string) (*ckb.RPCTransactionStatus, error)
	BlockTime(ctx context.Context, blockHash string) (time.Time, error)
}
