package cosigner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/pkg/errors"
)

const defaultCkbCliBin = "ckb-cli"

type Node struct {
	conf     *Configuration
	store    *store.SQLite3Store
	registry *Registry
	locks    *recordLocks
	transfer *sync.Mutex
	users    map[string]*User
	scripts  map[string]string

	documents DocumentStore
	hasher    TransactionHasher
	toolbox   Toolbox
	submitter Submitter
	chain     ChainQuerier
}

func NewNode(store *store.SQLite3Store, conf *Configuration) (*Node, error) {
	err := ckb.CheckNetwork(conf.Network)
	if err != nil {
		return nil, errors.Wrap(common.ErrValidation, err.Error())
	}
	registry, err := NewRegistry(conf.Multisig, conf.MultisigCodeHash)
	if err != nil {
		return nil, err
	}
	documents, err := NewFileStore(conf.TransactionsDir)
	if err != nil {
		return nil, err
	}

	node := &Node{
		conf:      conf,
		store:     store,
		registry:  registry,
		locks:     newRecordLocks(),
		transfer:  new(sync.Mutex),
		users:     make(map[string]*User),
		scripts:   make(map[string]string),
		documents: documents,
		hasher:    ckb.HashTransaction,
		chain:     &ckb.RPCClient{URL: conf.CkbRPC},
	}
	bin := conf.CkbCliBin
	if bin == "" {
		bin = defaultCkbCliBin
	}
	node.submitter = &ckb.CkbCli{Bin: bin, RPC: conf.CkbRPC}
	if conf.ToolboxCliBin != "" {
		node.toolbox = &ckb.Toolbox{Bin: conf.ToolboxCliBin}
	}

	for _, u := range conf.Users {
		hash, valid := common.NormalizeHex(u.PubKeyHash)
		if !valid || len(hash) != 42 || u.Name == "" {
			return nil, errors.Wrapf(common.ErrValidation, "user %s %s", u.Name, u.PubKeyHash)
		}
		node.users[hash] = &User{Name: u.Name, PubKeyHash: hash}
	}
	for _, s := range conf.Scripts {
		id, valid := common.NormalizeHex(s.TypeId)
		if !valid || len(id) != 66 {
			return nil, errors.Wrapf(common.ErrValidation, "script %s %s", s.Name, s.TypeId)
		}
		node.scripts[id] = s.Name
	}

	logger.Printf("NewNode(%s, %s) => %d multisig %d users", conf.Network, registry.CodeHash(), len(registry.List()), len(node.users))
	return node, nil
}

func (node *Node) Registry() *Registry {
	return node.registry
}

func (node *Node) Network() string {
	return node.conf.Network
}

func (node *Node) multisigType(codeHash string) string {
	name := node.scripts[strings.ToLower(codeHash)]
	if name == "" {
		return store.MultisigTypeUnknown
	}
	return name
}

func (node *Node) MultisigAddress(mc *store.MultisigConfig) (string, error) {
	return ckb.EncodeAddress(mc.Script(), node.conf.Network)
}

func (node *Node) ListRecords(ctx context.Context) ([]*store.Record, error) {
	return node.store.ListRecords(ctx)
}

func (node *Node) ReadRecord(ctx context.Context, id string) (*store.Record, error) {
	r, err := node.store.ReadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.Wrapf(common.ErrNotFound, "transaction %s", id)
	}
	return r, nil
}

func (node *Node) withCommandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, node.conf.commandTimeout())
}

func now() time.Time {
	return time.Now().UTC()
}
