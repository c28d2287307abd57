package cosigner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/stretchr/testify/require"
)

const (
	testMultisigArgs = "0x9d4f2c7a6b5a2e0e6f6ee32e63a0e3b6b2b4c8d1"
	testSigner1      = "0x1111111111111111111111111111111111111111"
	testSigner2      = "0x2222222222222222222222222222222222222222"
	testSigner3      = "0x3333333333333333333333333333333333333333"
	testUserHash     = "0xb39bbc0b3673c7d36450bc14cfcdad2d559c6c64"
	testTransferFrom = "ckt1qzda0cr08m85hc8jlnfp3zer7xulejywt49kt2rr0vthywaa50xwsqdnnw7qkdnnclfkg59uzn8umtfd2kwxceqgutnjd"
)

type testToolbox struct {
	mutex    sync.Mutex
	failures map[string]error
	transfer []byte
	nonce    int
}

func (t *testToolbox) Description(ctx context.Context, network, file string) (string, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if err := t.failures["description"]; err != nil {
		return "", err
	}
	return fmt.Sprintf("transfer on %s\n", network), nil
}

func (t *testToolbox) Digest(ctx context.Context, address, file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "0x" + hex.EncodeToString(sum[:]), nil
}

func (t *testToolbox) Transfer(ctx context.Context, from, to, value, fee, file string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if err := t.failures["transfer"]; err != nil {
		return err
	}
	data := t.transfer
	if data == nil {
		t.nonce += 1
		data = testDocument(1000+t.nonce, 2, testMultisigArgs)
	}
	return os.WriteFile(file, data, 0600)
}

type testSubmitter struct {
	mutex sync.Mutex
	err   error
	files [][]byte
}

func (s *testSubmitter) SendTransaction(ctx context.Context, file string) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	s.files = append(s.files, data)
	if s.err != nil {
		return "", s.err
	}
	return "0xpushed\n", nil
}

type testChain struct {
	mutex    sync.Mutex
	statuses map[string]*ckb.RPCTransactionStatus
	times    map[string]time.Time
	err      error
}

func (c *testChain) setStatus(hash string, status *ckb.RPCTransactionStatus) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.statuses[hash] = status
}

func (c *testChain) TransactionStatus(ctx context.Context, hash string) (*ckb.RPCTransactionStatus, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	status := c.statuses[hash]
	if status == nil {
		return &ckb.RPCTransactionStatus{Status: ckb.TransactionStatusUnknown}, nil
	}
	return status, nil
}

func (c *testChain) BlockTime(ctx context.Context, blockHash string) (time.Time, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	t, found := c.times[blockHash]
	if !found {
		return time.Time{}, fmt.Errorf("block %s not found", blockHash)
	}
	return t, nil
}

type testEnv struct {
	node      *Node
	toolbox   *testToolbox
	submitter *testSubmitter
	chain     *testChain
}

func testConfiguration(root string) *Configuration {
	return &Configuration{
		StoreDir:        root,
		TransactionsDir: filepath.Join(root, "transactions"),
		Network:         ckb.NetworkTestnet,
		ToolboxCliBin:   "toolbox",
		Users: []*User{
			{Name: "alice", PubKeyHash: testUserHash},
		},
		Scripts: []*ScriptType{
			{Name: "system-multisig", TypeId: ckb.MultisigCodeHash},
		},
		Multisig: []*store.MultisigConfig{{
			CodeHash:  ckb.MultisigCodeHash,
			HashType:  ckb.HashTypeType,
			Args:      testMultisigArgs,
			Signers:   []string{testSigner1, testSigner2, testSigner3},
			Threshold: 2,
		}},
	}
}

func testBuildNode(t *testing.T) (context.Context, *testEnv) {
	ctx := context.Background()
	root, err := os.MkdirTemp("", "cosigner-test")
	require.Nil(t, err)
	t.Cleanup(func() { os.RemoveAll(root) })

	conf := testConfiguration(root)
	db, err := store.OpenSQLite3Store(filepath.Join(root, "cosigner.sqlite3"))
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })

	node, err := NewNode(db, conf)
	require.Nil(t, err)
	env := &testEnv{
		node:      node,
		toolbox:   &testToolbox{failures: make(map[string]error)},
		submitter: &testSubmitter{},
		chain: &testChain{
			statuses: make(map[string]*ckb.RPCTransactionStatus),
			times:    make(map[string]time.Time),
		},
	}
	node.hasher = testHashTransaction
	node.toolbox = env.toolbox
	node.submitter = env.submitter
	node.chain = env.chain
	return ctx, env
}

func testHashTransaction(tx json.RawMessage) (string, error) {
	var v any
	err := json.Unmarshal(tx, &v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(common.MarshalJSONOrPanic(v))
	return "0x" + hex.EncodeToString(sum[:]), nil
}

func testDocument(nonce int, threshold int, args ...string) []byte {
	configs := make(map[string]any)
	for _, a := range args {
		configs[a] = map[string]any{
			"sighash_addresses": []string{},
			"require_first_n":   0,
			"threshold":         threshold,
		}
	}
	return common.MarshalJSONOrPanic(map[string]any{
		"transaction": map[string]any{
			"version":      "0x0",
			"cell_deps":    []any{},
			"header_deps":  []any{},
			"inputs":       []any{},
			"outputs":      []any{},
			"outputs_data": []string{fmt.Sprintf("0x%04x", nonce)},
			"witnesses":    []string{},
		},
		"multisig_configs": configs,
		"signatures":       map[string]any{},
	})
}
