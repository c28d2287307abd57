package cosigner

import (
	"testing"

	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func testMultisigConfig(args string, threshold int, signers ...string) *store.MultisigConfig {
	return &store.MultisigConfig{
		CodeHash:  ckb.MultisigCodeHash,
		Args:      args,
		Signers:   signers,
		Threshold: threshold,
	}
}

func TestRegistry(t *testing.T) {
	require := require.New(t)

	other := "0x0102030405060708090a0b0c0d0e0f1011121314"
	registry, err := NewRegistry([]*store.MultisigConfig{
		testMultisigConfig(testMultisigArgs, 2, testSigner1, testSigner2, testSigner3),
		testMultisigConfig(other, 1, testSigner1),
	}, "")
	require.Nil(err)
	require.Equal(ckb.MultisigCodeHash, registry.CodeHash())
	require.Len(registry.List(), 2)

	mc := registry.Lookup(ckb.MultisigCodeHash, testMultisigArgs)
	require.NotNil(mc)
	require.Equal(2, mc.Threshold)
	require.Equal(ckb.HashTypeType, mc.HashType)
	mc = registry.Lookup("0x5C5069EB0857EFC65E1BCA0C07DF34C31663B3622FD3876C876320FC9634E2A8", "0x0102030405060708090A0B0C0D0E0F1011121314")
	require.NotNil(mc)
	require.Equal(other, mc.Args)
	require.Nil(registry.Lookup(ckb.Secp256k1CodeHash, testMultisigArgs))
	require.Nil(registry.Lookup(ckb.MultisigCodeHash, "0x99"))
}

func TestRegistryInvariants(t *testing.T) {
	require := require.New(t)

	for i, configs := range [][]*store.MultisigConfig{
		{testMultisigConfig(testMultisigArgs, 0, testSigner1)},
		{testMultisigConfig(testMultisigArgs, 2, testSigner1)},
		{testMultisigConfig(testMultisigArgs, 1, testSigner1, testSigner1)},
		{testMultisigConfig(testMultisigArgs, 1, "0x01")},
		{testMultisigConfig("0xzz", 1, testSigner1)},
		{{CodeHash: "0xaa", Args: testMultisigArgs, Signers: []string{testSigner1}, Threshold: 1}},
		{{CodeHash: ckb.MultisigCodeHash, Args: testMultisigArgs, Signers: []string{testSigner1, testSigner2}, Threshold: 1, RequireFirstN: 2}},
		{{CodeHash: ckb.MultisigCodeHash, Args: testMultisigArgs, Signers: []string{testSigner1}, Threshold: 1, RequireFirstN: -1}},
		{{CodeHash: ckb.MultisigCodeHash, HashType: "lock", Args: testMultisigArgs, Signers: []string{testSigner1}, Threshold: 1}},
		{
			testMultisigConfig(testMultisigArgs, 1, testSigner1),
			testMultisigConfig(testMultisigArgs, 1, testSigner2),
		},
	} {
		_, err := NewRegistry(configs, "")
		require.True(errors.Is(err, common.ErrValidation), i)
	}

	_, err := NewRegistry(nil, "0x01")
	require.True(errors.Is(err, common.ErrValidation))
	registry, err := NewRegistry(nil, "")
	require.Nil(err)
	require.Equal("", registry.CodeHash())

	registry, err = NewRegistry([]*store.MultisigConfig{
		{CodeHash: ckb.MultisigCodeHash, Args: testMultisigArgs, Signers: []string{testSigner1, testSigner2, testSigner3}, Threshold: 3, RequireFirstN: 3},
	}, "")
	require.Nil(err)
	require.Len(registry.List(), 1)
}

func TestRegistryMatch(t *testing.T) {
	require := require.New(t)

	first := "0x0102030405060708090a0b0c0d0e0f1011121314"
	registry, err := NewRegistry([]*store.MultisigConfig{
		testMultisigConfig(testMultisigArgs, 2, testSigner1, testSigner2, testSigner3),
		testMultisigConfig(first, 1, testSigner1),
	}, ckb.MultisigCodeHash)
	require.Nil(err)

	raw := `{"transaction":{},"multisig_configs":{"0x99":{"threshold":1},"0x0102030405060708090a0b0c0d0e0f1011121314":{"threshold":1},"0x9d4f2c7a6b5a2e0e6f6ee32e63a0e3b6b2b4c8d1":{"threshold":2}}}`
	for i := 0; i < 16; i++ {
		doc, mc, err := registry.parseAndMatch([]byte(raw))
		require.Nil(err)
		require.Len(doc.Multisig, 3)
		require.Equal(first, mc.Args)
	}

	raw = `{"transaction":{},"multisig_configs":{"0x9D4F2C7A6B5A2E0E6F6EE32E63A0E3B6B2B4C8D1":{"threshold":2}}}`
	_, mc, err := registry.parseAndMatch([]byte(raw))
	require.Nil(err)
	require.Equal(testMultisigArgs, mc.Args)

	_, _, err = registry.parseAndMatch([]byte(`{"transaction":{},"multisig_configs":{"0x99":{"threshold":1}}}`))
	require.True(errors.Is(err, common.ErrUnsupportedConfiguration))
	_, _, err = registry.parseAndMatch([]byte(`{"transaction":{},"multisig_configs":{}}`))
	require.True(errors.Is(err, common.ErrUnsupportedConfiguration))
	_, _, err = registry.parseAndMatch([]byte(`{"multisig_configs":{"0x9d4f2c7a6b5a2e0e6f6ee32e63a0e3b6b2b4c8d1":{}}}`))
	require.True(errors.Is(err, common.ErrValidation))
	_, _, err = registry.parseAndMatch([]byte(`not json`))
	require.True(errors.Is(err, common.ErrValidation))

	other, err := NewRegistry([]*store.MultisigConfig{
		testMultisigConfig(testMultisigArgs, 2, testSigner1, testSigner2, testSigner3),
	}, ckb.Secp256k1CodeHash)
	require.Nil(err)
	_, _, err = other.parseAndMatch([]byte(`{"transaction":{},"multisig_configs":{"0x9d4f2c7a6b5a2e0e6f6ee32e63a0e3b6b2b4c8d1":{}}}`))
	require.True(errors.Is(err, common.ErrUnsupportedConfiguration))
}
