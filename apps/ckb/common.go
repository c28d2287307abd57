package ckb

import (
	"fmt"
	"strings"

	"github.com/ckb-cosigner/cosigner/common"
)

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"

	HashTypeData  = "data"
	HashTypeType  = "type"
	HashTypeData1 = "data1"
	HashTypeData2 = "data2"

	// secp256k1/blake160 multisig lock, identical on mainnet and testnet
	MultisigCodeHash  = "0x5c5069eb0857efc65e1bca0c07df34c31663b3622fd3876c876320fc9634e2a8"
	Secp256k1CodeHash = "0x9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8"

	mainnetAnyoneCanPayCodeHash = "0xd369597ff47f29fbc0d47d2e3775370d1250b85140c670e4718af712983a2354"
	testnetAnyoneCanPayCodeHash = "0x3419a1c09eb2567f6552ee7a8ecffd64155cffe0f1796e6e61ec088d740c1356"
)

type Script struct {
	CodeHash string `json:"code_hash" toml:"code-hash"`
	HashType string `json:"hash_type" toml:"hash-type"`
	Args     string `json:"args" toml:"args"`
}

func (s *Script) Normalize() error {
	ch, ok := common.NormalizeHex(s.CodeHash)
	if !ok || len(ch) != 66 {
		return fmt.Errorf("invalid script code hash %s", s.CodeHash)
	}
	args, ok := common.NormalizeHex(s.Args)
	if !ok {
		return fmt.Errorf("invalid script args %s", s.Args)
	}
	ht := strings.ToLower(strings.TrimSpace(s.HashType))
	if ht == "" {
		ht = HashTypeType
	}
	if _, err := hashTypeByte(ht); err != nil {
		return err
	}
	s.CodeHash, s.HashType, s.Args = ch, ht, args
	return nil
}

func (s *Script) Key() string {
	return ScriptKey(s.CodeHash, s.Args)
}

func ScriptKey(codeHash, args string) string {
	return strings.ToLower(codeHash) + "|" + strings.ToLower(args)
}

func CheckNetwork(network string) error {
	switch network {
	case NetworkMainnet, NetworkTestnet:
		return nil
	default:
		return fmt.Errorf("invalid network %s", network)
	}
}

func hashTypeByte(ht string) (byte, error) {
	switch ht {
	case HashTypeData:
		return 0x00, nil
	case HashTypeType:
		return 0x01, nil
	case HashTypeData1:
		return 0x02, nil
	case HashTypeData2:
		return 0x04, nil
	default:
		return 0, fmt.Errorf("invalid script hash type %s", ht)
	}
}

func hashTypeFromByte(b byte) (string, error) {
	switch b {
	case 0x00:
		return HashTypeData, nil
	case 0x01:
		return HashTypeType, nil
	case 0x02:
		return HashTypeData1, nil
	case 0x04:
		return HashTypeData2, nil
	default:
		return "", fmt.Errorf("invalid script hash type %d", b)
	}
}
