package ckb

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	prefixMainnet = "ckb"
	prefixTestnet = "ckt"

	formatFull           = 0x00
	formatShort          = 0x01
	formatDeprecatedData = 0x02
	formatDeprecatedType = 0x04
)

// EncodeAddress builds the full format (bech32m) address of the script.
func EncodeAddress(script *Script, network string) (string, error) {
	hrp, err := networkPrefix(network)
	if err != nil {
		return "", err
	}
	codeHash, err := hex.DecodeString(trim0x(script.CodeHash))
	if err != nil || len(codeHash) != 32 {
		return "", fmt.Errorf("invalid script code hash %s", script.CodeHash)
	}
	ht, err := hashTypeByte(script.HashType)
	if err != nil {
		return "", err
	}
	args, err := hex.DecodeString(trim0x(script.Args))
	if err != nil {
		return "", fmt.Errorf("invalid script args %s", script.Args)
	}

	payload := make([]byte, 0, 34+len(args))
	payload = append(payload, formatFull)
	payload = append(payload, codeHash...)
	payload = append(payload, ht)
	payload = append(payload, args...)
	data, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(hrp, data)
}

// DecodeAddress parses full, short and deprecated full format addresses,
// returning the lock script and the network of the address.
func DecodeAddress(addr string) (*Script, string, error) {
	hrp, data, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return nil, "", fmt.Errorf("invalid address %s: %v", addr, err)
	}
	var network string
	switch hrp {
	case prefixMainnet:
		network = NetworkMainnet
	case prefixTestnet:
		network = NetworkTestnet
	default:
		return nil, "", fmt.Errorf("invalid address prefix %s", hrp)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, "", fmt.Errorf("invalid address %s: %v", addr, err)
	}
	if len(payload) < 1 {
		return nil, "", fmt.Errorf("invalid address %s", addr)
	}

	switch payload[0] {
	case formatFull:
		if len(payload) < 34 {
			return nil, "", fmt.Errorf("invalid full address %s", addr)
		}
		ht, err := hashTypeFromByte(payload[33])
		if err != nil {
			return nil, "", err
		}
		return &Script{
			CodeHash: "0x" + hex.EncodeToString(payload[1:33]),
			HashType: ht,
			Args:     "0x" + hex.EncodeToString(payload[34:]),
		}, network, nil
	case formatShort:
		if len(payload) < 22 {
			return nil, "", fmt.Errorf("invalid short address %s", addr)
		}
		codeHash, err := shortCodeHash(payload[1], network)
		if err != nil {
			return nil, "", err
		}
		return &Script{
			CodeHash: codeHash,
			HashType: HashTypeType,
			Args:     "0x" + hex.EncodeToString(payload[2:]),
		}, network, nil
	case formatDeprecatedData, formatDeprecatedType:
		if len(payload) < 33 {
			return nil, "", fmt.Errorf("invalid full address %s", addr)
		}
		ht := HashTypeData
		if payload[0] == formatDeprecatedType {
			ht = HashTypeType
		}
		return &Script{
			CodeHash: "0x" + hex.EncodeToString(payload[1:33]),
			HashType: ht,
			Args:     "0x" + hex.EncodeToString(payload[33:]),
		}, network, nil
	default:
		return nil, "", fmt.Errorf("invalid address format %d", payload[0])
	}
}

func ValidateAddress(addr, network string) error {
	_, n, err := DecodeAddress(addr)
	if err != nil {
		return err
	}
	if n != network {
		return fmt.Errorf("address %s not on %s", addr, network)
	}
	return nil
}

func shortCodeHash(index byte, network string) (string, error) {
	switch index {
	case 0x00:
		return Secp256k1CodeHash, nil
	case 0x01:
		return MultisigCodeHash, nil
	case 0x02:
		if network == NetworkMainnet {
			return mainnetAnyoneCanPayCodeHash, nil
		}
		return testnetAnyoneCanPayCodeHash, nil
	default:
		return "", fmt.Errorf("invalid short address code hash index %d", index)
	}
}

func networkPrefix(network string) (string, error) {
	switch network {
	case NetworkMainnet:
		return prefixMainnet, nil
	case NetworkTestnet:
		return prefixTestnet, nil
	default:
		return "", fmt.Errorf("invalid network %s", network)
	}
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
