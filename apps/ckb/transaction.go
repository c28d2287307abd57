package ckb

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nervosnetwork/ckb-sdk-go/v2/types"
)

// HashTransaction computes the hash of the raw transaction in RPC json
// format, as found in the transaction field of a ckb-cli file.
func HashTransaction(raw json.RawMessage) (string, error) {
	var tx types.Transaction
	err := json.Unmarshal(raw, &tx)
	if err != nil {
		return "", fmt.Errorf("invalid transaction: %v", err)
	}
	hash := tx.ComputeHash()
	return "0x" + hex.EncodeToString(hash[:]), nil
}
