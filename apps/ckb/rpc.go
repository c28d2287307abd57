package ckb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MixinNetwork/mixin/logger"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusProposed  = "proposed"
	TransactionStatusCommitted = "committed"
	TransactionStatusRejected  = "rejected"
	TransactionStatusUnknown   = "unknown"
)

type RPCTransactionStatus struct {
	Status    string `json:"status"`
	BlockHash string `json:"block_hash"`
	Reason    string `json:"reason"`
}

type RPCTransactionWithStatus struct {
	TxStatus *RPCTransactionStatus `json:"tx_status"`
}

type RPCHeader struct {
	Hash      string `json:"hash"`
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
}

func (h *RPCHeader) Time() (time.Time, error) {
	ms, err := strconv.ParseUint(trim0x(h.Timestamp), 16, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid header timestamp %s", h.Timestamp)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

func RPCGetTransactionStatus(ctx context.Context, rpc, hash string) (*RPCTransactionStatus, error) {
	res, err := callCKBRPC(ctx, rpc, "get_transaction", []any{hash})
	if err != nil {
		return nil, err
	}
	var tx *RPCTransactionWithStatus
	err = json.Unmarshal(res, &tx)
	if err != nil {
		return nil, err
	}
	if tx == nil || tx.TxStatus == nil {
		return &RPCTransactionStatus{Status: TransactionStatusUnknown}, nil
	}
	return tx.TxStatus, nil
}

func RPCGetHeader(ctx context.Context, rpc, hash string) (*RPCHeader, error) {
	res, err := callCKBRPC(ctx, rpc, "get_header", []any{hash})
	if err != nil {
		return nil, err
	}
	var header *RPCHeader
	err = json.Unmarshal(res, &header)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, fmt.Errorf("get_header(%s) not found", hash)
	}
	return header, nil
}

func callCKBRPC(ctx context.Context, rpc, method string, params []any) ([]byte, error) {
	client := &http.Client{Timeout: 20 * time.Second}

	body, err := json.Marshal(map[string]any{
		"method":  method,
		"params":  params,
		"id":      time.Now().UnixNano(),
		"jsonrpc": "2.0",
	})
	if err != nil {
		panic(err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", rpc, bytes.NewReader(body))
	if err != nil {
		return nil, buildRPCError(rpc, method, params, err)
	}

	req.Close = true
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, buildRPCError(rpc, method, params, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, buildRPCError(rpc, method, params, err)
	}
	logger.Verbosef("callCKBRPC(%s, %s, %v) => %d %s", rpc, method, params, resp.StatusCode, strings.TrimSpace(string(body)))
	var result struct {
		Data  any `json:"result"`
		Error any `json:"error"`
	}
	err = json.Unmarshal(body, &result)
	if err != nil {
		return nil, fmt.Errorf("%v (%s)", buildRPCError(rpc, method, params, err), string(body))
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%v (%s)", buildRPCError(rpc, method, params, nil), string(body))
	}

	return json.Marshal(result.Data)
}

func buildRPCError(rpc, method string, params []any, err error) error {
	return fmt.Errorf("callCKBRPC(%s, %s, %v) => %v", rpc, method, params, err)
}

// RPCClient queries a CKB node for transaction status and block times.
type RPCClient struct {
	URL string
}

func (c *RPCClient) TransactionStatus(ctx context.Context, hash string) (*RPCTransactionStatus, error) {
	return RPCGetTransactionStatus(ctx, c.URL, hash)
}

func (c *RPCClient) BlockTime(ctx context.Context, blockHash string) (time.Time, error) {
	header, err := RPCGetHeader(ctx, c.URL, blockHash)
	if err != nil {
		return time.Time{}, err
	}
	return header.Time()
}
