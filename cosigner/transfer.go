package cosigner

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const maxTransferFiles = 999

var (
	maxTransferValue = decimal.NewFromInt(1_000_000_000)
	maxTransferFee   = decimal.NewFromInt(10_000_000_000)
)

type TransferRequest struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Value decimal.Decimal `json:"value"`
	Fee   decimal.Decimal `json:"fee"`
}

func (req *TransferRequest) validate(network string) error {
	err := ckb.ValidateAddress(req.From, network)
	if err != nil {
		return errors.Wrapf(common.ErrValidation, "invalid from address %v", err)
	}
	err = ckb.ValidateAddress(req.To, network)
	if err != nil {
		return errors.Wrapf(common.ErrValidation, "invalid to address %v", err)
	}
	if !req.Value.IsInteger() || !req.Value.IsPositive() || req.Value.GreaterThan(maxTransferValue) {
		return errors.Wrapf(common.ErrValidation, "the value must be a number between 0 and %s", maxTransferValue)
	}
	if !req.Fee.IsInteger() || !req.Fee.IsPositive() || req.Fee.GreaterThan(maxTransferFee) {
		return errors.Wrapf(common.ErrValidation, "the fee must be a number between 0 and %s", maxTransferFee)
	}
	return nil
}

// CreateTransfer builds a transfer document from the multisig address with
// the toolbox and registers it like an uploaded document.
func (node *Node) CreateTransfer(ctx context.Context, req *TransferRequest, uploader string) (*store.Record, error) {
	if node.toolbox == nil {
		return nil, errors.Wrap(common.ErrPreconditionFailed, "transfer toolbox not configured")
	}
	err := req.validate(node.conf.Network)
	if err != nil {
		return nil, err
	}

	node.transfer.Lock()
	defer node.transfer.Unlock()

	ref, err := node.allocateTransferReference()
	if err != nil {
		return nil, err
	}

	tctx, cancel := node.withCommandTimeout(ctx)
	defer cancel()
	file := node.documents.Path(ref)
	err = os.MkdirAll(filepath.Dir(file), 0700)
	if err != nil {
		return nil, errors.Wrap(common.ErrPersistence, err.Error())
	}
	err = node.toolbox.Transfer(tctx, req.From, req.To, req.Value.String(), req.Fee.String(), file)
	if err != nil {
		_ = node.documents.Remove(ref)
		return nil, errors.Wrapf(common.ErrExternalTool, "transfer %v", err)
	}
	data, err := node.documents.Read(ref)
	if err != nil {
		return nil, errors.Wrapf(common.ErrExternalTool, "transfer output %s %v", ref, err)
	}

	r, err := node.registerTransaction(ctx, ref, data, uploader, false)
	if err != nil {
		_ = node.documents.Remove(ref)
		return nil, err
	}
	logger.Printf("node.CreateTransfer(%s, %s, %s, %s) => %s", req.From, req.To, req.Value, req.Fee, r.Id)
	return r, nil
}

func (node *Node) allocateTransferReference() (string, error) {
	day := now().Format(documentDateLayout)
	for i := 1; i <= maxTransferFiles; i++ {
		ref := path.Join(day, fmt.Sprintf("tx-%d.json", i))
		existed, err := node.documents.Exists(ref)
		if err != nil {
			return "", errors.Wrap(common.ErrPersistence, err.Error())
		}
		if !existed {
			return ref, nil
		}
	}
	return "", errors.Wrap(common.ErrPreconditionFailed, "too many transactions, please clean database first")
}
