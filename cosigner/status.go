package cosigner

import (
	"context"
	"time"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/pkg/errors"
)

const defaultRejectReason = "rejected by network"

type TransactionStatus struct {
	Status      string
	CommittedAt *time.Time
	Reason      string
}

// PollStatus queries the chain for the transaction and resolves the block
// time of committed transactions.
func (node *Node) PollStatus(ctx context.Context, hash string) (*TransactionStatus, error) {
	ctx, cancel := node.withCommandTimeout(ctx)
	defer cancel()

	ts, err := node.chain.TransactionStatus(ctx, hash)
	if err != nil {
		return nil, errors.Wrapf(common.ErrExternalTool, "status %s %v", hash, err)
	}
	status := &TransactionStatus{Status: ts.Status, Reason: ts.Reason}
	if ts.Status != ckb.TransactionStatusCommitted {
		return status, nil
	}

	at, err := node.chain.BlockTime(ctx, ts.BlockHash)
	if err != nil {
		return nil, errors.Wrapf(common.ErrExternalTool, "block %s %v", ts.BlockHash, err)
	}
	status.CommittedAt = &at
	return status, nil
}

// ReconcileTransaction polls the chain and persists a committed or rejected
// outcome for a record not finalized yet. Finalized records are only polled.
func (node *Node) ReconcileTransaction(ctx context.Context, id string) (*store.Record, *TransactionStatus, error) {
	unlock := node.locks.Lock(id)
	defer unlock()

	r, err := node.ReadRecord(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	status, err := node.PollStatus(ctx, r.TxHash)
	if err != nil {
		return nil, nil, err
	}
	if r.Finalized() {
		return r, status, nil
	}

	switch status.Status {
	case ckb.TransactionStatusCommitted:
		err = markCommitted(r, *status.CommittedAt)
	case ckb.TransactionStatusRejected:
		reason := status.Reason
		if reason == "" {
			reason = defaultRejectReason
		}
		err = markRejected(r, reason, now())
	default:
		return r, status, nil
	}
	if err != nil {
		return nil, nil, err
	}

	err = node.store.UpdateRecord(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	logger.Printf("node.ReconcileTransaction(%s, %s) => %s", id, r.TxHash, r.StateName())
	return r, status, nil
}

// ReconcilePushedTransactions reconciles the given records, or every pushed
// record when ids is empty, and returns the records that changed state.
func (node *Node) ReconcilePushedTransactions(ctx context.Context, ids []string) ([]*store.Record, error) {
	if len(ids) == 0 {
		pushed, err := node.store.ListRecordsByState(ctx, store.RecordStatePushed)
		if err != nil {
			return nil, err
		}
		for _, r := range pushed {
			ids = append(ids, r.Id)
		}
	}

	var changed []*store.Record
	for _, id := range ids {
		old, err := node.ReadRecord(ctx, id)
		if err != nil {
			return changed, err
		}
		r, _, err := node.ReconcileTransaction(ctx, id)
		if err != nil {
			return changed, err
		}
		if r.State != old.State {
			changed = append(changed, r)
		}
	}
	return changed, nil
}
