package cosigner

import (
	"database/sql"
	"time"

	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/pkg/errors"
)

func checkPushable(r *store.Record) error {
	if r.State != store.RecordStateUploaded {
		return errors.Wrapf(common.ErrPreconditionFailed, "transaction %s already finalized (%s)", r.Id, r.StateName())
	}
	if !ThresholdMet(r) {
		return errors.Wrapf(common.ErrPreconditionFailed, "transaction %s insufficient signatures %d/%d", r.Id, len(r.Signatures), r.Config.Threshold)
	}
	return nil
}

func markPushed(r *store.Record, at time.Time) error {
	err := checkPushable(r)
	if err != nil {
		return err
	}
	r.State = store.RecordStatePushed
	r.PushedAt = sql.NullTime{Time: at, Valid: true}
	return nil
}

func markRejected(r *store.Record, reason string, at time.Time) error {
	if r.Finalized() {
		return errors.Wrapf(common.ErrPreconditionFailed, "transaction %s already finalized (%s)", r.Id, r.StateName())
	}
	r.State = store.RecordStateRejected
	r.RejectedAt = sql.NullTime{Time: at, Valid: true}
	r.RejectReason = sql.NullString{String: reason, Valid: true}
	return nil
}

func markCommitted(r *store.Record, at time.Time) error {
	if r.Finalized() {
		return errors.Wrapf(common.ErrPreconditionFailed, "transaction %s already finalized (%s)", r.Id, r.StateName())
	}
	r.State = store.RecordStateCommitted
	r.CommittedAt = sql.NullTime{Time: at, Valid: true}
	return nil
}
