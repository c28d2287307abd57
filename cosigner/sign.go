package cosigner

import (
	"context"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/pkg/errors"
)

// SignTransaction adds or replaces the signature of signer on an uploaded
// record. The boolean result tells whether the signer had not signed before.
func (node *Node) SignTransaction(ctx context.Context, id, signer, signature string) (*store.Record, bool, error) {
	lockArgs, valid := common.NormalizeHex(signer)
	if !valid || len(lockArgs) != 42 {
		return nil, false, errors.Wrapf(common.ErrValidation, "invalid signer %s", signer)
	}
	sig, valid := common.NormalizeHex(signature)
	if !valid || len(sig) <= 2 {
		return nil, false, errors.Wrapf(common.ErrValidation, "invalid signature %s", signature)
	}
	signer, signature = lockArgs, sig

	unlock := node.locks.Lock(id)
	defer unlock()

	r, err := node.ReadRecord(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if r.State != store.RecordStateUploaded {
		return nil, false, errors.Wrapf(common.ErrPreconditionFailed, "transaction %s already finalized (%s)", r.Id, r.StateName())
	}
	if !r.Config.HasSigner(signer) {
		return nil, false, errors.Wrapf(common.ErrValidation, "signer %s not in multisig %s", signer, r.Config.Args)
	}

	isNew := SubmitSignature(r, signer, signature)
	err = node.store.UpdateRecord(ctx, r)
	if err != nil {
		return nil, false, err
	}
	logger.Printf("node.SignTransaction(%s, %s) => %t %d/%d", id, signer, isNew, len(r.Signatures), r.Config.Threshold)
	return r, isNew, nil
}
