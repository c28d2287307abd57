package cosigner

import (
	"context"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/pkg/errors"
)

// PushTransaction merges the collected signatures into the signing document
// and broadcasts it. An explicit rejection by the network moves the record to
// the rejected state and is not returned as an error, while a failure of the
// submission tool itself leaves the record untouched.
func (node *Node) PushTransaction(ctx context.Context, id string) (*store.Record, error) {
	unlock := node.locks.Lock(id)
	defer unlock()

	r, err := node.ReadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	unlockDocument := node.locks.Lock(r.SourceReference)
	defer unlockDocument()
	r, err = node.ReadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	err = checkPushable(r)
	if err != nil {
		return nil, err
	}

	data, err := node.documents.Read(r.SourceReference)
	if err != nil {
		return nil, errors.Wrapf(common.ErrPersistence, "document %s %v", r.SourceReference, err)
	}
	doc, err := ckb.ParseDocument(data)
	if err != nil {
		return nil, errors.Wrap(common.ErrValidation, err.Error())
	}
	if doc.MultisigParams(r.Config.Args) == nil {
		return nil, errors.Wrapf(common.ErrValidation, "document %s without multisig %s", r.SourceReference, r.Config.Args)
	}
	doc.SetSignatures(r.Config.Args, signatureValues(r))
	data, err = doc.Marshal()
	if err != nil {
		return nil, errors.Wrap(common.ErrValidation, err.Error())
	}
	err = node.documents.Write(r.SourceReference, data)
	if err != nil {
		return nil, errors.Wrapf(common.ErrPersistence, "document %s %v", r.SourceReference, err)
	}

	sctx, cancel := node.withCommandTimeout(ctx)
	defer cancel()
	out, err := node.submitter.SendTransaction(sctx, node.documents.Path(r.SourceReference))
	logger.Printf("node.PushTransaction(%s, %s) => %s %v", id, r.TxHash, out, err)

	var ce *ckb.CommandError
	switch {
	case errors.As(err, &ce):
		err = markRejected(r, ce.Stderr, now())
	case err != nil:
		return nil, errors.Wrapf(common.ErrExternalTool, "push %s %v", id, err)
	default:
		err = markPushed(r, now())
	}
	if err != nil {
		return nil, err
	}

	err = node.store.UpdateRecord(ctx, r)
	if err != nil {
		return nil, err
	}
	return r, nil
}
