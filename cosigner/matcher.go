package cosigner

import (
	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/pkg/errors"
)

// Match returns the first registry entry declared by the document, walking the
// multisig parameters in file order under the registry code hash.
func (r *Registry) Match(doc *ckb.Document) *store.MultisigConfig {
	if r.codeHash == "" {
		return nil
	}
	for _, entry := range doc.Multisig {
		mc := r.Lookup(r.codeHash, entry.Args)
		if mc != nil {
			return mc
		}
	}
	return nil
}

func (r *Registry) parseAndMatch(data []byte) (*ckb.Document, *store.MultisigConfig, error) {
	doc, err := ckb.ParseDocument(data)
	if err != nil {
		return nil, nil, errors.Wrap(common.ErrValidation, err.Error())
	}
	mc := r.Match(doc)
	if mc == nil {
		var args []string
		for _, entry := range doc.Multisig {
			args = append(args, entry.Args)
		}
		return doc, nil, errors.Wrapf(common.ErrUnsupportedConfiguration, "multisig args %v", args)
	}
	return doc, mc, nil
}
