package cosigner

import (
	"fmt"

	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/pkg/errors"
)

// Registry is the immutable set of multisig configurations this coordinator
// collects signatures for, keyed by script code hash and args.
type Registry struct {
	codeHash string
	entries  map[string]*store.MultisigConfig
	ordered  []*store.MultisigConfig
}

func NewRegistry(configs []*store.MultisigConfig, codeHash string) (*Registry, error) {
	r := &Registry{entries: make(map[string]*store.MultisigConfig)}
	for i, c := range configs {
		mc, err := normalizeMultisigConfig(c)
		if err != nil {
			return nil, errors.Wrapf(common.ErrValidation, "multisig config %d %v", i, err)
		}
		key := mc.Key()
		if r.entries[key] != nil {
			return nil, errors.Wrapf(common.ErrValidation, "multisig config %d duplicated %s", i, key)
		}
		r.entries[key] = mc
		r.ordered = append(r.ordered, mc)
	}

	if codeHash == "" && len(r.ordered) > 0 {
		codeHash = r.ordered[0].CodeHash
	}
	if codeHash != "" {
		ch, valid := common.NormalizeHex(codeHash)
		if !valid || len(ch) != 66 {
			return nil, errors.Wrapf(common.ErrValidation, "multisig code hash %s", codeHash)
		}
		r.codeHash = ch
	}
	return r, nil
}

func (r *Registry) CodeHash() string {
	return r.codeHash
}

func (r *Registry) Lookup(codeHash, args string) *store.MultisigConfig {
	return r.entries[ckb.ScriptKey(codeHash, args)]
}

func (r *Registry) List() []*store.MultisigConfig {
	return r.ordered
}

func normalizeMultisigConfig(c *store.MultisigConfig) (*store.MultisigConfig, error) {
	script := c.Script()
	err := script.Normalize()
	if err != nil {
		return nil, err
	}
	mc := &store.MultisigConfig{
		CodeHash:      script.CodeHash,
		HashType:      script.HashType,
		Args:          script.Args,
		RequireFirstN: c.RequireFirstN,
		Threshold:     c.Threshold,
	}

	seen := make(map[string]bool)
	for _, s := range c.Signers {
		signer, valid := common.NormalizeHex(s)
		if !valid || len(signer) != 42 {
			return nil, fmt.Errorf("invalid signer %s", s)
		}
		if seen[signer] {
			return nil, fmt.Errorf("duplicated signer %s", signer)
		}
		seen[signer] = true
		mc.Signers = append(mc.Signers, signer)
	}

	n := len(mc.Signers)
	if mc.RequireFirstN < 0 || mc.Threshold < 1 || mc.RequireFirstN > mc.Threshold || mc.Threshold > n {
		return nil, fmt.Errorf("invalid threshold %d/%d/%d", mc.RequireFirstN, mc.Threshold, n)
	}
	return mc, nil
}
