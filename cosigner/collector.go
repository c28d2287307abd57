package cosigner

import (
	"strings"

	"github.com/ckb-cosigner/cosigner/cosigner/store"
)

// SubmitSignature records the signature of signer on the record. A signer
// signing again replaces its earlier signature in place and the result is
// false.
func SubmitSignature(r *store.Record, signer, signature string) bool {
	signer = strings.ToLower(signer)
	for _, s := range r.Signatures {
		if s.Signer == signer {
			s.Signature = signature
			return false
		}
	}
	r.Signatures = append(r.Signatures, &store.Signature{
		Signer:    signer,
		Signature: signature,
	})
	return true
}

func ThresholdMet(r *store.Record) bool {
	return len(r.Signatures) >= r.Config.Threshold
}

func signatureValues(r *store.Record) []string {
	sigs := make([]string, len(r.Signatures))
	for i, s := range r.Signatures {
		sigs[i] = s.Signature
	}
	return sigs
}
