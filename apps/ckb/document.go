package ckb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	documentKeyTransaction     = "transaction"
	documentKeyMultisigConfigs = "multisig_configs"
	documentKeySignatures      = "signatures"
)

// MultisigParams is the multisig declaration ckb-cli writes for one lock
// args in a transaction file.
type MultisigParams struct {
	SighashAddresses []string `json:"sighash_addresses"`
	RequireFirstN    int      `json:"require_first_n"`
	Threshold        int      `json:"threshold"`
}

type MultisigEntry struct {
	Args   string
	Params *MultisigParams
}

// Document is a structurally validated ckb-cli transaction file. Fields the
// coordinator does not understand are kept verbatim.
type Document struct {
	Transaction json.RawMessage
	Multisig    []*MultisigEntry
	Signatures  map[string][]string

	fields map[string]json.RawMessage
}

// ParseDocument validates that b holds both a transaction body and a
// multisig parameter map. Multisig entries keep the file order.
func ParseDocument(b []byte) (*Document, error) {
	var fields map[string]json.RawMessage
	err := json.Unmarshal(b, &fields)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction json: %v", err)
	}

	tx := fields[documentKeyTransaction]
	if !isJSONObject(tx) {
		return nil, fmt.Errorf("transaction json without transaction")
	}
	mc := fields[documentKeyMultisigConfigs]
	if !isJSONObject(mc) {
		return nil, fmt.Errorf("transaction json without multisig_configs")
	}
	entries, err := decodeMultisigEntries(mc)
	if err != nil {
		return nil, err
	}

	signatures := make(map[string][]string)
	if raw := fields[documentKeySignatures]; len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		err = json.Unmarshal(raw, &signatures)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction signatures: %v", err)
		}
	}

	return &Document{
		Transaction: tx,
		Multisig:    entries,
		Signatures:  signatures,
		fields:      fields,
	}, nil
}

func (d *Document) MultisigParams(args string) *MultisigParams {
	e := d.multisigEntry(args)
	if e == nil {
		return nil
	}
	return e.Params
}

// SetSignatures replaces the signatures declared for args, keyed by the args
// as spelled in the multisig declaration of the file.
func (d *Document) SetSignatures(args string, signatures []string) {
	key := args
	if e := d.multisigEntry(args); e != nil {
		key = e.Args
	}
	for k := range d.Signatures {
		if strings.EqualFold(k, args) {
			delete(d.Signatures, k)
		}
	}
	d.Signatures[key] = signatures
}

func (d *Document) multisigEntry(args string) *MultisigEntry {
	for _, e := range d.Multisig {
		if strings.EqualFold(e.Args, args) {
			return e
		}
	}
	return nil
}

func (d *Document) Marshal() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(d.fields)+1)
	for k, v := range d.fields {
		fields[k] = v
	}
	sigs, err := json.Marshal(d.Signatures)
	if err != nil {
		return nil, err
	}
	fields[documentKeySignatures] = sigs
	return json.MarshalIndent(fields, "", "  ")
}

func decodeMultisigEntries(raw json.RawMessage) ([]*MultisigEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("invalid multisig_configs %s", string(raw))
	}

	var entries []*MultisigEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		args, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("invalid multisig_configs key %v", tok)
		}
		var params MultisigParams
		err = dec.Decode(&params)
		if err != nil {
			return nil, fmt.Errorf("invalid multisig_configs %s: %v", args, err)
		}
		entries = append(entries, &MultisigEntry{Args: args, Params: &params})
	}
	_, err = dec.Token()
	if err != nil && err != io.EOF {
		return nil, err
	}
	return entries, nil
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 1 && raw[0] == '{'
}
