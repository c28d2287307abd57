package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/pkg/errors"
)

type legacyDatabase struct {
	NextTxId     int64                `json:"next_tx_id"`
	Transactions []*legacyTransaction `json:"tx"`
}

type legacyTransaction struct {
	Id             string       `json:"id"`
	TxHash         string       `json:"tx_hash"`
	Signed         []*Signature `json:"signed"`
	TxJSONPath     string       `json:"tx_json_path"`
	MultisigType   string       `json:"multisig_type"`
	MultisigConfig struct {
		Script ckb.Script `json:"script"`
		Config struct {
			SighashAddresses []string `json:"sighash_addresses"`
			RequireFirstN    int      `json:"require_first_n"`
			Threshold        int      `json:"threshold"`
		} `json:"config"`
	} `json:"multisig_config"`
	Digest       string  `json:"digest"`
	Description  string  `json:"description"`
	UploadedBy   string  `json:"uploaded_by"`
	UploadedAt   string  `json:"uploaded_at"`
	PushedAt     *string `json:"pushed_at"`
	CommittedAt  *string `json:"committed_at"`
	RejectedAt   *string `json:"rejected_at"`
	RejectReason *string `json:"reject_reason"`
}

// ImportLegacyDatabase reads the JSON document database of earlier releases
// and writes every transaction not yet present. It returns the number of
// records written.
func (s *SQLite3Store) ImportLegacyDatabase(ctx context.Context, data []byte) (int, error) {
	var legacy legacyDatabase
	err := json.Unmarshal(data, &legacy)
	if err != nil {
		return 0, errors.Wrapf(common.ErrValidation, "legacy database %v", err)
	}

	var records []*Record
	for _, lt := range legacy.Transactions {
		r, err := lt.record()
		if err != nil {
			return 0, errors.Wrapf(common.ErrValidation, "legacy transaction %s %v", lt.Id, err)
		}
		records = append(records, r)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistenceError(err)
	}
	defer common.Rollback(tx)

	next, count := legacy.NextTxId, 0
	for _, r := range records {
		if r.Sequence >= next {
			next = r.Sequence + 1
		}
		query := "SELECT record_id FROM records WHERE record_id=? OR source_reference=?"
		existed, err := s.checkExistence(ctx, tx, query, r.Id, r.SourceReference)
		if err != nil {
			return 0, persistenceError(err)
		}
		if existed {
			logger.Printf("SQLite3Store.ImportLegacyDatabase(%s) skipped", r.Id)
			continue
		}
		err = s.execOne(ctx, tx, buildInsertionSQL("records", recordCols), r.values()...)
		if err != nil {
			return 0, persistenceError(fmt.Errorf("SQLite3Store INSERT records %v", err))
		}
		count += 1
	}

	var v string
	row := tx.QueryRowContext(ctx, "SELECT value FROM properties WHERE key=?", propertyNextRecordId)
	err = row.Scan(&v)
	if err != nil && err != sql.ErrNoRows {
		return 0, persistenceError(err)
	}
	var current int64
	if v != "" {
		current, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, persistenceError(fmt.Errorf("invalid property %s %s", propertyNextRecordId, v))
		}
	}
	if next > current {
		err = s.writeRecordSequence(ctx, tx, next)
		if err != nil {
			return 0, persistenceError(err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return 0, persistenceError(err)
	}
	return count, nil
}

func (lt *legacyTransaction) record() (*Record, error) {
	seq, valid := RecordSequenceFromId(lt.Id)
	if !valid {
		return nil, fmt.Errorf("invalid id %s", lt.Id)
	}
	hash, valid := common.NormalizeHex(lt.TxHash)
	if !valid || len(hash) != 66 {
		return nil, fmt.Errorf("invalid hash %s", lt.TxHash)
	}
	if lt.TxJSONPath == "" {
		return nil, fmt.Errorf("empty path")
	}

	script := lt.MultisigConfig.Script
	err := script.Normalize()
	if err != nil {
		return nil, err
	}
	config := &MultisigConfig{
		CodeHash:      script.CodeHash,
		HashType:      script.HashType,
		Args:          script.Args,
		RequireFirstN: lt.MultisigConfig.Config.RequireFirstN,
		Threshold:     lt.MultisigConfig.Config.Threshold,
	}
	for _, addr := range lt.MultisigConfig.Config.SighashAddresses {
		signer, _, err := ckb.DecodeAddress(addr)
		if err != nil {
			return nil, err
		}
		config.Signers = append(config.Signers, signer.Args)
	}

	uploadedAt, err := parseLegacyTime(&lt.UploadedAt)
	if err != nil || !uploadedAt.Valid {
		return nil, fmt.Errorf("invalid uploaded_at %s", lt.UploadedAt)
	}
	r := &Record{
		Id:              lt.Id,
		Sequence:        seq,
		TxHash:          hash,
		SourceReference: legacySourceReference(lt.TxJSONPath),
		Config:          config,
		MultisigType:    lt.MultisigType,
		Digest:          lt.Digest,
		Description:     lt.Description,
		UploadedBy:      lt.UploadedBy,
		Signatures:      lt.Signed,
		State:           RecordStateUploaded,
		UploadedAt:      uploadedAt.Time,
		Version:         1,
		UpdatedAt:       time.Now().UTC(),
	}
	if r.MultisigType == "" {
		r.MultisigType = MultisigTypeUnknown
	}
	for _, sig := range r.Signatures {
		sig.Signer = strings.ToLower(sig.Signer)
	}

	r.PushedAt, err = parseLegacyTime(lt.PushedAt)
	if err != nil {
		return nil, err
	}
	r.CommittedAt, err = parseLegacyTime(lt.CommittedAt)
	if err != nil {
		return nil, err
	}
	r.RejectedAt, err = parseLegacyTime(lt.RejectedAt)
	if err != nil {
		return nil, err
	}
	if lt.RejectReason != nil {
		r.RejectReason = sql.NullString{String: *lt.RejectReason, Valid: true}
	}
	switch {
	case r.CommittedAt.Valid:
		r.State = RecordStateCommitted
	case r.RejectedAt.Valid:
		r.State = RecordStateRejected
	case r.PushedAt.Valid:
		r.State = RecordStatePushed
	}
	return r, nil
}

// Legacy records keep absolute document paths, the last two elements are the
// date directory and file name under the transactions directory.
func legacySourceReference(p string) string {
	parts := strings.Split(strings.Trim(filepath.ToSlash(p), "/"), "/")
	if len(parts) < 2 {
		return parts[0]
	}
	return path.Join(parts[len(parts)-2:]...)
}

func parseLegacyTime(s *string) (sql.NullTime, error) {
	if s == nil || *s == "" {
		return sql.NullTime{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return sql.NullTime{}, err
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}, nil
}
