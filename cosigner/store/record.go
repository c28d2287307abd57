package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/apps/ckb"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/pkg/errors"
)

const (
	RecordStateUploaded  = 1
	RecordStatePushed    = 2
	RecordStateCommitted = 3
	RecordStateRejected  = 4

	MultisigTypeUnknown = "unknown"

	recordIdPrefix       = "tx-"
	propertyNextRecordId = "next-record-id"
)

var recordStateNames = map[int]string{
	RecordStateUploaded:  "uploaded",
	RecordStatePushed:    "pushed",
	RecordStateCommitted: "committed",
	RecordStateRejected:  "rejected",
}

type MultisigConfig struct {
	CodeHash      string   `toml:"code-hash" json:"code_hash"`
	HashType      string   `toml:"hash-type" json:"hash_type"`
	Args          string   `toml:"args" json:"args"`
	Signers       []string `toml:"signers" json:"signers"`
	RequireFirstN int      `toml:"require-first-n" json:"require_first_n"`
	Threshold     int      `toml:"threshold" json:"threshold"`
}

func (mc *MultisigConfig) Script() *ckb.Script {
	return &ckb.Script{CodeHash: mc.CodeHash, HashType: mc.HashType, Args: mc.Args}
}

func (mc *MultisigConfig) Key() string {
	return ckb.ScriptKey(mc.CodeHash, mc.Args)
}

func (mc *MultisigConfig) HasSigner(signer string) bool {
	return slices.Contains(mc.Signers, strings.ToLower(signer))
}

type Signature struct {
	Signer    string `json:"lock_args"`
	Signature string `json:"signature"`
}

type Record struct {
	Id              string
	Sequence        int64
	TxHash          string
	SourceReference string
	Config          *MultisigConfig
	MultisigType    string
	Digest          string
	Description     string
	UploadedBy      string
	Signatures      []*Signature
	State           int
	RejectReason    sql.NullString
	UploadedAt      time.Time
	PushedAt        sql.NullTime
	CommittedAt     sql.NullTime
	RejectedAt      sql.NullTime
	Version         int64
	UpdatedAt       time.Time
}

var recordCols = []string{"record_id", "sequence", "transaction_hash", "source_reference", "multisig_config", "multisig_type", "digest", "description", "uploaded_by", "signatures", "state", "reject_reason", "uploaded_at", "pushed_at", "committed_at", "rejected_at", "version", "updated_at"}

func (r *Record) values() []any {
	config := common.MarshalJSONOrPanic(r.Config)
	signatures := common.MarshalJSONOrPanic(r.signatures())
	return []any{r.Id, r.Sequence, r.TxHash, r.SourceReference, string(config), r.MultisigType, r.Digest, r.Description, r.UploadedBy, string(signatures), r.State, r.RejectReason, r.UploadedAt, r.PushedAt, r.CommittedAt, r.RejectedAt, r.Version, r.UpdatedAt}
}

func (r *Record) signatures() []*Signature {
	if r.Signatures == nil {
		return []*Signature{}
	}
	return r.Signatures
}

func recordFromRow(row Row) (*Record, error) {
	var r Record
	var config, signatures string
	err := row.Scan(&r.Id, &r.Sequence, &r.TxHash, &r.SourceReference, &config, &r.MultisigType, &r.Digest, &r.Description, &r.UploadedBy, &signatures, &r.State, &r.RejectReason, &r.UploadedAt, &r.PushedAt, &r.CommittedAt, &r.RejectedAt, &r.Version, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	err = json.Unmarshal([]byte(config), &r.Config)
	if err != nil {
		return nil, fmt.Errorf("record %s multisig_config %v", r.Id, err)
	}
	err = json.Unmarshal([]byte(signatures), &r.Signatures)
	if err != nil {
		return nil, fmt.Errorf("record %s signatures %v", r.Id, err)
	}
	return &r, nil
}

func (r *Record) StateName() string {
	return RecordStateName(r.State)
}

func (r *Record) Finalized() bool {
	return r.State == RecordStateCommitted || r.State == RecordStateRejected
}

func RecordStateName(state int) string {
	name, ok := recordStateNames[state]
	if !ok {
		panic(state)
	}
	return name
}

func RecordIdFromSequence(seq int64) string {
	return fmt.Sprintf("%s%d", recordIdPrefix, seq)
}

func RecordSequenceFromId(id string) (int64, bool) {
	if !strings.HasPrefix(id, recordIdPrefix) {
		return 0, false
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(id, recordIdPrefix), 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

// InsertOrReplaceRecord keeps at most one live record per source reference.
// A replacement keeps the record id and resets the signatures, and is only
// allowed while the record is still uploaded. A record with the same
// transaction hash under another source reference is rejected as duplicate.
func (s *SQLite3Store) InsertOrReplaceRecord(ctx context.Context, r *Record) (*Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistenceError(err)
	}
	defer common.Rollback(tx)

	query := fmt.Sprintf("SELECT %s FROM records WHERE transaction_hash=? AND source_reference!=? LIMIT 1", strings.Join(recordCols, ","))
	dup, err := recordFromRow(tx.QueryRowContext(ctx, query, r.TxHash, r.SourceReference))
	if err != nil {
		return nil, persistenceError(err)
	}
	if dup != nil {
		return nil, errors.Wrapf(common.ErrDuplicate, "transaction %s exists as %s (%s)", r.TxHash, dup.Id, dup.SourceReference)
	}

	query = fmt.Sprintf("SELECT %s FROM records WHERE source_reference=?", strings.Join(recordCols, ","))
	old, err := recordFromRow(tx.QueryRowContext(ctx, query, r.SourceReference))
	if err != nil {
		return nil, persistenceError(err)
	}
	if old != nil && old.State != RecordStateUploaded {
		return nil, errors.Wrapf(common.ErrPreconditionFailed, "transaction %s already finalized (%s)", old.Id, old.StateName())
	}

	now := time.Now().UTC()
	nr := *r
	nr.Signatures = []*Signature{}
	nr.State = RecordStateUploaded
	nr.RejectReason = sql.NullString{}
	nr.PushedAt = sql.NullTime{}
	nr.CommittedAt = sql.NullTime{}
	nr.RejectedAt = sql.NullTime{}
	nr.UpdatedAt = now
	if nr.UploadedAt.IsZero() {
		nr.UploadedAt = now
	}

	if old != nil {
		nr.Id, nr.Sequence, nr.Version = old.Id, old.Sequence, old.Version+1
		query := "UPDATE records SET transaction_hash=?, multisig_config=?, multisig_type=?, digest=?, description=?, uploaded_by=?, signatures=?, state=?, reject_reason=NULL, uploaded_at=?, pushed_at=NULL, committed_at=NULL, rejected_at=NULL, version=?, updated_at=? WHERE record_id=? AND version=?"
		err = s.execOne(ctx, tx, query, nr.TxHash, string(common.MarshalJSONOrPanic(nr.Config)), nr.MultisigType, nr.Digest, nr.Description, nr.UploadedBy, "[]", nr.State, nr.UploadedAt, nr.Version, now, old.Id, old.Version)
		if err != nil {
			return nil, persistenceError(fmt.Errorf("SQLite3Store UPDATE records %v", err))
		}
		logger.Printf("SQLite3Store.InsertOrReplaceRecord(%s, %s) replaced %s", nr.SourceReference, nr.TxHash, old.TxHash)
	} else {
		seq, err := s.nextRecordSequence(ctx, tx)
		if err != nil {
			return nil, persistenceError(err)
		}
		nr.Id, nr.Sequence, nr.Version = RecordIdFromSequence(seq), seq, 1
		err = s.execOne(ctx, tx, buildInsertionSQL("records", recordCols), nr.values()...)
		if err != nil {
			return nil, persistenceError(fmt.Errorf("SQLite3Store INSERT records %v", err))
		}
		logger.Printf("SQLite3Store.InsertOrReplaceRecord(%s, %s) => %s", nr.SourceReference, nr.TxHash, nr.Id)
	}

	err = tx.Commit()
	if err != nil {
		return nil, persistenceError(err)
	}
	return &nr, nil
}

// UpdateRecord writes the mutable fields of r if the stored version still
// equals r.Version, and bumps the version on success.
func (s *SQLite3Store) UpdateRecord(ctx context.Context, r *Record) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError(err)
	}
	defer common.Rollback(tx)

	var version int64
	row := tx.QueryRowContext(ctx, "SELECT version FROM records WHERE record_id=?", r.Id)
	err = row.Scan(&version)
	if err == sql.ErrNoRows {
		return errors.Wrapf(common.ErrNotFound, "record %s", r.Id)
	} else if err != nil {
		return persistenceError(err)
	}
	if version != r.Version {
		return errors.Wrapf(common.ErrConflict, "record %s version %d != %d", r.Id, r.Version, version)
	}

	now := time.Now().UTC()
	signatures := common.MarshalJSONOrPanic(r.signatures())
	query := "UPDATE records SET signatures=?, state=?, reject_reason=?, pushed_at=?, committed_at=?, rejected_at=?, version=?, updated_at=? WHERE record_id=? AND version=?"
	err = s.execOne(ctx, tx, query, string(signatures), r.State, r.RejectReason, r.PushedAt, r.CommittedAt, r.RejectedAt, r.Version+1, now, r.Id, r.Version)
	if err != nil {
		return persistenceError(fmt.Errorf("SQLite3Store UPDATE records %v", err))
	}

	err = tx.Commit()
	if err != nil {
		return persistenceError(err)
	}
	r.Version = r.Version + 1
	r.UpdatedAt = now
	return nil
}

func (s *SQLite3Store) ReadRecord(ctx context.Context, id string) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM records WHERE record_id=?", strings.Join(recordCols, ","))
	row := s.db.QueryRowContext(ctx, query, id)
	return recordFromRow(row)
}

func (s *SQLite3Store) ReadRecordByHash(ctx context.Context, hash string) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM records WHERE transaction_hash=? ORDER BY sequence ASC LIMIT 1", strings.Join(recordCols, ","))
	row := s.db.QueryRowContext(ctx, query, strings.ToLower(hash))
	return recordFromRow(row)
}

func (s *SQLite3Store) ReadRecordBySource(ctx context.Context, ref string) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM records WHERE source_reference=?", strings.Join(recordCols, ","))
	row := s.db.QueryRowContext(ctx, query, ref)
	return recordFromRow(row)
}

func (s *SQLite3Store) ListRecords(ctx context.Context) ([]*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM records ORDER BY sequence ASC", strings.Join(recordCols, ","))
	return s.listRecords(ctx, query)
}

func (s *SQLite3Store) ListRecordsByState(ctx context.Context, state int) ([]*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM records WHERE state=? ORDER BY sequence ASC", strings.Join(recordCols, ","))
	return s.listRecords(ctx, query, state)
}

func (s *SQLite3Store) listRecords(ctx context.Context, query string, params ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := recordFromRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite3Store) nextRecordSequence(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64 = 1
	var v string
	row := tx.QueryRowContext(ctx, "SELECT value FROM properties WHERE key=?", propertyNextRecordId)
	err := row.Scan(&v)
	if err == sql.ErrNoRows {
	} else if err != nil {
		return 0, err
	} else {
		seq, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid property %s %s", propertyNextRecordId, v)
		}
	}
	err = s.writeRecordSequence(ctx, tx, seq+1)
	return seq, err
}

func (s *SQLite3Store) writeRecordSequence(ctx context.Context, tx *sql.Tx, next int64) error {
	now := time.Now().UTC()
	existed, err := s.checkExistence(ctx, tx, "SELECT value FROM properties WHERE key=?", propertyNextRecordId)
	if err != nil {
		return err
	}
	if existed {
		return s.execOne(ctx, tx, "UPDATE properties SET value=?, updated_at=? WHERE key=?", fmt.Sprint(next), now, propertyNextRecordId)
	}
	cols := []string{"key", "value", "created_at", "updated_at"}
	return s.execOne(ctx, tx, buildInsertionSQL("properties", cols), propertyNextRecordId, fmt.Sprint(next), now, now)
}

func persistenceError(err error) error {
	return errors.Wrap(common.ErrPersistence, err.Error())
}
