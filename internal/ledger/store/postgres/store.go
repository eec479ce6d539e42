// Package postgres persists ledger aggregates as versioned JSONB documents,
// one table per aggregate type.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	custody "coldchain/internal/custody/models"
	dosing "coldchain/internal/dosing/models"
	"coldchain/internal/ledger/ports"
	"coldchain/internal/settlement"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/sentinel"
	txcontext "coldchain/pkg/platform/tx"
)

// Schema creates the aggregate tables. Status columns are copies of the
// document field, kept for operational queries.
const Schema = `
CREATE TABLE IF NOT EXISTS drugs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	version    BIGINT NOT NULL,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS transfers (
	id         TEXT PRIMARY KEY,
	vial_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	version    BIGINT NOT NULL,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transfers_vial_idx ON transfers (vial_id);
CREATE TABLE IF NOT EXISTS patients (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	version    BIGINT NOT NULL,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS participants (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	version    BIGINT NOT NULL,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Tables lists the tables Schema creates.
var Tables = []string{"drugs", "transfers", "patients", "participants"}

const uniqueViolation = "23505"

// Store implements ports.Repository and ports.Transactor.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

type Option func(*Store)

func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunInTx runs fn in a database transaction. If ctx already carries one, fn
// joins it and the outer owner commits.
func (s *Store) RunInTx(ctx context.Context, fn func(repo ports.Repository) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(&repo{q: tx, clock: s.clock})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&repo{q: tx, clock: s.clock}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) repo(ctx context.Context) *repo {
	return &repo{q: txcontext.Or(ctx, s.db), clock: s.clock}
}

func (s *Store) FindDrug(ctx context.Context, vialID id.VialID) (*custody.DrugUnit, error) {
	return s.repo(ctx).FindDrug(ctx, vialID)
}

func (s *Store) SaveDrug(ctx context.Context, drug *custody.DrugUnit) error {
	return s.repo(ctx).SaveDrug(ctx, drug)
}

func (s *Store) FindTransfer(ctx context.Context, transferID id.TransferID) (*custody.CustodyTransfer, error) {
	return s.repo(ctx).FindTransfer(ctx, transferID)
}

func (s *Store) SaveTransfer(ctx context.Context, transfer *custody.CustodyTransfer) error {
	return s.repo(ctx).SaveTransfer(ctx, transfer)
}

func (s *Store) FindPatient(ctx context.Context, patientID id.PatientID) (*dosing.PatientRecord, error) {
	return s.repo(ctx).FindPatient(ctx, patientID)
}

func (s *Store) SavePatient(ctx context.Context, patient *dosing.PatientRecord) error {
	return s.repo(ctx).SavePatient(ctx, patient)
}

func (s *Store) FindParticipant(ctx context.Context, participantID id.ParticipantID) (*settlement.Participant, error) {
	return s.repo(ctx).FindParticipant(ctx, participantID)
}

func (s *Store) SaveParticipant(ctx context.Context, participant *settlement.Participant) error {
	return s.repo(ctx).SaveParticipant(ctx, participant)
}

// repo runs queries on either the pool or one transaction.
type repo struct {
	q     txcontext.Querier
	clock func() time.Time
}

func (r *repo) FindDrug(ctx context.Context, vialID id.VialID) (*custody.DrugUnit, error) {
	var d custody.DrugUnit
	if err := r.load(ctx, "drugs", vialID.String(), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repo) SaveDrug(ctx context.Context, drug *custody.DrugUnit) error {
	if err := drug.CheckInvariants(); err != nil {
		return err
	}
	return r.save(ctx, "drugs", drug.ID.String(), string(drug.Status), &drug.Version, drug, nil)
}

func (r *repo) FindTransfer(ctx context.Context, transferID id.TransferID) (*custody.CustodyTransfer, error) {
	var t custody.CustodyTransfer
	if err := r.load(ctx, "transfers", transferID.String(), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) SaveTransfer(ctx context.Context, transfer *custody.CustodyTransfer) error {
	return r.save(ctx, "transfers", transfer.ID.String(), string(transfer.Status), &transfer.Version, transfer,
		map[string]string{"vial_id": transfer.VialID.String()})
}

func (r *repo) FindPatient(ctx context.Context, patientID id.PatientID) (*dosing.PatientRecord, error) {
	var p dosing.PatientRecord
	if err := r.load(ctx, "patients", patientID.String(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) SavePatient(ctx context.Context, patient *dosing.PatientRecord) error {
	if err := patient.CheckSchedule(); err != nil {
		return err
	}
	return r.save(ctx, "patients", patient.ID.String(), string(patient.Status), &patient.Version, patient, nil)
}

func (r *repo) FindParticipant(ctx context.Context, participantID id.ParticipantID) (*settlement.Participant, error) {
	var p settlement.Participant
	if err := r.load(ctx, "participants", participantID.String(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) SaveParticipant(ctx context.Context, participant *settlement.Participant) error {
	return r.save(ctx, "participants", participant.ID.String(), "ACTIVE", &participant.Version, participant, nil)
}

func (r *repo) load(ctx context.Context, table, key string, into any) error {
	var raw []byte
	err := r.q.QueryRowContext(ctx, `SELECT document FROM `+table+` WHERE id = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("load %s %s: %w", table, key, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode "+table+" document")
	}
	return nil
}

// save inserts when *version is zero and otherwise updates only the row at
// *version. On success *version is bumped to the stored value.
func (r *repo) save(ctx context.Context, table, key, status string, version *int64, doc any, extra map[string]string) error {
	expected := *version
	*version = expected + 1
	raw, err := json.Marshal(doc)
	if err != nil {
		*version = expected
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode "+table+" document")
	}
	now := r.clock()

	if expected == 0 {
		err = r.insert(ctx, table, key, status, *version, raw, now, extra)
	} else {
		err = r.update(ctx, table, key, status, expected, raw, now)
	}
	if err != nil {
		*version = expected
		return err
	}
	return nil
}

func (r *repo) insert(ctx context.Context, table, key, status string, version int64, raw []byte, now time.Time, extra map[string]string) error {
	var err error
	if table == "transfers" {
		_, err = r.q.ExecContext(ctx,
			`INSERT INTO transfers (id, vial_id, status, version, document, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			key, extra["vial_id"], status, version, raw, now)
	} else {
		_, err = r.q.ExecContext(ctx,
			`INSERT INTO `+table+` (id, status, version, document, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			key, status, version, raw, now)
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert %s %s: %w", table, key, err)
	}
	return nil
}

func (r *repo) update(ctx context.Context, table, key, status string, expected int64, raw []byte, now time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE `+table+` SET status = $1, version = version + 1, document = $2, updated_at = $3
		 WHERE id = $4 AND version = $5`,
		status, raw, now, key, expected)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", table, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %s: %w", table, key, err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, key).Scan(&exists); err != nil {
		return fmt.Errorf("check %s %s: %w", table, key, err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}
