// Package redis keeps ledger aggregates as JSON strings. Transactions are
// optimistic: every key read or written is WATCHed and the writes go out in
// one MULTI/EXEC, which fails if any watched key moved.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	custody "coldchain/internal/custody/models"
	dosing "coldchain/internal/dosing/models"
	"coldchain/internal/ledger/ports"
	"coldchain/internal/settlement"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/sentinel"
)

const defaultPrefix = "coldchain"

// Store implements ports.Repository and ports.Transactor.
type Store struct {
	client redis.UniversalClient
	prefix string
}

type Option func(*Store)

// WithKeyPrefix namespaces every key, for sharing one Redis between deployments.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(kind, key string) string {
	return s.prefix + ":" + kind + ":" + key
}

// RunInTx collects fn's writes and applies them atomically. A concurrent change
// to any key fn touched makes it fail with sentinel.ErrConflict.
func (s *Store) RunInTx(ctx context.Context, fn func(repo ports.Repository) error) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		r := &txRepo{store: s, tx: tx, staged: map[string][]byte{}}
		if err := fn(r); err != nil {
			return err
		}
		if len(r.staged) == 0 {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range r.order {
				pipe.Set(ctx, key, r.staged[key], 0)
			}
			return nil
		})
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return sentinel.ErrConflict
	}
	return err
}

type txRepo struct {
	store  *Store
	tx     *redis.Tx
	staged map[string][]byte
	order  []string
}

// versionOnly reads just the version out of any aggregate document.
type versionOnly struct {
	Version int64 `json:"version"`
}

func (r *txRepo) get(ctx context.Context, key string) ([]byte, error) {
	if raw, ok := r.staged[key]; ok {
		return raw, nil
	}
	if err := r.tx.Watch(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}
	raw, err := r.tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return raw, nil
}

func (r *txRepo) load(ctx context.Context, key string, into any) error {
	raw, err := r.get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode "+key)
	}
	return nil
}

func (r *txRepo) save(ctx context.Context, key string, version *int64, doc any) error {
	raw, err := r.get(ctx, key)
	exists := err == nil
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	switch {
	case *version == 0 && exists:
		return sentinel.ErrAlreadyExists
	case *version != 0 && !exists:
		return sentinel.ErrNotFound
	case *version != 0:
		var current versionOnly
		if err := json.Unmarshal(raw, &current); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "decode "+key)
		}
		if current.Version != *version {
			return sentinel.ErrConflict
		}
	}

	*version++
	encoded, err := json.Marshal(doc)
	if err != nil {
		*version--
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode "+key)
	}
	if _, seen := r.staged[key]; !seen {
		r.order = append(r.order, key)
	}
	r.staged[key] = encoded
	return nil
}

func (r *txRepo) FindDrug(ctx context.Context, vialID id.VialID) (*custody.DrugUnit, error) {
	var d custody.DrugUnit
	if err := r.load(ctx, r.store.key("drug", vialID.String()), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *txRepo) SaveDrug(ctx context.Context, drug *custody.DrugUnit) error {
	if err := drug.CheckInvariants(); err != nil {
		return err
	}
	return r.save(ctx, r.store.key("drug", drug.ID.String()), &drug.Version, drug)
}

func (r *txRepo) FindTransfer(ctx context.Context, transferID id.TransferID) (*custody.CustodyTransfer, error) {
	var t custody.CustodyTransfer
	if err := r.load(ctx, r.store.key("transfer", transferID.String()), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *txRepo) SaveTransfer(ctx context.Context, transfer *custody.CustodyTransfer) error {
	return r.save(ctx, r.store.key("transfer", transfer.ID.String()), &transfer.Version, transfer)
}

func (r *txRepo) FindPatient(ctx context.Context, patientID id.PatientID) (*dosing.PatientRecord, error) {
	var p dosing.PatientRecord
	if err := r.load(ctx, r.store.key("patient", patientID.String()), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *txRepo) SavePatient(ctx context.Context, patient *dosing.PatientRecord) error {
	if err := patient.CheckSchedule(); err != nil {
		return err
	}
	return r.save(ctx, r.store.key("patient", patient.ID.String()), &patient.Version, patient)
}

func (r *txRepo) FindParticipant(ctx context.Context, participantID id.ParticipantID) (*settlement.Participant, error) {
	var p settlement.Participant
	if err := r.load(ctx, r.store.key("participant", participantID.String()), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *txRepo) SaveParticipant(ctx context.Context, participant *settlement.Participant) error {
	return r.save(ctx, r.store.key("participant", participant.ID.String()), &participant.Version, participant)
}

// Single-aggregate access outside a caller's transaction.

func (s *Store) FindDrug(ctx context.Context, vialID id.VialID) (drug *custody.DrugUnit, err error) {
	err = s.RunInTx(ctx, func(repo ports.Repository) error {
		drug, err = repo.FindDrug(ctx, vialID)
		return err
	})
	return drug, err
}

func (s *Store) SaveDrug(ctx context.Context, drug *custody.DrugUnit) error {
	return s.RunInTx(ctx, func(repo ports.Repository) error { return repo.SaveDrug(ctx, drug) })
}

func (s *Store) FindTransfer(ctx context.Context, transferID id.TransferID) (transfer *custody.CustodyTransfer, err error) {
	err = s.RunInTx(ctx, func(repo ports.Repository) error {
		transfer, err = repo.FindTransfer(ctx, transferID)
		return err
	})
	return transfer, err
}

func (s *Store) SaveTransfer(ctx context.Context, transfer *custody.CustodyTransfer) error {
	return s.RunInTx(ctx, func(repo ports.Repository) error { return repo.SaveTransfer(ctx, transfer) })
}

func (s *Store) FindPatient(ctx context.Context, patientID id.PatientID) (patient *dosing.PatientRecord, err error) {
	err = s.RunInTx(ctx, func(repo ports.Repository) error {
		patient, err = repo.FindPatient(ctx, patientID)
		return err
	})
	return patient, err
}

func (s *Store) SavePatient(ctx context.Context, patient *dosing.PatientRecord) error {
	return s.RunInTx(ctx, func(repo ports.Repository) error { return repo.SavePatient(ctx, patient) })
}

func (s *Store) FindParticipant(ctx context.Context, participantID id.ParticipantID) (participant *settlement.Participant, err error) {
	err = s.RunInTx(ctx, func(repo ports.Repository) error {
		participant, err = repo.FindParticipant(ctx, participantID)
		return err
	})
	return participant, err
}

func (s *Store) SaveParticipant(ctx context.Context, participant *settlement.Participant) error {
	return s.RunInTx(ctx, func(repo ports.Repository) error { return repo.SaveParticipant(ctx, participant) })
}
