// Package memory is an in-process ledger store. Transactions are serialised
// with one lock and writes are staged until the transaction function returns
// without error.
package memory

import (
	"context"
	"sync"

	custody "coldchain/internal/custody/models"
	dosing "coldchain/internal/dosing/models"
	"coldchain/internal/ledger/ports"
	"coldchain/internal/settlement"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/sentinel"
)

// table holds committed rows of one aggregate type.
type table[K comparable, V any] struct {
	rows    map[K]V
	clone   func(V) V
	version func(V) *int64
}

func newTable[K comparable, V any](clone func(V) V, version func(V) *int64) *table[K, V] {
	return &table[K, V]{rows: make(map[K]V), clone: clone, version: version}
}

// staged is one transaction's pending writes to a table.
type staged[K comparable, V any] struct {
	t      *table[K, V]
	writes map[K]V
}

func (s *staged[K, V]) find(key K) (V, error) {
	if v, ok := s.writes[key]; ok {
		return s.t.clone(v), nil
	}
	if v, ok := s.t.rows[key]; ok {
		return s.t.clone(v), nil
	}
	var zero V
	return zero, sentinel.ErrNotFound
}

func (s *staged[K, V]) save(key K, v V) error {
	current, err := s.find(key)
	exists := err == nil
	version := s.t.version(v)
	switch {
	case *version == 0 && exists:
		return sentinel.ErrAlreadyExists
	case *version != 0 && !exists:
		return sentinel.ErrNotFound
	case *version != 0 && *s.t.version(current) != *version:
		return sentinel.ErrConflict
	}
	*version++
	s.writes[key] = s.t.clone(v)
	return nil
}

func (s *staged[K, V]) commit() {
	for k, v := range s.writes {
		s.t.rows[k] = v
	}
}

// Store implements ports.Repository and ports.Transactor.
type Store struct {
	mu           sync.Mutex
	drugs        *table[id.VialID, *custody.DrugUnit]
	transfers    *table[id.TransferID, *custody.CustodyTransfer]
	patients     *table[id.PatientID, *dosing.PatientRecord]
	participants *table[id.ParticipantID, *settlement.Participant]
}

func New() *Store {
	return &Store{
		drugs: newTable[id.VialID](
			(*custody.DrugUnit).Clone,
			func(d *custody.DrugUnit) *int64 { return &d.Version }),
		transfers: newTable[id.TransferID](
			(*custody.CustodyTransfer).Clone,
			func(t *custody.CustodyTransfer) *int64 { return &t.Version }),
		patients: newTable[id.PatientID](
			(*dosing.PatientRecord).Clone,
			func(p *dosing.PatientRecord) *int64 { return &p.Version }),
		participants: newTable[id.ParticipantID](
			(*settlement.Participant).Clone,
			func(p *settlement.Participant) *int64 { return &p.Version }),
	}
}

type txRepo struct {
	drugs        *staged[id.VialID, *custody.DrugUnit]
	transfers    *staged[id.TransferID, *custody.CustodyTransfer]
	patients     *staged[id.PatientID, *dosing.PatientRecord]
	participants *staged[id.ParticipantID, *settlement.Participant]
}

func (s *Store) begin() *txRepo {
	return &txRepo{
		drugs:        &staged[id.VialID, *custody.DrugUnit]{t: s.drugs, writes: map[id.VialID]*custody.DrugUnit{}},
		transfers:    &staged[id.TransferID, *custody.CustodyTransfer]{t: s.transfers, writes: map[id.TransferID]*custody.CustodyTransfer{}},
		patients:     &staged[id.PatientID, *dosing.PatientRecord]{t: s.patients, writes: map[id.PatientID]*dosing.PatientRecord{}},
		participants: &staged[id.ParticipantID, *settlement.Participant]{t: s.participants, writes: map[id.ParticipantID]*settlement.Participant{}},
	}
}

func (r *txRepo) commit() {
	r.drugs.commit()
	r.transfers.commit()
	r.patients.commit()
	r.participants.commit()
}

// RunInTx runs fn against a private view of the store. Its writes become
// visible to others only if fn returns nil and ctx is still live.
func (s *Store) RunInTx(ctx context.Context, fn func(repo ports.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	repo := s.begin()
	if err := fn(repo); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	repo.commit()
	return nil
}

func (r *txRepo) FindDrug(_ context.Context, vialID id.VialID) (*custody.DrugUnit, error) {
	return r.drugs.find(vialID)
}

func (r *txRepo) SaveDrug(_ context.Context, drug *custody.DrugUnit) error {
	if err := drug.CheckInvariants(); err != nil {
		return err
	}
	return r.drugs.save(drug.ID, drug)
}

func (r *txRepo) FindTransfer(_ context.Context, transferID id.TransferID) (*custody.CustodyTransfer, error) {
	return r.transfers.find(transferID)
}

func (r *txRepo) SaveTransfer(_ context.Context, transfer *custody.CustodyTransfer) error {
	return r.transfers.save(transfer.ID, transfer)
}

func (r *txRepo) FindPatient(_ context.Context, patientID id.PatientID) (*dosing.PatientRecord, error) {
	return r.patients.find(patientID)
}

func (r *txRepo) SavePatient(_ context.Context, patient *dosing.PatientRecord) error {
	if err := patient.CheckSchedule(); err != nil {
		return err
	}
	return r.patients.save(patient.ID, patient)
}

func (r *txRepo) FindParticipant(_ context.Context, participantID id.ParticipantID) (*settlement.Participant, error) {
	return r.participants.find(participantID)
}

func (r *txRepo) SaveParticipant(_ context.Context, participant *settlement.Participant) error {
	return r.participants.save(participant.ID, participant)
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
