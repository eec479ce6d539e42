// Package ports declares the collaborators the ledger service consumes. Store
// adapters implement Repository and Transactor; event publishers implement
// EventSink.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Repository,Transactor,EventSink

import (
	"context"

	custody "coldchain/internal/custody/models"
	dosing "coldchain/internal/dosing/models"
	"coldchain/internal/settlement"
	id "coldchain/pkg/domain"
	"coldchain/pkg/platform/events"
)

// Repository loads and saves aggregates by identifier.
//
// Find* return sentinel.ErrNotFound when the aggregate is absent. Save* create
// the aggregate when its Version is zero (sentinel.ErrAlreadyExists if the id is
// taken) and otherwise update it only if the stored Version matches
// (sentinel.ErrConflict if not). A successful save increments Version.
type Repository interface {
	FindDrug(ctx context.Context, vialID id.VialID) (*custody.DrugUnit, error)
	SaveDrug(ctx context.Context, drug *custody.DrugUnit) error

	FindTransfer(ctx context.Context, transferID id.TransferID) (*custody.CustodyTransfer, error)
	SaveTransfer(ctx context.Context, transfer *custody.CustodyTransfer) error

	FindPatient(ctx context.Context, patientID id.PatientID) (*dosing.PatientRecord, error)
	SavePatient(ctx context.Context, patient *dosing.PatientRecord) error

	FindParticipant(ctx context.Context, participantID id.ParticipantID) (*settlement.Participant, error)
	SaveParticipant(ctx context.Context, participant *settlement.Participant) error
}

// Transactor provides the atomic boundary of one ledger transaction: every
// save made through repo inside fn commits together or not at all.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(repo Repository) error) error
}

// EventSink publishes domain events. Delivery is fire-and-forget and
// at-least-once is acceptable.
type EventSink interface {
	Publish(ctx context.Context, event events.Event) error
}
