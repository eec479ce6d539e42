// Package events defines the notifications the ledger emits after a committed
// transaction. Keep it transport-agnostic so sinks can fan out.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names what happened.
type Kind string

const (
	KindParticipantRegistered Kind = "participant_registered"

	KindPatientEnrolled Kind = "patient_enrolled"
	KindPatientUpdated  Kind = "patient_updated"

	KindDrugProduced  Kind = "drug_produced"
	KindDrugPacked    Kind = "drug_packed"
	KindDrugUnpacked  Kind = "drug_unpacked"
	KindDrugDiscarded Kind = "drug_discarded"

	KindShipmentDispatched Kind = "shipment_dispatched"
	KindShipmentReceived   Kind = "shipment_received"
	KindTemperatureAudited Kind = "temperature_audited"
	KindPaymentSettled     Kind = "payment_settled"
	KindInjectionRecorded  Kind = "injection_recorded"
)

// Aggregate types an event can be about.
const (
	AggregateDrug        = "drug"
	AggregateTransfer    = "transfer"
	AggregatePatient     = "patient"
	AggregateParticipant = "participant"
)

// Event is one notification. ID is unique per event so consumers can
// deduplicate redeliveries.
type Event struct {
	ID            uuid.UUID         `json:"id"`
	Kind          Kind              `json:"kind"`
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// New builds an event with a fresh ID.
func New(kind Kind, aggregateType, aggregateID string, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:            uuid.New(),
		Kind:          kind,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    at,
		Attributes:    attrs,
	}
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Fanout publishes to every sink and returns the first error after trying all
// of them.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var first error
	for _, sink := range f {
		if err := sink.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
