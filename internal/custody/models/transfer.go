package models

import (
	"time"

	"coldchain/internal/custody/gate"
	"coldchain/internal/settlement"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
)

// Leg identifies which custody movement a transfer covers.
type Leg string

const (
	LegToStorage  Leg = "TO_STORAGE"
	LegToHospital Leg = "TO_HOSPITAL"
)

func (l Leg) IsValid() bool {
	return l == LegToStorage || l == LegToHospital
}

// TransferStatus is the lifecycle of a custody transfer.
type TransferStatus string

const (
	TransferInTransit TransferStatus = "IN_TRANSIT"
	TransferArrived   TransferStatus = "ARRIVED"
	TransferAborted   TransferStatus = "ABORTED"
)

func (s TransferStatus) IsValid() bool {
	switch s {
	case TransferInTransit, TransferArrived, TransferAborted:
		return true
	}
	return false
}

// CustodyTransfer is one leg of movement for one vial, bound to exactly one
// settlement contract for its whole lifetime.
//
// Invariants:
//   - ABORTED iff the dispatch-time audit failed; ABORTED is terminal
//   - ARRIVED is reached once, by Receive; ARRIVED is terminal
//   - SettledAt is set at most once and only on an ARRIVED transfer
type CustodyTransfer struct {
	ID                  id.TransferID       `json:"transfer_id"`
	Leg                 Leg                 `json:"leg"`
	VialID              id.VialID           `json:"vial_id"`
	ShipmentTemperature gate.Celsius        `json:"shipment_temperature"`
	ShippedAt           time.Time           `json:"shipped_at"`
	ReceivedAt          *time.Time          `json:"received_at,omitempty"`
	CarrierID           id.CarrierID        `json:"carrier_id"`
	ShipperID           id.ParticipantID    `json:"shipper_id"`
	ReceiverID          id.ParticipantID    `json:"receiver_id"`
	CourierID           id.ParticipantID    `json:"courier_id"`
	Contract            settlement.Contract `json:"contract"`
	Status              TransferStatus      `json:"status"`
	Signature           string              `json:"signature,omitempty"`
	ReceiptTemperature  *gate.Celsius       `json:"receipt_temperature,omitempty"`
	SettledAt           *time.Time          `json:"settled_at,omitempty"`
	Version             int64               `json:"version"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// DispatchSpec carries the facts of a dispatch.
type DispatchSpec struct {
	ID                  id.TransferID
	Leg                 Leg
	ShipmentTemperature gate.Celsius
	ShippedAt           time.Time
	CarrierID           id.CarrierID
	ShipperID           id.ParticipantID
	ReceiverID          id.ParticipantID
	CourierID           id.ParticipantID
	Contract            settlement.Contract
}

func (s DispatchSpec) validate(unit *DrugUnit) error {
	if s.ID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "transfer id is required")
	}
	if !s.Leg.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown transfer leg: "+string(s.Leg))
	}
	if unit == nil {
		return dErrors.New(dErrors.CodeValidation, "transfer requires a drug unit")
	}
	if s.CourierID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "courier is required")
	}
	if s.ShipperID.IsNil() || s.ReceiverID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "shipper and receiver are required")
	}
	if !s.ShipmentTemperature.IsFinite() {
		return dErrors.New(dErrors.CodeValidation, "shipment temperature must be a finite number")
	}
	if err := s.Contract.Validate(); err != nil {
		return err
	}
	if s.Contract.PayeeID != s.CourierID {
		return dErrors.New(dErrors.CodeValidation, "contract payee must be the courier")
	}
	return nil
}

// Dispatch builds a transfer for unit and runs the unit's dispatch audit for
// the leg. A failed audit still produces a transfer, in ABORTED, so the
// attempt is on record.
func Dispatch(spec DispatchSpec, unit *DrugUnit) (*CustodyTransfer, AuditResult, error) {
	if err := spec.validate(unit); err != nil {
		return nil, AuditResult{}, err
	}

	var (
		res AuditResult
		err error
	)
	switch spec.Leg {
	case LegToStorage:
		res, err = unit.DispatchToStorage(spec.ShipmentTemperature, spec.ShippedAt)
	case LegToHospital:
		res, err = unit.DispatchToHospital(spec.ShipmentTemperature, spec.ShippedAt)
	}
	if err != nil {
		return nil, AuditResult{}, err
	}

	status := TransferAborted
	if res.To.IsInTransit() {
		status = TransferInTransit
	}
	return &CustodyTransfer{
		ID:                  spec.ID,
		Leg:                 spec.Leg,
		VialID:              unit.ID,
		ShipmentTemperature: spec.ShipmentTemperature,
		ShippedAt:           spec.ShippedAt,
		CarrierID:           spec.CarrierID,
		ShipperID:           spec.ShipperID,
		ReceiverID:          spec.ReceiverID,
		CourierID:           spec.CourierID,
		Contract:            spec.Contract,
		Status:              status,
		CreatedAt:           spec.ShippedAt,
		UpdatedAt:           spec.ShippedAt,
	}, res, nil
}

// CanReceive checks that the transfer is still in transit and bound to unit.
func (t *CustodyTransfer) CanReceive(unit *DrugUnit) error {
	if t.Status != TransferInTransit {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition,
			"transfer %s not in receivable state: %s", t.ID, t.Status)
	}
	if unit == nil || unit.ID != t.VialID {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"transfer %s is bound to drug %s", t.ID, t.VialID)
	}
	return nil
}

// Receive closes the transfer and runs the receipt audit on its unit. The
// transfer is ARRIVED whatever the reading; the unit decides between custody
// and DISCARDED.
func (t *CustodyTransfer) Receive(unit *DrugUnit, reading gate.Celsius, at time.Time, signature string) (AuditResult, error) {
	if err := t.CanReceive(unit); err != nil {
		return AuditResult{}, err
	}

	var (
		res AuditResult
		err error
	)
	switch t.Leg {
	case LegToStorage:
		res, err = unit.ReceiveAtStorage(reading, at)
	case LegToHospital:
		res, err = unit.ReceiveAtHospital(reading, at)
	default:
		err = dErrors.New(dErrors.CodeInvariantViolation, "unknown transfer leg: "+string(t.Leg))
	}
	if err != nil {
		return AuditResult{}, err
	}

	received := at
	temp := reading
	t.Status = TransferArrived
	t.ReceivedAt = &received
	t.Signature = signature
	t.ReceiptTemperature = &temp
	t.UpdatedAt = at
	return res, nil
}

// MarkSettled records that the contract payment moved. It guards the
// at-most-once rule.
func (t *CustodyTransfer) MarkSettled(at time.Time) error {
	if t.Status != TransferArrived {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition,
			"transfer %s cannot settle in status %s", t.ID, t.Status)
	}
	if t.SettledAt != nil {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition, "transfer %s already settled", t.ID)
	}
	settled := at
	t.SettledAt = &settled
	t.UpdatedAt = at
	return nil
}

func (t *CustodyTransfer) IsSettled() bool {
	return t.SettledAt != nil
}

// Clone returns a deep copy that shares no mutable state with t.
func (t *CustodyTransfer) Clone() *CustodyTransfer {
	if t == nil {
		return nil
	}
	c := *t
	c.ReceivedAt = cloneTime(t.ReceivedAt)
	c.SettledAt = cloneTime(t.SettledAt)
	if t.ReceiptTemperature != nil {
		temp := *t.ReceiptTemperature
		c.ReceiptTemperature = &temp
	}
	return &c
}
