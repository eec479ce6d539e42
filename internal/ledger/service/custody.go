package service

import (
	"context"
	"strconv"
	"time"

	"coldchain/internal/custody/gate"
	custody "coldchain/internal/custody/models"
	"coldchain/internal/ledger/ports"
	"coldchain/internal/settlement"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/events"
)

// ProduceDrug records a new vial in PRODUCED.
func (s *Service) ProduceDrug(ctx context.Context, req ProduceDrugRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, OpProduceDrug, func(ctx context.Context, repo ports.Repository, res *Result) error {
		now := s.clock()
		unit, err := custody.NewDrugUnit(req.VialID, custody.ProductionSpec{
			ManufacturedAt: req.ManufacturedAt,
			Range:          req.Range,
			Dosage: custody.Dosage{
				Protocol:         req.Protocol,
				Level:            req.DosageLevel,
				DoseIntervalDays: req.DoseIntervalDays,
			},
		}, now)
		if err != nil {
			return asValidation(err)
		}
		if err := repo.SaveDrug(ctx, unit); err != nil {
			return createErr(err, "drug", unit.ID.String())
		}

		res.Drugs = append(res.Drugs, unit)
		res.emit(events.New(events.KindDrugProduced, events.AggregateDrug, unit.ID.String(), now, map[string]string{
			"protocol":           unit.Dosage.Protocol,
			"dosage_level":       unit.Dosage.Level,
			"dose_interval_days": strconv.Itoa(unit.Dosage.DoseIntervalDays),
			"min_celsius":        formatCelsius(unit.Range.Min),
			"max_celsius":        formatCelsius(unit.Range.Max),
		}))
		return nil
	})
}

// PackDrug moves a produced vial into its shipping package.
func (s *Service) PackDrug(ctx context.Context, req PackDrugRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, OpPackDrug, func(ctx context.Context, repo ports.Repository, res *Result) error {
		unit, err := repo.FindDrug(ctx, req.VialID)
		if err != nil {
			return loadErr(err, "drug", req.VialID.String())
		}
		at := s.at(req.At)
		if err := unit.Pack(at); err != nil {
			return err
		}
		if err := repo.SaveDrug(ctx, unit); err != nil {
			return err
		}

		res.Drugs = append(res.Drugs, unit)
		res.emit(events.New(events.KindDrugPacked, events.AggregateDrug, unit.ID.String(), at, nil))
		return nil
	})
}

// DispatchToStorage hands a packed vial to a courier bound for storage. A
// failing reading discards the vial and records the transfer as ABORTED.
func (s *Service) DispatchToStorage(ctx context.Context, req DispatchRequest) (*Result, error) {
	return s.dispatch(ctx, OpDispatchToStorage, custody.LegToStorage, req)
}

// DispatchToHospital hands a stored vial to a courier bound for a hospital.
func (s *Service) DispatchToHospital(ctx context.Context, req DispatchRequest) (*Result, error) {
	return s.dispatch(ctx, OpDispatchToHospital, custody.LegToHospital, req)
}

func (s *Service) dispatch(ctx context.Context, op string, leg custody.Leg, req DispatchRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	transferID := req.TransferID
	if transferID.IsNil() {
		transferID = id.TransferID(s.newID())
	}

	return s.execute(ctx, op, func(ctx context.Context, repo ports.Repository, res *Result) error {
		unit, err := repo.FindDrug(ctx, req.VialID)
		if err != nil {
			return loadErr(err, "drug", req.VialID.String())
		}
		// Both parties to the contract must exist before custody moves.
		for _, pid := range []id.ParticipantID{req.PayerID, req.CourierID} {
			if _, err := repo.FindParticipant(ctx, pid); err != nil {
				return loadErr(err, "participant", pid.String())
			}
		}

		at := s.at(req.ShippedAt)
		transfer, audit, err := custody.Dispatch(custody.DispatchSpec{
			ID:                  transferID,
			Leg:                 leg,
			ShipmentTemperature: req.Temperature,
			ShippedAt:           at,
			CarrierID:           req.CarrierID,
			ShipperID:           req.ShipperID,
			ReceiverID:          req.ReceiverID,
			CourierID:           req.CourierID,
			Contract: settlement.Contract{
				PayerID: req.PayerID,
				PayeeID: req.CourierID,
				Payment: req.Payment,
			},
		}, unit)
		if err != nil {
			return err
		}
		if err := repo.SaveDrug(ctx, unit); err != nil {
			return err
		}
		if err := repo.SaveTransfer(ctx, transfer); err != nil {
			return createErr(err, "transfer", transfer.ID.String())
		}

		res.Drugs = append(res.Drugs, unit)
		res.Transfers = append(res.Transfers, transfer)
		res.Audit = &audit
		res.emit(events.New(events.KindShipmentDispatched, events.AggregateTransfer, transfer.ID.String(), at, map[string]string{
			"vial_id":     unit.ID.String(),
			"leg":         string(transfer.Leg),
			"status":      string(transfer.Status),
			"carrier_id":  transfer.CarrierID.String(),
			"courier_id":  transfer.CourierID.String(),
			"temperature": formatCelsius(req.Temperature),
			"outcome":     string(audit.Reading.Outcome),
		}))
		emitDiscard(res, unit, audit)
		return nil
	})
}

// ReceiveAtStorage closes a storage-bound transfer. A passing reading puts the
// vial in STORAGE and pays the courier; a failing one discards the vial and
// pays nothing.
func (s *Service) ReceiveAtStorage(ctx context.Context, req ReceiveRequest) (*Result, error) {
	return s.receive(ctx, OpReceiveAtStorage, custody.LegToStorage, req)
}

// ReceiveAtHospital closes a hospital-bound transfer, settling like
// ReceiveAtStorage.
func (s *Service) ReceiveAtHospital(ctx context.Context, req ReceiveRequest) (*Result, error) {
	return s.receive(ctx, OpReceiveAtHospital, custody.LegToHospital, req)
}

func (s *Service) receive(ctx context.Context, op string, leg custody.Leg, req ReceiveRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, op, func(ctx context.Context, repo ports.Repository, res *Result) error {
		transfer, err := repo.FindTransfer(ctx, req.TransferID)
		if err != nil {
			return loadErr(err, "transfer", req.TransferID.String())
		}
		if transfer.Leg != leg {
			return dErrors.Newf(dErrors.CodeInvalidStateTransition,
				"transfer %s is a %s leg", transfer.ID, transfer.Leg)
		}
		unit, err := repo.FindDrug(ctx, transfer.VialID)
		if err != nil {
			return loadErr(err, "drug", transfer.VialID.String())
		}

		at := s.at(req.ReceivedAt)
		audit, err := transfer.Receive(unit, req.Temperature, at, req.Signature)
		if err != nil {
			return err
		}
		if audit.Passed() {
			if err := settle(ctx, repo, res, transfer, audit.Reading.Outcome, at); err != nil {
				return err
			}
		}
		if err := repo.SaveDrug(ctx, unit); err != nil {
			return err
		}
		if err := repo.SaveTransfer(ctx, transfer); err != nil {
			return err
		}

		res.Drugs = append(res.Drugs, unit)
		res.Transfers = append(res.Transfers, transfer)
		res.Audit = &audit
		received := events.New(events.KindShipmentReceived, events.AggregateTransfer, transfer.ID.String(), at, map[string]string{
			"vial_id":     unit.ID.String(),
			"leg":         string(transfer.Leg),
			"temperature": formatCelsius(req.Temperature),
			"outcome":     string(audit.Reading.Outcome),
		})
		// shipment_received precedes payment_settled
		res.Events = append([]events.Event{received}, res.Events...)
		emitDiscard(res, unit, audit)
		return nil
	})
}

// settle pays the transfer's contract and marks it settled.
func settle(ctx context.Context, repo ports.Repository, res *Result, transfer *custody.CustodyTransfer, outcome gate.Outcome, at time.Time) error {
	contract := transfer.Contract
	payer, err := repo.FindParticipant(ctx, contract.PayerID)
	if err != nil {
		return loadErr(err, "participant", contract.PayerID.String())
	}
	payee, err := repo.FindParticipant(ctx, contract.PayeeID)
	if err != nil {
		return loadErr(err, "participant", contract.PayeeID.String())
	}

	receipt, err := settlement.Settle(contract, outcome, payer, payee, at)
	if err != nil {
		return err
	}
	if !receipt.Settled {
		return nil
	}
	if err := transfer.MarkSettled(at); err != nil {
		return err
	}
	if err := repo.SaveParticipant(ctx, payer); err != nil {
		return err
	}
	if err := repo.SaveParticipant(ctx, payee); err != nil {
		return err
	}

	res.Participants = append(res.Participants, payer, payee)
	res.Settlement = &receipt
	res.emit(events.New(events.KindPaymentSettled, events.AggregateTransfer, transfer.ID.String(), at, map[string]string{
		"payer_id": receipt.PayerID.String(),
		"payee_id": receipt.PayeeID.String(),
		"amount":   receipt.Amount.String(),
	}))
	return nil
}

// PeriodicAudit records a storage temperature check. A failing reading
// discards the vial.
func (s *Service) PeriodicAudit(ctx context.Context, req TemperatureRequest) (*Result, error) {
	return s.audit(ctx, OpPeriodicAudit, events.KindTemperatureAudited, (*custody.DrugUnit).PeriodicAudit, req)
}

// UnpackDrug opens a vial's package at the hospital. A passing reading makes
// the vial READY_FOR_USE.
func (s *Service) UnpackDrug(ctx context.Context, req TemperatureRequest) (*Result, error) {
	return s.audit(ctx, OpUnpackDrug, events.KindDrugUnpacked, (*custody.DrugUnit).Unpack, req)
}

type auditFunc func(unit *custody.DrugUnit, reading gate.Celsius, at time.Time) (custody.AuditResult, error)

func (s *Service) audit(ctx context.Context, op string, kind events.Kind, apply auditFunc, req TemperatureRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, op, func(ctx context.Context, repo ports.Repository, res *Result) error {
		unit, err := repo.FindDrug(ctx, req.VialID)
		if err != nil {
			return loadErr(err, "drug", req.VialID.String())
		}
		at := s.at(req.At)
		audit, err := apply(unit, req.Temperature, at)
		if err != nil {
			return err
		}
		if err := repo.SaveDrug(ctx, unit); err != nil {
			return err
		}

		res.Drugs = append(res.Drugs, unit)
		res.Audit = &audit
		res.emit(events.New(kind, events.AggregateDrug, unit.ID.String(), at, map[string]string{
			"checkpoint":  string(audit.Checkpoint),
			"temperature": formatCelsius(req.Temperature),
			"outcome":     string(audit.Reading.Outcome),
		}))
		emitDiscard(res, unit, audit)
		return nil
	})
}

func emitDiscard(res *Result, unit *custody.DrugUnit, audit custody.AuditResult) {
	if !audit.Discarded() {
		return
	}
	res.emit(events.New(events.KindDrugDiscarded, events.AggregateDrug, unit.ID.String(), audit.Reading.RecordedAt, map[string]string{
		"checkpoint":  string(audit.Checkpoint),
		"from":        string(audit.From),
		"temperature": formatCelsius(audit.Reading.Celsius),
	}))
}

func formatCelsius(c gate.Celsius) string {
	return strconv.FormatFloat(float64(c), 'f', -1, 64)
}
