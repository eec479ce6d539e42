package service

import (
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"coldchain/internal/custody/gate"
	custody "coldchain/internal/custody/models"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/events"
)

// =============================================================================
// Production and Packing
// =============================================================================

func (s *ServiceSuite) TestProduceDrug() {
	s.Run("applies production defaults", func() {
		res, err := s.service.ProduceDrug(s.ctx, ProduceDrugRequest{VialID: vial})
		s.Require().NoError(err)
		unit := res.Drugs[0]
		s.Equal(custody.StatusProduced, unit.Status)
		s.Equal(custody.DefaultRange, unit.Range)
		s.Equal(14, unit.Dosage.DoseIntervalDays)
		s.Equal(t0, unit.ManufacturedAt)
		s.Empty(unit.Trail)
	})

	s.Run("custom range and dosage", func() {
		manufactured := t0.Add(-24 * time.Hour)
		res, err := s.service.ProduceDrug(s.ctx, ProduceDrugRequest{
			VialID:           "VIAL-0002",
			ManufacturedAt:   manufactured,
			Range:            gate.Range{Min: -20, Max: -10},
			Protocol:         "Trial02",
			DosageLevel:      "50mg",
			DoseIntervalDays: 7,
		})
		s.Require().NoError(err)
		unit := res.Drugs[0]
		s.Equal(manufactured, unit.ManufacturedAt)
		s.Equal(gate.Range{Min: -20, Max: -10}, unit.Range)
		s.Equal(custody.Dosage{Protocol: "Trial02", Level: "50mg", DoseIntervalDays: 7}, unit.Dosage)
	})

	s.Run("duplicate vial conflicts", func() {
		_, err := s.service.ProduceDrug(s.ctx, ProduceDrugRequest{VialID: vial})
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("rejects bad input", func() {
		_, err := s.service.ProduceDrug(s.ctx, ProduceDrugRequest{})
		s.requireCode(err, dErrors.CodeValidation)
		_, err = s.service.ProduceDrug(s.ctx, ProduceDrugRequest{VialID: "VIAL-3", Range: gate.Range{Min: 8, Max: 2}})
		s.requireCode(err, dErrors.CodeValidation)
		_, err = s.service.ProduceDrug(s.ctx, ProduceDrugRequest{VialID: "VIAL-4", DoseIntervalDays: -1})
		s.requireCode(err, dErrors.CodeValidation)

		_, err = s.service.GetDrug(s.ctx, "VIAL-3")
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestPackDrug() {
	_, err := s.service.ProduceDrug(s.ctx, ProduceDrugRequest{VialID: vial})
	s.Require().NoError(err)

	at := s.advance(time.Hour)
	res, err := s.service.PackDrug(s.ctx, PackDrugRequest{VialID: vial})
	s.Require().NoError(err)
	s.Equal(custody.StatusPacked, res.Drugs[0].Status)
	s.Equal(at, res.Drugs[0].UpdatedAt)
	s.Empty(res.Drugs[0].Trail)

	_, err = s.service.PackDrug(s.ctx, PackDrugRequest{VialID: vial})
	s.requireCode(err, dErrors.CodeInvalidStateTransition)

	unit, err := s.service.GetDrug(s.ctx, vial)
	s.Require().NoError(err)
	s.Equal(int64(2), unit.Version)

	_, err = s.service.PackDrug(s.ctx, PackDrugRequest{VialID: "VIAL-404"})
	s.requireCode(err, dErrors.CodeNotFound)
}

// =============================================================================
// Dispatch
// =============================================================================

func (s *ServiceSuite) TestDispatchToStorage_Pass() {
	s.produceAndPack(vial)
	s.sink.Clear()

	res, err := s.service.DispatchToStorage(s.ctx, storageLeg("TR-1", vial, inRange))
	s.Require().NoError(err)

	unit, transfer := res.Drugs[0], res.Transfers[0]
	s.Equal(custody.StatusInTransitToStorage, unit.Status)
	s.Equal(custody.TransferInTransit, transfer.Status)
	s.Equal(custody.LegToStorage, transfer.Leg)
	s.Equal(vial, transfer.VialID)
	s.Equal(courier, transfer.Contract.PayeeID)
	s.True(fee.Equal(transfer.Contract.Payment))
	s.Require().Len(unit.Trail, 1)
	s.Equal(custody.CheckpointDispatchToStorage, unit.Trail[0].Checkpoint)
	s.Equal(gate.Pass, unit.Trail[0].Outcome)
	s.Equal([]events.Kind{events.KindShipmentDispatched}, s.sink.Kinds())

	// no money moves at dispatch
	s.True(opening.Equal(s.balance(manufacturer)))
	s.True(opening.Equal(s.balance(courier)))
}

// TestDispatchToStorage_FailRecordsAbortedTransfer covers a warm handover: the
// vial is discarded and the attempt stays on record as an ABORTED transfer.
func (s *ServiceSuite) TestDispatchToStorage_FailRecordsAbortedTransfer() {
	s.produceAndPack(vial)
	s.sink.Clear()

	res, err := s.service.DispatchToStorage(s.ctx, storageLeg("TR-1", vial, tooWarm))
	s.Require().NoError(err)
	s.True(res.Audit.Discarded())

	unit, err := s.service.GetDrug(s.ctx, vial)
	s.Require().NoError(err)
	s.Equal(custody.StatusDiscarded, unit.Status)

	transfer, err := s.service.GetTransfer(s.ctx, "TR-1")
	s.Require().NoError(err)
	s.Equal(custody.TransferAborted, transfer.Status)
	s.Equal([]events.Kind{events.KindShipmentDispatched, events.KindDrugDiscarded}, s.sink.Kinds())

	_, err = s.service.ReceiveAtStorage(s.ctx, ReceiveRequest{TransferID: "TR-1", Temperature: inRange})
	s.requireCode(err, dErrors.CodeInvalidStateTransition)
	s.True(opening.Equal(s.balance(courier)))
}

func (s *ServiceSuite) TestDispatchRangeBoundsFail() {
	for i, reading := range []gate.Celsius{custody.DefaultRange.Min, custody.DefaultRange.Max} {
		vialID := id.VialID("VIAL-B" + string(rune('0'+i)))
		s.produceAndPack(vialID)
		res, err := s.service.DispatchToStorage(s.ctx, storageLeg(id.TransferID("TR-B"+string(rune('0'+i))), vialID, reading))
		s.Require().NoError(err)
		s.Equal(custody.StatusDiscarded, res.Drugs[0].Status, "reading %v", reading)
	}
}

func (s *ServiceSuite) TestDispatchRejections() {
	s.Run("vial not packed", func() {
		_, err := s.service.ProduceDrug(s.ctx, ProduceDrugRequest{VialID: vial})
		s.Require().NoError(err)
		_, err = s.service.DispatchToStorage(s.ctx, storageLeg("TR-1", vial, inRange))
		s.requireCode(err, dErrors.CodeInvalidStateTransition)

		_, err = s.service.GetTransfer(s.ctx, "TR-1")
		s.requireCode(err, dErrors.CodeNotFound)
		unit, err := s.service.GetDrug(s.ctx, vial)
		s.Require().NoError(err)
		s.Empty(unit.Trail)
	})

	s.Run("hospital leg from packed", func() {
		s.produceAndPack("VIAL-0002")
		_, err := s.service.DispatchToHospital(s.ctx, hospitalLeg("TR-2", "VIAL-0002", inRange))
		s.requireCode(err, dErrors.CodeInvalidStateTransition)
	})

	s.Run("unknown vial", func() {
		_, err := s.service.DispatchToStorage(s.ctx, storageLeg("TR-3", "VIAL-404", inRange))
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("unknown payer", func() {
		s.produceAndPack("VIAL-0004")
		req := storageLeg("TR-4", "VIAL-0004", inRange)
		req.PayerID = "GHOST"
		_, err := s.service.DispatchToStorage(s.ctx, req)
		s.requireCode(err, dErrors.CodeNotFound)

		unit, err := s.service.GetDrug(s.ctx, "VIAL-0004")
		s.Require().NoError(err)
		s.Equal(custody.StatusPacked, unit.Status)
	})

	s.Run("payer paying itself", func() {
		s.produceAndPack("VIAL-0005")
		req := storageLeg("TR-5", "VIAL-0005", inRange)
		req.PayerID = courier
		_, err := s.service.DispatchToStorage(s.ctx, req)
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("negative payment", func() {
		req := storageLeg("TR-6", "VIAL-0005", inRange)
		req.Payment = decimal.NewFromInt(-1)
		_, err := s.service.DispatchToStorage(s.ctx, req)
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("missing shipper or receiver", func() {
		s.produceAndPack("VIAL-0006")
		for _, mutate := range []func(*DispatchRequest){
			func(r *DispatchRequest) { r.ShipperID = "" },
			func(r *DispatchRequest) { r.ReceiverID = "" },
		} {
			req := storageLeg("TR-6", "VIAL-0006", inRange)
			mutate(&req)
			_, err := s.service.DispatchToStorage(s.ctx, req)
			s.requireCode(err, dErrors.CodeValidation)
		}
		_, err := s.service.GetTransfer(s.ctx, "TR-6")
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("reused transfer id", func() {
		s.produceAndPack("VIAL-0007")
		s.produceAndPack("VIAL-0008")
		_, err := s.service.DispatchToStorage(s.ctx, storageLeg("TR-7", "VIAL-0007", inRange))
		s.Require().NoError(err)
		_, err = s.service.DispatchToStorage(s.ctx, storageLeg("TR-7", "VIAL-0008", inRange))
		s.requireCode(err, dErrors.CodeConflict)

		unit, err := s.service.GetDrug(s.ctx, "VIAL-0008")
		s.Require().NoError(err)
		s.Equal(custody.StatusPacked, unit.Status)
	})
}

func (s *ServiceSuite) TestDispatchGeneratesTransferID() {
	svc, err := New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return s.now }),
		WithTransferIDs(func() string { return "TR-GENERATED" }),
	)
	s.Require().NoError(err)
	s.produceAndPack(vial)

	res, err := svc.DispatchToStorage(s.ctx, storageLeg("", vial, inRange))
	s.Require().NoError(err)
	s.Equal(id.TransferID("TR-GENERATED"), res.Transfers[0].ID)
}

// =============================================================================
// Receipt and Settlement
// =============================================================================

func (s *ServiceSuite) TestReceiveAtStorage_PassSettles() {
	s.produceAndPack(vial)
	_, err := s.service.DispatchToStorage(s.ctx, storageLeg("TR-1", vial, inRange))
	s.Require().NoError(err)
	s.sink.Clear()

	at := s.advance(cooldown)
	res, err := s.service.ReceiveAtStorage(s.ctx, ReceiveRequest{TransferID: "TR-1", Temperature: inRange, Signature: "clerk"})
	s.Require().NoError(err)

	unit, transfer := res.Drugs[0], res.Transfers[0]
	s.Equal(custody.StatusStorage, unit.Status)
	s.Require().NotNil(unit.StorageReceivedAt)
	s.Equal(at, *unit.StorageReceivedAt)
	s.Equal(custody.TransferArrived, transfer.Status)
	s.Equal("clerk", transfer.Signature)
	s.Require().NotNil(transfer.SettledAt)

	s.Require().NotNil(res.Settlement)
	s.True(fee.Equal(res.Settlement.Amount))
	s.True(decimal.NewFromInt(900).Equal(s.balance(manufacturer)))
	s.True(decimal.NewFromInt(1100).Equal(s.balance(courier)))
	s.Len(res.Participants, 2)

	s.Equal([]events.Kind{events.KindShipmentReceived, events.KindPaymentSettled}, s.sink.Kinds())
}

func (s *ServiceSuite) TestReceiveAtStorage_FailPaysNothing() {
	s.produceAndPack(vial)
	_, err := s.service.DispatchToStorage(s.ctx, storageLeg("TR-1", vial, inRange))
	s.Require().NoError(err)
	s.sink.Clear()

	res, err := s.service.ReceiveAtStorage(s.ctx, ReceiveRequest{TransferID: "TR-1", Temperature: tooWarm})
	s.Require().NoError(err)

	s.Equal(custody.StatusDiscarded, res.Drugs[0].Status)
	s.Nil(res.Drugs[0].StorageReceivedAt)
	s.Equal(custody.TransferArrived, res.Transfers[0].Status)
	s.Nil(res.Transfers[0].SettledAt)
	s.Nil(res.Settlement)
	s.True(opening.Equal(s.balance(manufacturer)))
	s.True(opening.Equal(s.balance(courier)))
	s.Equal([]events.Kind{events.KindShipmentReceived, events.KindDrugDiscarded}, s.sink.Kinds())
}

func (s *ServiceSuite) TestReceiveSettlesAtMostOnce() {
	s.produceAndPack(vial)
	s.toStorage(vial, "TR-1")

	_, err := s.service.ReceiveAtStorage(s.ctx, ReceiveRequest{TransferID: "TR-1", Temperature: inRange})
	s.requireCode(err, dErrors.CodeInvalidStateTransition)
	s.True(decimal.NewFromInt(900).Equal(s.balance(manufacturer)))
	s.True(decimal.NewFromInt(1100).Equal(s.balance(courier)))
}

func (s *ServiceSuite) TestReceiveOnWrongLeg() {
	s.produceAndPack(vial)
	_, err := s.service.DispatchToStorage(s.ctx, storageLeg("TR-1", vial, inRange))
	s.Require().NoError(err)

	_, err = s.service.ReceiveAtHospital(s.ctx, ReceiveRequest{TransferID: "TR-1", Temperature: inRange})
	s.requireCode(err, dErrors.CodeInvalidStateTransition)

	transfer, err := s.service.GetTransfer(s.ctx, "TR-1")
	s.Require().NoError(err)
	s.Equal(custody.TransferInTransit, transfer.Status)
}

func (s *ServiceSuite) TestReceiveUnknownTransfer() {
	_, err := s.service.ReceiveAtStorage(s.ctx, ReceiveRequest{TransferID: "TR-404", Temperature: inRange})
	s.requireCode(err, dErrors.CodeNotFound)
	_, err = s.service.ReceiveAtStorage(s.ctx, ReceiveRequest{Temperature: inRange})
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestSettlementMayOverdrawPayer() {
	_, err := s.service.RegisterParticipant(s.ctx, RegisterParticipantRequest{ParticipantID: "BROKE", Name: "Broke Pharma"})
	s.Require().NoError(err)
	s.produceAndPack(vial)
	req := storageLeg("TR-1", vial, inRange)
	req.PayerID = "BROKE"
	_, err = s.service.DispatchToStorage(s.ctx, req)
	s.Require().NoError(err)

	_, err = s.service.ReceiveAtStorage(s.ctx, ReceiveRequest{TransferID: "TR-1", Temperature: inRange})
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(-100).Equal(s.balance("BROKE")))
	s.True(decimal.NewFromInt(1100).Equal(s.balance(courier)))
}

// =============================================================================
// Storage
// =============================================================================

func (s *ServiceSuite) TestPeriodicAudit() {
	s.produceAndPack(vial)
	s.toStorage(vial, "TR-1")
	s.sink.Clear()

	res, err := s.service.PeriodicAudit(s.ctx, TemperatureRequest{VialID: vial, Temperature: inRange})
	s.Require().NoError(err)
	s.Equal(custody.StatusStorage, res.Drugs[0].Status)
	s.Len(res.Drugs[0].Trail, 3)

	res, err = s.service.PeriodicAudit(s.ctx, TemperatureRequest{VialID: vial, Temperature: tooWarm})
	s.Require().NoError(err)
	s.Equal(custody.StatusDiscarded, res.Drugs[0].Status)
	s.Len(res.Drugs[0].Trail, 4)
	s.Equal([]events.Kind{
		events.KindTemperatureAudited,
		events.KindTemperatureAudited,
		events.KindDrugDiscarded,
	}, s.sink.Kinds())

	_, err = s.service.PeriodicAudit(s.ctx, TemperatureRequest{VialID: vial, Temperature: inRange})
	s.requireCode(err, dErrors.CodeInvalidStateTransition)
	unit, err := s.service.GetDrug(s.ctx, vial)
	s.Require().NoError(err)
	s.Len(unit.Trail, 4)
}

func (s *ServiceSuite) TestPeriodicAuditOutsideStorage() {
	s.produceAndPack(vial)
	_, err := s.service.PeriodicAudit(s.ctx, TemperatureRequest{VialID: vial, Temperature: inRange})
	s.requireCode(err, dErrors.CodeInvalidStateTransition)
}

func (s *ServiceSuite) TestDispatchToHospital_RecordsDaysInStorage() {
	s.produceAndPack(vial)
	s.toStorage(vial, "TR-1")

	// ten and a half days rounds up
	shipped := s.advance(10*24*time.Hour + 12*time.Hour)
	res, err := s.service.DispatchToHospital(s.ctx, hospitalLeg("TR-2", vial, inRange))
	s.Require().NoError(err)

	unit := res.Drugs[0]
	s.Equal(custody.StatusInTransitToHospital, unit.Status)
	s.Equal(11, unit.DaysInStorage)
	s.Require().NotNil(unit.StorageShippedAt)
	s.Equal(shipped, *unit.StorageShippedAt)
	s.Equal(custody.LegToHospital, res.Transfers[0].Leg)
}

func (s *ServiceSuite) TestDispatchToHospital_BeforeStorageReceipt() {
	s.produceAndPack(vial)
	s.toStorage(vial, "TR-1")
	received := s.now

	req := hospitalLeg("TR-2", vial, inRange)
	req.ShippedAt = received.Add(-time.Hour)
	_, err := s.service.DispatchToHospital(s.ctx, req)
	s.requireCode(err, dErrors.CodeValidation)

	unit, err := s.service.GetDrug(s.ctx, vial)
	s.Require().NoError(err)
	s.Equal(custody.StatusStorage, unit.Status)
	s.Nil(unit.StorageShippedAt)
	s.Len(unit.Trail, 2)
	_, err = s.service.GetTransfer(s.ctx, "TR-2")
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestDispatchToHospital_Fail() {
	s.produceAndPack(vial)
	s.toStorage(vial, "TR-1")
	s.advance(3 * 24 * time.Hour)

	res, err := s.service.DispatchToHospital(s.ctx, hospitalLeg("TR-2", vial, tooWarm))
	s.Require().NoError(err)
	unit := res.Drugs[0]
	s.Equal(custody.StatusDiscarded, unit.Status)
	s.NotNil(unit.StorageShippedAt)
	s.Zero(unit.DaysInStorage)
	s.Equal(custody.TransferAborted, res.Transfers[0].Status)
}

// =============================================================================
// Hospital
// =============================================================================

func (s *ServiceSuite) TestHospitalLegSettlesWithStorageOperator() {
	s.toReady(vial)

	unit, err := s.service.GetDrug(s.ctx, vial)
	s.Require().NoError(err)
	s.Equal(custody.StatusReadyForUse, unit.Status)
	s.Len(unit.Trail, 5)

	// one fee for each leg, paid to the same courier
	s.True(decimal.NewFromInt(900).Equal(s.balance(manufacturer)))
	s.True(decimal.NewFromInt(900).Equal(s.balance(storageOp)))
	s.True(decimal.NewFromInt(1200).Equal(s.balance(courier)))
	s.True(opening.Equal(s.balance(hospital)))
}

func (s *ServiceSuite) TestReceiveAtHospital_Fail() {
	s.produceAndPack(vial)
	s.toStorage(vial, "TR-1")
	_, err := s.service.DispatchToHospital(s.ctx, hospitalLeg("TR-2", vial, inRange))
	s.Require().NoError(err)

	res, err := s.service.ReceiveAtHospital(s.ctx, ReceiveRequest{TransferID: "TR-2", Temperature: tooWarm})
	s.Require().NoError(err)
	s.Equal(custody.StatusDiscarded, res.Drugs[0].Status)
	s.Nil(res.Settlement)
	s.True(opening.Equal(s.balance(storageOp)))
}

func (s *ServiceSuite) TestUnpackDrug() {
	s.Run("fail discards", func() {
		s.produceAndPack(vial)
		s.toStorage(vial, "TR-1")
		_, err := s.service.DispatchToHospital(s.ctx, hospitalLeg("TR-2", vial, inRange))
		s.Require().NoError(err)
		_, err = s.service.ReceiveAtHospital(s.ctx, ReceiveRequest{TransferID: "TR-2", Temperature: inRange})
		s.Require().NoError(err)
		s.sink.Clear()

		res, err := s.service.UnpackDrug(s.ctx, TemperatureRequest{VialID: vial, Temperature: gate.Celsius(0.5)})
		s.Require().NoError(err)
		s.Equal(custody.StatusDiscarded, res.Drugs[0].Status)
		s.Equal([]events.Kind{events.KindDrugUnpacked, events.KindDrugDiscarded}, s.sink.Kinds())
	})

	s.Run("requires hospital custody", func() {
		s.produceAndPack("VIAL-0002")
		_, err := s.service.UnpackDrug(s.ctx, TemperatureRequest{VialID: "VIAL-0002", Temperature: inRange})
		s.requireCode(err, dErrors.CodeInvalidStateTransition)
	})
}

// =============================================================================
// Sensor Faults
// =============================================================================

// A non-finite reading is rejected before anything is recorded, so every
// store driver sees the same outcome.
func (s *ServiceSuite) TestNonFiniteReadingsAreRejected() {
	faults := map[string]gate.Celsius{
		"NaN":  gate.Celsius(math.NaN()),
		"+Inf": gate.Celsius(math.Inf(1)),
		"-Inf": gate.Celsius(math.Inf(-1)),
	}
	s.produceAndPack(vial)

	for name, reading := range faults {
		s.Run("dispatch "+name, func() {
			_, err := s.service.DispatchToStorage(s.ctx, storageLeg("TR-1", vial, reading))
			s.requireCode(err, dErrors.CodeValidation)
		})
	}
	unit, err := s.service.GetDrug(s.ctx, vial)
	s.Require().NoError(err)
	s.Equal(custody.StatusPacked, unit.Status)
	s.Empty(unit.Trail)

	_, err = s.service.DispatchToStorage(s.ctx, storageLeg("TR-1", vial, inRange))
	s.Require().NoError(err)
	for name, reading := range faults {
		s.Run("receipt "+name, func() {
			_, err := s.service.ReceiveAtStorage(s.ctx, ReceiveRequest{TransferID: "TR-1", Temperature: reading})
			s.requireCode(err, dErrors.CodeValidation)
		})
	}
	transfer, err := s.service.GetTransfer(s.ctx, "TR-1")
	s.Require().NoError(err)
	s.Equal(custody.TransferInTransit, transfer.Status)

	_, err = s.service.ReceiveAtStorage(s.ctx, ReceiveRequest{TransferID: "TR-1", Temperature: inRange})
	s.Require().NoError(err)
	for name, reading := range faults {
		s.Run("periodic audit "+name, func() {
			_, err := s.service.PeriodicAudit(s.ctx, TemperatureRequest{VialID: vial, Temperature: reading})
			s.requireCode(err, dErrors.CodeValidation)
		})
	}
	unit, err = s.service.GetDrug(s.ctx, vial)
	s.Require().NoError(err)
	s.Equal(custody.StatusStorage, unit.Status)
	s.Len(unit.Trail, 2)
	s.True(opening.Sub(fee).Equal(s.balance(manufacturer)))
}

func (s *ServiceSuite) TestProduceDrugRejectsUnboundedRange() {
	_, err := s.service.ProduceDrug(s.ctx, ProduceDrugRequest{
		VialID: vial,
		Range:  gate.Range{Min: gate.Celsius(math.Inf(-1)), Max: 8},
	})
	s.requireCode(err, dErrors.CodeValidation)
}
