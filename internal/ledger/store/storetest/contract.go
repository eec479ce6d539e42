// Package storetest holds the behaviour every ledger store must share. Store
// packages run Suite from their own tests.
package storetest

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"coldchain/internal/custody/gate"
	custody "coldchain/internal/custody/models"
	dosing "coldchain/internal/dosing/models"
	"coldchain/internal/ledger/ports"
	"coldchain/internal/settlement"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/sentinel"
)

// Store is what a ledger store exposes.
type Store interface {
	ports.Repository
	ports.Transactor
}

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// Suite exercises a Store. Set NewStore before running; it is called once per
// test and must return an empty store.
type Suite struct {
	suite.Suite
	NewStore func() Store

	store Store
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.store = s.NewStore()
	s.ctx = context.Background()
}

func (s *Suite) newDrug(vialID id.VialID) *custody.DrugUnit {
	d, err := custody.NewDrugUnit(vialID, custody.ProductionSpec{}, t0)
	s.Require().NoError(err)
	return d
}

func (s *Suite) TestDrugRoundTrip() {
	d := s.newDrug("VIAL-1")
	s.Require().NoError(d.Pack(t0))
	_, err := d.DispatchToStorage(8, t0.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveDrug(s.ctx, d))
	s.Equal(int64(1), d.Version)

	got, err := s.store.FindDrug(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(custody.StatusInTransitToStorage, got.Status)
	s.Equal(int64(1), got.Version)
	s.Equal(d.Range, got.Range)
	s.Equal(d.Dosage, got.Dosage)
	s.Require().Len(got.Trail, 1)
	s.Equal(gate.Celsius(8), got.Trail[0].Celsius)
	s.Equal(custody.CheckpointDispatchToStorage, got.Trail[0].Checkpoint)
	s.True(got.Trail[0].RecordedAt.Equal(t0.Add(time.Hour)))
}

func (s *Suite) TestFindMissing() {
	_, err := s.store.FindDrug(s.ctx, "NOPE")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindTransfer(s.ctx, "NOPE")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindPatient(s.ctx, "NOPE")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindParticipant(s.ctx, "NOPE")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestCreateTwiceIsRejected() {
	s.Require().NoError(s.store.SaveDrug(s.ctx, s.newDrug("VIAL-1")))
	err := s.store.SaveDrug(s.ctx, s.newDrug("VIAL-1"))
	s.ErrorIs(err, sentinel.ErrAlreadyExists)
}

func (s *Suite) TestStaleWriteConflicts() {
	s.Require().NoError(s.store.SaveDrug(s.ctx, s.newDrug("VIAL-1")))

	first, err := s.store.FindDrug(s.ctx, "VIAL-1")
	s.Require().NoError(err)
	second, err := s.store.FindDrug(s.ctx, "VIAL-1")
	s.Require().NoError(err)

	s.Require().NoError(first.Pack(t0))
	s.Require().NoError(s.store.SaveDrug(s.ctx, first))
	s.Equal(int64(2), first.Version)

	s.Require().NoError(second.Pack(t0))
	s.ErrorIs(s.store.SaveDrug(s.ctx, second), sentinel.ErrConflict)
}

func (s *Suite) TestUpdateOfMissingAggregate() {
	d := s.newDrug("VIAL-GHOST")
	d.Version = 3
	s.ErrorIs(s.store.SaveDrug(s.ctx, d), sentinel.ErrNotFound)
}

func (s *Suite) TestFailedTransactionLeavesNoTrace() {
	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(repo ports.Repository) error {
		if err := repo.SaveDrug(s.ctx, s.newDrug("VIAL-1")); err != nil {
			return err
		}
		p, err := settlement.NewParticipant("COURIER", "Courier", decimal.NewFromInt(10), t0)
		s.Require().NoError(err)
		if err := repo.SaveParticipant(s.ctx, p); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.FindDrug(s.ctx, "VIAL-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindParticipant(s.ctx, "COURIER")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestTransactionReadsItsOwnWrites() {
	err := s.store.RunInTx(s.ctx, func(repo ports.Repository) error {
		d := s.newDrug("VIAL-1")
		if err := repo.SaveDrug(s.ctx, d); err != nil {
			return err
		}
		got, err := repo.FindDrug(s.ctx, "VIAL-1")
		if err != nil {
			return err
		}
		s.Equal(int64(1), got.Version)
		if err := got.Pack(t0); err != nil {
			return err
		}
		return repo.SaveDrug(s.ctx, got)
	})
	s.Require().NoError(err)

	got, err := s.store.FindDrug(s.ctx, "VIAL-1")
	s.Require().NoError(err)
	s.Equal(custody.StatusPacked, got.Status)
	s.Equal(int64(2), got.Version)
}

func (s *Suite) TestReturnedAggregatesAreDetached() {
	s.Require().NoError(s.store.SaveDrug(s.ctx, s.newDrug("VIAL-1")))

	got, err := s.store.FindDrug(s.ctx, "VIAL-1")
	s.Require().NoError(err)
	got.Status = custody.StatusDiscarded
	got.Trail = append(got.Trail, custody.TemperatureReading{Celsius: 99})

	again, err := s.store.FindDrug(s.ctx, "VIAL-1")
	s.Require().NoError(err)
	s.Equal(custody.StatusProduced, again.Status)
	s.Empty(again.Trail)
}

func (s *Suite) TestDrugInvariantsCheckedOnSave() {
	d := s.newDrug("VIAL-1")
	d.Status = custody.StatusDiscarded
	err := s.store.SaveDrug(s.ctx, d)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

// A trail holding a sensor fault cannot be encoded by every driver, so all of
// them refuse it up front.
func (s *Suite) TestNonFiniteReadingRejectedOnSave() {
	d := s.newDrug("VIAL-1")
	s.Require().NoError(d.Pack(t0))
	d.Trail = append(d.Trail, custody.TemperatureReading{
		Celsius:    gate.Celsius(math.Inf(1)),
		Checkpoint: custody.CheckpointDispatchToStorage,
		Outcome:    gate.Fail,
		RecordedAt: t0,
	})
	d.Status = custody.StatusDiscarded

	err := s.store.RunInTx(s.ctx, func(repo ports.Repository) error {
		return repo.SaveDrug(s.ctx, d)
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = s.store.FindDrug(s.ctx, "VIAL-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestTransferRoundTrip() {
	d := s.newDrug("VIAL-1")
	s.Require().NoError(d.Pack(t0))
	tr, _, err := custody.Dispatch(custody.DispatchSpec{
		ID:                  "SHIP-1",
		Leg:                 custody.LegToStorage,
		ShipmentTemperature: 9,
		ShippedAt:           t0,
		CarrierID:           "TRUCK-1",
		ShipperID:           "PHARMA",
		ReceiverID:          "STORE",
		CourierID:           "COURIER",
		Contract:            settlement.Contract{PayerID: "PHARMA", PayeeID: "COURIER", Payment: decimal.RequireFromString("125.50")},
	}, d)
	s.Require().NoError(err)
	_, err = tr.Receive(d, 4, t0.Add(time.Hour), "signed")
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveTransfer(s.ctx, tr))

	got, err := s.store.FindTransfer(s.ctx, "SHIP-1")
	s.Require().NoError(err)
	s.Equal(custody.TransferArrived, got.Status)
	s.Equal(custody.LegToStorage, got.Leg)
	s.True(got.Contract.Payment.Equal(decimal.RequireFromString("125.50")))
	s.Equal("signed", got.Signature)
	s.Require().NotNil(got.ReceiptTemperature)
	s.Equal(gate.Celsius(4), *got.ReceiptTemperature)
	s.Require().NotNil(got.ReceivedAt)
	s.True(got.ReceivedAt.Equal(t0.Add(time.Hour)))
	s.Nil(got.SettledAt)
}

func (s *Suite) TestPatientRoundTrip() {
	p, err := dosing.Enroll("PAT-1", "HOSP-1", t0)
	s.Require().NoError(err)
	_, err = p.RecordInjection(t0, 14, t0)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SavePatient(s.ctx, p))

	got, err := s.store.FindPatient(s.ctx, "PAT-1")
	s.Require().NoError(err)
	s.Equal(dosing.PatientInTrial, got.Status)
	s.Equal(1, got.InjectionsReceived)
	s.Require().NotNil(got.Injections[0])
	s.Nil(got.Injections[1])
	s.Require().NotNil(got.NextDoseAt)
	s.True(got.NextDoseAt.Equal(t0.AddDate(0, 0, 14)))
}

func (s *Suite) TestParticipantBalanceRoundTrip() {
	p, err := settlement.NewParticipant("PHARMA", "Pharma Co", decimal.RequireFromString("1000.25"), t0)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveParticipant(s.ctx, p))

	got, err := s.store.FindParticipant(s.ctx, "PHARMA")
	s.Require().NoError(err)
	s.Equal("Pharma Co", got.Name)
	s.True(got.Balance.Equal(decimal.RequireFromString("1000.25")), "balance %s", got.Balance)
}
