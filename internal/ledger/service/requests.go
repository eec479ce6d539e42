package service

import (
	"time"

	"github.com/shopspring/decimal"

	"coldchain/internal/custody/gate"
	dosing "coldchain/internal/dosing/models"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
)

// Zero timestamps in requests mean "now" by the service clock.

type RegisterParticipantRequest struct {
	ParticipantID  id.ParticipantID
	Name           string
	OpeningBalance decimal.Decimal
}

func (r RegisterParticipantRequest) Validate() error {
	if _, err := id.ParseParticipantID(r.ParticipantID.String()); err != nil {
		return asInputError(err)
	}
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "participant name is required")
	}
	return nil
}

type EnrollPatientRequest struct {
	PatientID  id.PatientID
	HospitalID id.HospitalID
	EnrolledAt time.Time
}

func (r EnrollPatientRequest) Validate() error {
	if _, err := id.ParsePatientID(r.PatientID.String()); err != nil {
		return asInputError(err)
	}
	if _, err := id.ParseHospitalID(r.HospitalID.String()); err != nil {
		return asInputError(err)
	}
	return nil
}

type UpdatePatientStatusRequest struct {
	PatientID id.PatientID
	Status    dosing.PatientStatus
	At        time.Time
}

func (r UpdatePatientStatusRequest) Validate() error {
	if _, err := id.ParsePatientID(r.PatientID.String()); err != nil {
		return asInputError(err)
	}
	if !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown patient status: "+string(r.Status))
	}
	return nil
}

// ProduceDrugRequest records a newly manufactured vial. Zero range and dosage
// fields take the production defaults.
type ProduceDrugRequest struct {
	VialID           id.VialID
	ManufacturedAt   time.Time
	Range            gate.Range
	Protocol         string
	DosageLevel      string
	DoseIntervalDays int
}

func (r ProduceDrugRequest) Validate() error {
	if _, err := id.ParseVialID(r.VialID.String()); err != nil {
		return asInputError(err)
	}
	if r.Range != (gate.Range{}) && !r.Range.Valid() {
		return dErrors.New(dErrors.CodeValidation, "temperature range must have finite bounds with min below max")
	}
	if r.DoseIntervalDays < 0 {
		return dErrors.New(dErrors.CodeValidation, "dose interval must be positive")
	}
	return nil
}

type PackDrugRequest struct {
	VialID id.VialID
	At     time.Time
}

func (r PackDrugRequest) Validate() error {
	if _, err := id.ParseVialID(r.VialID.String()); err != nil {
		return asInputError(err)
	}
	return nil
}

// DispatchRequest hands a vial to a courier. The courier is the payee of the
// transfer's settlement contract; PayerID pays Payment on a passing receipt.
// An empty TransferID is generated.
type DispatchRequest struct {
	TransferID  id.TransferID
	VialID      id.VialID
	Temperature gate.Celsius
	ShippedAt   time.Time
	CarrierID   id.CarrierID
	ShipperID   id.ParticipantID
	ReceiverID  id.ParticipantID
	CourierID   id.ParticipantID
	PayerID     id.ParticipantID
	Payment     decimal.Decimal
}

func (r DispatchRequest) Validate() error {
	if !r.TransferID.IsNil() {
		if _, err := id.ParseTransferID(r.TransferID.String()); err != nil {
			return asInputError(err)
		}
	}
	if _, err := id.ParseVialID(r.VialID.String()); err != nil {
		return asInputError(err)
	}
	for _, participant := range []id.ParticipantID{r.ShipperID, r.ReceiverID, r.CourierID, r.PayerID} {
		if _, err := id.ParseParticipantID(participant.String()); err != nil {
			return asInputError(err)
		}
	}
	if err := checkReading(r.Temperature); err != nil {
		return err
	}
	if r.Payment.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "contract payment must not be negative")
	}
	return nil
}

type ReceiveRequest struct {
	TransferID  id.TransferID
	Temperature gate.Celsius
	ReceivedAt  time.Time
	Signature   string
}

func (r ReceiveRequest) Validate() error {
	if _, err := id.ParseTransferID(r.TransferID.String()); err != nil {
		return asInputError(err)
	}
	return checkReading(r.Temperature)
}

// TemperatureRequest carries a reading for a gated event that moves no
// custody, such as a periodic audit or unpacking.
type TemperatureRequest struct {
	VialID      id.VialID
	Temperature gate.Celsius
	At          time.Time
}

func (r TemperatureRequest) Validate() error {
	if _, err := id.ParseVialID(r.VialID.String()); err != nil {
		return asInputError(err)
	}
	return checkReading(r.Temperature)
}

type RecordInjectionRequest struct {
	VialID         id.VialID
	PatientID      id.PatientID
	AdministeredAt time.Time
}

func (r RecordInjectionRequest) Validate() error {
	if _, err := id.ParseVialID(r.VialID.String()); err != nil {
		return asInputError(err)
	}
	if _, err := id.ParsePatientID(r.PatientID.String()); err != nil {
		return asInputError(err)
	}
	return nil
}

// asInputError reports identifier parse failures as validation errors.
func asInputError(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}

// checkReading rejects sensor faults. They would fail the gate, but a trail
// holding them cannot be persisted.
func checkReading(t gate.Celsius) error {
	if !t.IsFinite() {
		return dErrors.Newf(dErrors.CodeValidation, "temperature reading %v is not a finite number", float64(t))
	}
	return nil
}
