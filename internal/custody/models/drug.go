package models

import (
	"math"
	"time"

	"coldchain/internal/custody/gate"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
)

// Production defaults for the trial drug when a produce request leaves them out.
var (
	DefaultRange            = gate.Range{Min: 1, Max: 15}
	DefaultProtocol         = "Trial01"
	DefaultDosageLevel      = "25mg"
	DefaultDoseIntervalDays = 14
)

const day = 24 * time.Hour

// Checkpoint names the custody event that produced a temperature reading.
type Checkpoint string

const (
	CheckpointDispatchToStorage  Checkpoint = "dispatch_to_storage"
	CheckpointStorageReceipt     Checkpoint = "storage_receipt"
	CheckpointStorageAudit       Checkpoint = "storage_audit"
	CheckpointDispatchToHospital Checkpoint = "dispatch_to_hospital"
	CheckpointHospitalReceipt    Checkpoint = "hospital_receipt"
	CheckpointUnpack             Checkpoint = "unpack"
)

// checkpointRule is the single legal source state of a gated event and the
// state a passing reading moves the unit to.
type checkpointRule struct {
	from LocationStatus
	pass LocationStatus
}

var checkpointRules = map[Checkpoint]checkpointRule{
	CheckpointDispatchToStorage:  {from: StatusPacked, pass: StatusInTransitToStorage},
	CheckpointStorageReceipt:     {from: StatusInTransitToStorage, pass: StatusStorage},
	CheckpointStorageAudit:       {from: StatusStorage, pass: StatusStorage},
	CheckpointDispatchToHospital: {from: StatusStorage, pass: StatusInTransitToHospital},
	CheckpointHospitalReceipt:    {from: StatusInTransitToHospital, pass: StatusHospital},
	CheckpointUnpack:             {from: StatusHospital, pass: StatusReadyForUse},
}

// TemperatureReading is one entry of a unit's audit trail.
type TemperatureReading struct {
	Celsius    gate.Celsius `json:"celsius"`
	Checkpoint Checkpoint   `json:"checkpoint"`
	Outcome    gate.Outcome `json:"outcome"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Dosage is the clinical metadata carried by every vial of a protocol.
type Dosage struct {
	Protocol         string `json:"protocol"`
	Level            string `json:"level"`
	DoseIntervalDays int    `json:"dose_interval_days"`
}

// DrugUnit is the aggregate root for one vial.
//
// Invariants:
//   - Trail is append-only; every gated event appends exactly one reading,
//     whatever the outcome
//   - Status is DISCARDED iff the last reading in Trail failed the gate
//   - DISCARDED and INJECTED are terminal
//   - Status changes only along the transitions of LocationStatus.CanTransitionTo
type DrugUnit struct {
	ID                id.VialID            `json:"vial_id"`
	Status            LocationStatus       `json:"location_status"`
	ManufacturedAt    time.Time            `json:"manufactured_at"`
	Range             gate.Range           `json:"range"`
	Dosage            Dosage               `json:"dosage"`
	Trail             []TemperatureReading `json:"trail"`
	StorageReceivedAt *time.Time           `json:"storage_received_at,omitempty"`
	StorageShippedAt  *time.Time           `json:"storage_shipped_at,omitempty"`
	DaysInStorage     int                  `json:"days_in_storage"`
	InjectedAt        *time.Time           `json:"injected_at,omitempty"`
	Version           int64                `json:"version"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// ProductionSpec describes a newly produced vial. Zero fields take the
// production defaults.
type ProductionSpec struct {
	ManufacturedAt time.Time
	Range          gate.Range
	Dosage         Dosage
}

// AuditResult reports what a gated custody event did to a unit.
type AuditResult struct {
	Checkpoint Checkpoint
	Reading    TemperatureReading
	From       LocationStatus
	To         LocationStatus
}

func (r AuditResult) Passed() bool    { return r.Reading.Outcome.Passed() }
func (r AuditResult) Discarded() bool { return r.To == StatusDiscarded }

// NewDrugUnit records a produced vial in PRODUCED with an empty trail.
func NewDrugUnit(vialID id.VialID, spec ProductionSpec, now time.Time) (*DrugUnit, error) {
	if vialID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "vial id is required")
	}
	rng := spec.Range
	if rng == (gate.Range{}) {
		rng = DefaultRange
	}
	if !rng.Valid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "temperature range must have min below max")
	}
	dosage := spec.Dosage
	if dosage.Protocol == "" {
		dosage.Protocol = DefaultProtocol
	}
	if dosage.Level == "" {
		dosage.Level = DefaultDosageLevel
	}
	if dosage.DoseIntervalDays == 0 {
		dosage.DoseIntervalDays = DefaultDoseIntervalDays
	}
	if dosage.DoseIntervalDays < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "dose interval must be positive")
	}
	manufactured := spec.ManufacturedAt
	if manufactured.IsZero() {
		manufactured = now
	}
	return &DrugUnit{
		ID:             vialID,
		Status:         StatusProduced,
		ManufacturedAt: manufactured,
		Range:          rng,
		Dosage:         dosage,
		Trail:          []TemperatureReading{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CanPack checks the PRODUCED -> PACKED transition.
func (d *DrugUnit) CanPack() error {
	return d.requireTransition("pack", StatusProduced, StatusPacked)
}

// Pack moves a produced vial into its shipping package. No gate applies.
func (d *DrugUnit) Pack(now time.Time) error {
	if err := d.CanPack(); err != nil {
		return err
	}
	d.Status = StatusPacked
	d.UpdatedAt = now
	return nil
}

func (d *DrugUnit) DispatchToStorage(reading gate.Celsius, at time.Time) (AuditResult, error) {
	return d.audit(CheckpointDispatchToStorage, reading, at)
}

// ReceiveAtStorage stamps the storage receipt time on a passing reading.
func (d *DrugUnit) ReceiveAtStorage(reading gate.Celsius, at time.Time) (AuditResult, error) {
	res, err := d.audit(CheckpointStorageReceipt, reading, at)
	if err != nil {
		return res, err
	}
	if res.Passed() {
		received := at
		d.StorageReceivedAt = &received
	}
	return res, nil
}

func (d *DrugUnit) PeriodicAudit(reading gate.Celsius, at time.Time) (AuditResult, error) {
	return d.audit(CheckpointStorageAudit, reading, at)
}

// DispatchToHospital stamps the end of storage and, on a passing reading,
// fixes the number of whole days the vial spent in storage.
// A dispatch time before the storage receipt is rejected without recording
// the reading.
func (d *DrugUnit) DispatchToHospital(reading gate.Celsius, at time.Time) (AuditResult, error) {
	if err := d.CanAudit(CheckpointDispatchToHospital); err != nil {
		return AuditResult{}, err
	}
	if d.StorageReceivedAt != nil && at.Before(*d.StorageReceivedAt) {
		return AuditResult{}, dErrors.Newf(dErrors.CodeValidation,
			"drug %s cannot leave storage at %s before it arrived at %s",
			d.ID, at.Format(time.RFC3339), d.StorageReceivedAt.Format(time.RFC3339))
	}
	res, err := d.audit(CheckpointDispatchToHospital, reading, at)
	if err != nil {
		return res, err
	}
	shipped := at
	d.StorageShippedAt = &shipped
	if res.Passed() && d.StorageReceivedAt != nil {
		d.DaysInStorage = DaysBetween(*d.StorageReceivedAt, at)
	}
	return res, nil
}

func (d *DrugUnit) ReceiveAtHospital(reading gate.Celsius, at time.Time) (AuditResult, error) {
	return d.audit(CheckpointHospitalReceipt, reading, at)
}

func (d *DrugUnit) Unpack(reading gate.Celsius, at time.Time) (AuditResult, error) {
	return d.audit(CheckpointUnpack, reading, at)
}

// CanInject checks the READY_FOR_USE -> INJECTED transition.
func (d *DrugUnit) CanInject() error {
	return d.requireTransition("inject", StatusReadyForUse, StatusInjected)
}

// Inject marks the vial as administered. No gate applies.
func (d *DrugUnit) Inject(at time.Time) error {
	if err := d.CanInject(); err != nil {
		return err
	}
	injected := at
	d.Status = StatusInjected
	d.InjectedAt = &injected
	d.UpdatedAt = at
	return nil
}

// CanAudit checks that the gated event at checkpoint is legal in the current
// state. It does not look at any reading.
func (d *DrugUnit) CanAudit(cp Checkpoint) error {
	rule, ok := checkpointRules[cp]
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown checkpoint: "+string(cp))
	}
	return d.requireTransition(string(cp), rule.from, rule.pass)
}

// audit appends the reading, then applies the gate outcome. A non-finite
// reading is a validation error and leaves the unit untouched.
func (d *DrugUnit) audit(cp Checkpoint, reading gate.Celsius, at time.Time) (AuditResult, error) {
	if err := d.CanAudit(cp); err != nil {
		return AuditResult{}, err
	}
	if !reading.IsFinite() {
		return AuditResult{}, dErrors.Newf(dErrors.CodeValidation,
			"drug %s: temperature reading %v is not a finite number", d.ID, float64(reading))
	}
	rule := checkpointRules[cp]

	entry := TemperatureReading{
		Celsius:    reading,
		Checkpoint: cp,
		Outcome:    gate.Evaluate(reading, d.Range),
		RecordedAt: at,
	}
	d.Trail = append(d.Trail, entry)

	from := d.Status
	if entry.Outcome.Passed() {
		d.Status = rule.pass
	} else {
		d.Status = StatusDiscarded
	}
	d.UpdatedAt = at

	return AuditResult{Checkpoint: cp, Reading: entry, From: from, To: d.Status}, nil
}

func (d *DrugUnit) requireTransition(op string, from, to LocationStatus) error {
	if d.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition,
			"cannot %s drug %s: status %s is terminal", op, d.ID, d.Status)
	}
	if d.Status != from || !d.Status.CanTransitionTo(to) {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition,
			"cannot %s drug %s in status %s", op, d.ID, d.Status)
	}
	return nil
}

// LastReading returns the most recent trail entry.
func (d *DrugUnit) LastReading() (TemperatureReading, bool) {
	if len(d.Trail) == 0 {
		return TemperatureReading{}, false
	}
	return d.Trail[len(d.Trail)-1], true
}

// CheckInvariants verifies the discard invariant against the trail. Stores call
// it before persisting a unit.
func (d *DrugUnit) CheckInvariants() error {
	if !d.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown location status: "+string(d.Status))
	}
	if !d.Range.Valid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "drug %s has an invalid temperature range", d.ID)
	}
	for i, r := range d.Trail {
		if !r.Celsius.IsFinite() {
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"drug %s trail entry %d is not a finite reading", d.ID, i+1)
		}
	}
	last, ok := d.LastReading()
	lastFailed := ok && !last.Outcome.Passed()
	if lastFailed != (d.Status == StatusDiscarded) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"drug %s status %s disagrees with its last audit", d.ID, d.Status)
	}
	return nil
}

// DaysBetween rounds the elapsed time to the nearest whole day, halves rounding up.
func DaysBetween(start, end time.Time) int {
	return int(math.Floor(float64(end.Sub(start))/float64(day) + 0.5))
}

// Clone returns a deep copy that shares no mutable state with d.
func (d *DrugUnit) Clone() *DrugUnit {
	if d == nil {
		return nil
	}
	c := *d
	c.Trail = append(make([]TemperatureReading, 0, len(d.Trail)), d.Trail...)
	c.StorageReceivedAt = cloneTime(d.StorageReceivedAt)
	c.StorageShippedAt = cloneTime(d.StorageShippedAt)
	c.InjectedAt = cloneTime(d.InjectedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
