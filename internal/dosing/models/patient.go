package models

import (
	"time"

	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
)

// MaxInjections is the length of the trial dosing schedule.
const MaxInjections = 5

// PatientStatus is the trial status of an enrolled patient.
type PatientStatus string

const (
	PatientEnrolled              PatientStatus = "ENROLLED"
	PatientInTrial               PatientStatus = "IN_TRIAL"
	PatientCompletedSuccessfully PatientStatus = "COMPLETED_SUCCESSFULLY"
	PatientRejected              PatientStatus = "REJECTED"
	PatientAdverseEvent          PatientStatus = "ADVERSE_EVENT"
)

// manualTransitions are the status changes a trial coordinator may record.
// COMPLETED_SUCCESSFULLY is only reachable through the fifth injection.
var manualTransitions = map[PatientStatus][]PatientStatus{
	PatientEnrolled:     {PatientInTrial, PatientRejected, PatientAdverseEvent},
	PatientInTrial:      {PatientRejected, PatientAdverseEvent},
	PatientAdverseEvent: {PatientInTrial, PatientRejected},
}

func (s PatientStatus) IsValid() bool {
	switch s {
	case PatientEnrolled, PatientInTrial, PatientCompletedSuccessfully, PatientRejected, PatientAdverseEvent:
		return true
	}
	return false
}

func (s PatientStatus) IsTerminal() bool {
	return s == PatientCompletedSuccessfully || s == PatientRejected
}

func (s PatientStatus) CanTransitionTo(next PatientStatus) bool {
	for _, allowed := range manualTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanDose reports whether the patient may receive an injection in this status.
func (s PatientStatus) CanDose() bool {
	return s == PatientEnrolled || s == PatientInTrial
}

func ParsePatientStatus(s string) (PatientStatus, error) {
	st := PatientStatus(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown patient status: "+s)
	}
	return st, nil
}

// PatientRecord is the aggregate root for one trial participant's schedule.
//
// Invariants:
//   - InjectionsReceived equals the number of populated Injections slots, and
//     the populated slots form a prefix (slot k+1 set implies slot k set)
//   - Status is COMPLETED_SUCCESSFULLY iff InjectionsReceived == MaxInjections
//   - NextDoseAt is set iff the schedule is active: IN_TRIAL or ADVERSE_EVENT
//     with 0 < InjectionsReceived < MaxInjections
type PatientRecord struct {
	ID                 id.PatientID              `json:"patient_id"`
	HospitalID         id.HospitalID             `json:"hospital_id"`
	Status             PatientStatus             `json:"status"`
	InjectionsReceived int                       `json:"injections_received"`
	Injections         [MaxInjections]*time.Time `json:"injections"`
	NextDoseAt         *time.Time                `json:"next_dose_at,omitempty"`
	Version            int64                     `json:"version"`
	EnrolledAt         time.Time                 `json:"enrolled_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

// Enroll creates a patient record with an empty schedule.
func Enroll(patientID id.PatientID, hospitalID id.HospitalID, now time.Time) (*PatientRecord, error) {
	if patientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "patient id is required")
	}
	if hospitalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "hospital id is required")
	}
	return &PatientRecord{
		ID:         patientID,
		HospitalID: hospitalID,
		Status:     PatientEnrolled,
		EnrolledAt: now,
		UpdatedAt:  now,
	}, nil
}

// CheckSchedule verifies the count and slot invariants.
func (p *PatientRecord) CheckSchedule() error {
	if p.InjectionsReceived < 0 || p.InjectionsReceived > MaxInjections {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"patient %s has %d injections recorded", p.ID, p.InjectionsReceived)
	}
	for i, slot := range p.Injections {
		if populated := i < p.InjectionsReceived; populated != (slot != nil) {
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"patient %s injection slot %d disagrees with count %d", p.ID, i+1, p.InjectionsReceived)
		}
	}
	if (p.Status == PatientCompletedSuccessfully) != (p.InjectionsReceived == MaxInjections) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"patient %s status %s disagrees with %d injections", p.ID, p.Status, p.InjectionsReceived)
	}
	switch active := p.scheduleActive(); {
	case p.NextDoseAt != nil && !active:
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"patient %s has a next dose outside an active schedule", p.ID)
	case p.NextDoseAt == nil && active:
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"patient %s is %s after %d injections with no next dose", p.ID, p.Status, p.InjectionsReceived)
	}
	return nil
}

// scheduleActive reports whether dosing has started and not finished. An
// adverse event suspends dosing but keeps the schedule.
func (p *PatientRecord) scheduleActive() bool {
	if p.Status != PatientInTrial && p.Status != PatientAdverseEvent {
		return false
	}
	return p.InjectionsReceived > 0 && p.InjectionsReceived < MaxInjections
}

// CanRecordInjection checks status and schedule before an injection.
func (p *PatientRecord) CanRecordInjection() error {
	if err := p.CheckSchedule(); err != nil {
		return err
	}
	if !p.Status.CanDose() {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition,
			"patient %s cannot receive an injection in status %s", p.ID, p.Status)
	}
	if p.InjectionsReceived >= MaxInjections {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition,
			"patient %s has completed the schedule", p.ID)
	}
	return nil
}

// RecordInjection fills the next slot with administeredAt and reschedules.
// The next dose is doseIntervalDays calendar days after now; it is cleared
// once the schedule completes. Returns the 1-based dose number.
func (p *PatientRecord) RecordInjection(administeredAt time.Time, doseIntervalDays int, now time.Time) (int, error) {
	if err := p.CanRecordInjection(); err != nil {
		return 0, err
	}
	if doseIntervalDays <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "dose interval must be positive")
	}

	slot := p.InjectionsReceived
	at := administeredAt
	p.Injections[slot] = &at
	p.InjectionsReceived++

	if p.InjectionsReceived == MaxInjections {
		p.Status = PatientCompletedSuccessfully
		p.NextDoseAt = nil
	} else {
		p.Status = PatientInTrial
		next := now.AddDate(0, 0, doseIntervalDays)
		p.NextDoseAt = &next
	}
	p.UpdatedAt = now
	return p.InjectionsReceived, nil
}

// UpdateStatus records a coordinator decision such as selection, rejection
// or an adverse effect. An adverse event suspends dosing and keeps the next
// dose date so the patient resumes on schedule; rejection clears it.
func (p *PatientRecord) UpdateStatus(status PatientStatus, now time.Time) error {
	if err := p.CheckSchedule(); err != nil {
		return err
	}
	if !status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown patient status: "+string(status))
	}
	if !p.Status.CanTransitionTo(status) {
		return dErrors.Newf(dErrors.CodeInvalidStateTransition,
			"patient %s cannot move from %s to %s", p.ID, p.Status, status)
	}
	p.Status = status
	if !p.scheduleActive() {
		p.NextDoseAt = nil
	}
	p.UpdatedAt = now
	return nil
}

// Schedule returns the populated injection timestamps in dose order.
func (p *PatientRecord) Schedule() []time.Time {
	out := make([]time.Time, 0, p.InjectionsReceived)
	for _, slot := range p.Injections {
		if slot == nil {
			break
		}
		out = append(out, *slot)
	}
	return out
}

// Clone returns a deep copy that shares no mutable state with p.
func (p *PatientRecord) Clone() *PatientRecord {
	if p == nil {
		return nil
	}
	c := *p
	for i, slot := range p.Injections {
		if slot != nil {
			v := *slot
			c.Injections[i] = &v
		}
	}
	if p.NextDoseAt != nil {
		v := *p.NextDoseAt
		c.NextDoseAt = &v
	}
	return &c
}
