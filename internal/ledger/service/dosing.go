package service

import (
	"context"
	"strconv"
	"time"

	dosing "coldchain/internal/dosing/models"
	"coldchain/internal/ledger/ports"
	"coldchain/pkg/platform/events"
)

// EnrollPatient registers a patient with a hospital. Dosing starts with the
// first recorded injection.
func (s *Service) EnrollPatient(ctx context.Context, req EnrollPatientRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, OpEnrollPatient, func(ctx context.Context, repo ports.Repository, res *Result) error {
		at := s.at(req.EnrolledAt)
		patient, err := dosing.Enroll(req.PatientID, req.HospitalID, at)
		if err != nil {
			return asValidation(err)
		}
		if err := repo.SavePatient(ctx, patient); err != nil {
			return createErr(err, "patient", patient.ID.String())
		}

		res.Patients = append(res.Patients, patient)
		res.emit(events.New(events.KindPatientEnrolled, events.AggregatePatient, patient.ID.String(), at, map[string]string{
			"hospital_id": patient.HospitalID.String(),
		}))
		return nil
	})
}

// UpdatePatientStatus records a coordinator decision about a patient.
func (s *Service) UpdatePatientStatus(ctx context.Context, req UpdatePatientStatusRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, OpUpdatePatientStatus, func(ctx context.Context, repo ports.Repository, res *Result) error {
		patient, err := repo.FindPatient(ctx, req.PatientID)
		if err != nil {
			return loadErr(err, "patient", req.PatientID.String())
		}
		from := patient.Status
		at := s.at(req.At)
		if err := patient.UpdateStatus(req.Status, at); err != nil {
			return err
		}
		if err := repo.SavePatient(ctx, patient); err != nil {
			return err
		}

		res.Patients = append(res.Patients, patient)
		res.emit(events.New(events.KindPatientUpdated, events.AggregatePatient, patient.ID.String(), at, map[string]string{
			"from": string(from),
			"to":   string(patient.Status),
		}))
		return nil
	})
}

// RecordInjection administers a ready vial to a patient. The vial becomes
// INJECTED and the patient's schedule advances by the vial's dose interval,
// both or neither.
func (s *Service) RecordInjection(ctx context.Context, req RecordInjectionRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, OpRecordInjection, func(ctx context.Context, repo ports.Repository, res *Result) error {
		unit, err := repo.FindDrug(ctx, req.VialID)
		if err != nil {
			return loadErr(err, "drug", req.VialID.String())
		}
		patient, err := repo.FindPatient(ctx, req.PatientID)
		if err != nil {
			return loadErr(err, "patient", req.PatientID.String())
		}
		if err := unit.CanInject(); err != nil {
			return err
		}
		if err := patient.CanRecordInjection(); err != nil {
			return err
		}

		now := s.clock()
		administered := req.AdministeredAt
		if administered.IsZero() {
			administered = now
		}
		if err := unit.Inject(administered); err != nil {
			return err
		}
		dose, err := patient.RecordInjection(administered, unit.Dosage.DoseIntervalDays, now)
		if err != nil {
			return err
		}
		if err := repo.SaveDrug(ctx, unit); err != nil {
			return err
		}
		if err := repo.SavePatient(ctx, patient); err != nil {
			return err
		}

		res.Drugs = append(res.Drugs, unit)
		res.Patients = append(res.Patients, patient)
		attrs := map[string]string{
			"vial_id": unit.ID.String(),
			"dose":    strconv.Itoa(dose),
			"status":  string(patient.Status),
		}
		if patient.NextDoseAt != nil {
			attrs["next_dose_at"] = patient.NextDoseAt.Format(time.RFC3339)
		}
		res.emit(events.New(events.KindInjectionRecorded, events.AggregatePatient, patient.ID.String(), administered, attrs))
		return nil
	})
}
