package service

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	custody "coldchain/internal/custody/models"
	dosing "coldchain/internal/dosing/models"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/events"
)

// =============================================================================
// Enrollment
// =============================================================================

func (s *ServiceSuite) TestEnrollPatient() {
	s.Run("starts an empty schedule", func() {
		res, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: patient, HospitalID: "HOSP-1"})
		s.Require().NoError(err)
		p := res.Patients[0]
		s.Equal(dosing.PatientEnrolled, p.Status)
		s.Zero(p.InjectionsReceived)
		s.Nil(p.NextDoseAt)
		s.Equal(t0, p.EnrolledAt)
		s.Equal([]events.Kind{events.KindPatientEnrolled}, s.sink.Kinds())
	})

	s.Run("duplicate patient conflicts", func() {
		_, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: patient, HospitalID: "HOSP-2"})
		s.requireCode(err, dErrors.CodeConflict)

		p, err := s.service.GetPatient(s.ctx, patient)
		s.Require().NoError(err)
		s.Equal(id.HospitalID("HOSP-1"), p.HospitalID)
	})

	s.Run("requires both ids", func() {
		_, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{HospitalID: "HOSP-1"})
		s.requireCode(err, dErrors.CodeValidation)
		_, err = s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: "PAT-2"})
		s.requireCode(err, dErrors.CodeValidation)
	})
}

func (s *ServiceSuite) TestUpdatePatientStatus() {
	_, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: patient, HospitalID: "HOSP-1"})
	s.Require().NoError(err)
	s.sink.Clear()

	res, err := s.service.UpdatePatientStatus(s.ctx, UpdatePatientStatusRequest{PatientID: patient, Status: dosing.PatientAdverseEvent})
	s.Require().NoError(err)
	s.Equal(dosing.PatientAdverseEvent, res.Patients[0].Status)

	published := s.sink.ListAll()
	s.Require().Len(published, 1)
	s.Equal(events.KindPatientUpdated, published[0].Kind)
	s.Equal("ENROLLED", published[0].Attributes["from"])
	s.Equal("ADVERSE_EVENT", published[0].Attributes["to"])

	_, err = s.service.UpdatePatientStatus(s.ctx, UpdatePatientStatusRequest{PatientID: patient, Status: dosing.PatientCompletedSuccessfully})
	s.requireCode(err, dErrors.CodeInvalidStateTransition)
	_, err = s.service.UpdatePatientStatus(s.ctx, UpdatePatientStatusRequest{PatientID: patient, Status: "CURED"})
	s.requireCode(err, dErrors.CodeValidation)
	_, err = s.service.UpdatePatientStatus(s.ctx, UpdatePatientStatusRequest{PatientID: "PAT-404", Status: dosing.PatientInTrial})
	s.requireCode(err, dErrors.CodeNotFound)
}

// =============================================================================
// Injections
// =============================================================================

func (s *ServiceSuite) TestRecordInjection_FirstDose() {
	_, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: patient, HospitalID: "HOSP-1"})
	s.Require().NoError(err)
	s.toReady(vial)
	s.sink.Clear()

	administered := s.now.Add(-30 * time.Minute)
	res, err := s.service.RecordInjection(s.ctx, RecordInjectionRequest{VialID: vial, PatientID: patient, AdministeredAt: administered})
	s.Require().NoError(err)

	unit, p := res.Drugs[0], res.Patients[0]
	s.Equal(custody.StatusInjected, unit.Status)
	s.Require().NotNil(unit.InjectedAt)
	s.Equal(administered, *unit.InjectedAt)

	s.Equal(1, p.InjectionsReceived)
	s.Equal(dosing.PatientInTrial, p.Status)
	s.Equal([]time.Time{administered}, p.Schedule())
	s.Require().NotNil(p.NextDoseAt)
	s.Equal(s.now.AddDate(0, 0, 14), *p.NextDoseAt)

	published := s.sink.ListAll()
	s.Require().Len(published, 1)
	s.Equal(events.KindInjectionRecorded, published[0].Kind)
	s.Equal(string(patient), published[0].AggregateID)
	s.Equal("1", published[0].Attributes["dose"])
	s.Equal(p.NextDoseAt.Format(time.RFC3339), published[0].Attributes["next_dose_at"])

	_, err = s.service.RecordInjection(s.ctx, RecordInjectionRequest{VialID: vial, PatientID: patient})
	s.requireCode(err, dErrors.CodeInvalidStateTransition)
}

func (s *ServiceSuite) TestRecordInjection_UsesVialInterval() {
	_, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: patient, HospitalID: "HOSP-1"})
	s.Require().NoError(err)
	s.toReadyAs(ProduceDrugRequest{VialID: vial, DoseIntervalDays: 7})

	res, err := s.service.RecordInjection(s.ctx, RecordInjectionRequest{VialID: vial, PatientID: patient})
	s.Require().NoError(err)
	s.Equal(s.now.AddDate(0, 0, 7), *res.Patients[0].NextDoseAt)
	s.Equal(s.now, *res.Patients[0].Injections[0])
}

func (s *ServiceSuite) TestAdverseEventResumesOnSchedule() {
	_, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: patient, HospitalID: "HOSP-1"})
	s.Require().NoError(err)
	for _, v := range []id.VialID{"VIAL-0001", "VIAL-0002"} {
		s.toReady(v)
		_, err = s.service.RecordInjection(s.ctx, RecordInjectionRequest{VialID: v, PatientID: patient})
		s.Require().NoError(err)
	}
	before, err := s.service.GetPatient(s.ctx, patient)
	s.Require().NoError(err)
	s.Require().NotNil(before.NextDoseAt)

	s.advance(time.Hour)
	_, err = s.service.UpdatePatientStatus(s.ctx, UpdatePatientStatusRequest{PatientID: patient, Status: dosing.PatientAdverseEvent})
	s.Require().NoError(err)
	s.advance(24 * time.Hour)
	res, err := s.service.UpdatePatientStatus(s.ctx, UpdatePatientStatusRequest{PatientID: patient, Status: dosing.PatientInTrial})
	s.Require().NoError(err)

	p := res.Patients[0]
	s.Equal(dosing.PatientInTrial, p.Status)
	s.Equal(2, p.InjectionsReceived)
	s.Require().NotNil(p.NextDoseAt)
	s.Equal(*before.NextDoseAt, *p.NextDoseAt)
	s.NoError(p.CheckSchedule())
}

// TestScenario_FullTrial takes five vials through the whole chain and into one
// patient, completing the schedule.
func (s *ServiceSuite) TestScenario_FullTrial() {
	_, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: patient, HospitalID: "HOSP-1"})
	s.Require().NoError(err)

	for dose := 1; dose <= dosing.MaxInjections; dose++ {
		vialID := id.VialID("VIAL-" + strconv.Itoa(dose))
		s.toReady(vialID)

		res, err := s.service.RecordInjection(s.ctx, RecordInjectionRequest{VialID: vialID, PatientID: patient})
		s.Require().NoError(err, "dose %d", dose)
		s.Equal(dose, res.Patients[0].InjectionsReceived)
		s.Equal(strconv.Itoa(dose), res.Events[0].Attributes["dose"])
	}

	p, err := s.service.GetPatient(s.ctx, patient)
	s.Require().NoError(err)
	s.Equal(dosing.PatientCompletedSuccessfully, p.Status)
	s.Equal(dosing.MaxInjections, p.InjectionsReceived)
	s.Nil(p.NextDoseAt)
	s.Len(p.Schedule(), dosing.MaxInjections)
	s.NoError(p.CheckSchedule())

	// a sixth ready vial cannot be administered to a completed patient
	s.toReady("VIAL-6")
	_, err = s.service.RecordInjection(s.ctx, RecordInjectionRequest{VialID: "VIAL-6", PatientID: patient})
	s.requireCode(err, dErrors.CodeInvalidStateTransition)

	unit, err := s.service.GetDrug(s.ctx, "VIAL-6")
	s.Require().NoError(err)
	s.Equal(custody.StatusReadyForUse, unit.Status)

	// six vials, two paid legs each
	s.True(opening.Add(fee.Mul(decimal.NewFromInt(12))).Equal(s.balance(courier)))
}

func (s *ServiceSuite) TestRecordInjection_IsAllOrNothing() {
	s.Run("patient cannot dose so vial stays ready", func() {
		_, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: patient, HospitalID: "HOSP-1"})
		s.Require().NoError(err)
		_, err = s.service.UpdatePatientStatus(s.ctx, UpdatePatientStatusRequest{PatientID: patient, Status: dosing.PatientRejected})
		s.Require().NoError(err)
		s.toReady(vial)

		_, err = s.service.RecordInjection(s.ctx, RecordInjectionRequest{VialID: vial, PatientID: patient})
		s.requireCode(err, dErrors.CodeInvalidStateTransition)

		unit, err := s.service.GetDrug(s.ctx, vial)
		s.Require().NoError(err)
		s.Equal(custody.StatusReadyForUse, unit.Status)
		s.Nil(unit.InjectedAt)
	})

	s.Run("vial not ready so schedule is untouched", func() {
		_, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: "PAT-0002", HospitalID: "HOSP-1"})
		s.Require().NoError(err)
		s.produceAndPack("VIAL-0002")

		_, err = s.service.RecordInjection(s.ctx, RecordInjectionRequest{VialID: "VIAL-0002", PatientID: "PAT-0002"})
		s.requireCode(err, dErrors.CodeInvalidStateTransition)

		p, err := s.service.GetPatient(s.ctx, "PAT-0002")
		s.Require().NoError(err)
		s.Zero(p.InjectionsReceived)
		s.Equal(dosing.PatientEnrolled, p.Status)
	})

	s.Run("unknown patient", func() {
		s.toReady("VIAL-0003")
		_, err := s.service.RecordInjection(s.ctx, RecordInjectionRequest{VialID: "VIAL-0003", PatientID: "PAT-404"})
		s.requireCode(err, dErrors.CodeNotFound)

		unit, err := s.service.GetDrug(s.ctx, "VIAL-0003")
		s.Require().NoError(err)
		s.Equal(custody.StatusReadyForUse, unit.Status)
	})

	s.Run("discarded vial", func() {
		_, err := s.service.EnrollPatient(s.ctx, EnrollPatientRequest{PatientID: "PAT-0004", HospitalID: "HOSP-1"})
		s.Require().NoError(err)
		s.produceAndPack("VIAL-0004")
		_, err = s.service.DispatchToStorage(s.ctx, storageLeg("TR-0004", "VIAL-0004", tooWarm))
		s.Require().NoError(err)

		_, err = s.service.RecordInjection(s.ctx, RecordInjectionRequest{VialID: "VIAL-0004", PatientID: "PAT-0004"})
		s.requireCode(err, dErrors.CodeInvalidStateTransition)
	})
}
