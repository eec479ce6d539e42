package service

import (
	"context"

	custody "coldchain/internal/custody/models"
	dosing "coldchain/internal/dosing/models"
	"coldchain/internal/ledger/ports"
	"coldchain/internal/settlement"
	id "coldchain/pkg/domain"
	"coldchain/pkg/platform/events"
)

// RegisterParticipant adds a business that can ship, receive, carry or pay.
func (s *Service) RegisterParticipant(ctx context.Context, req RegisterParticipantRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, OpRegisterParticipant, func(ctx context.Context, repo ports.Repository, res *Result) error {
		now := s.clock()
		p, err := settlement.NewParticipant(req.ParticipantID, req.Name, req.OpeningBalance, now)
		if err != nil {
			return asValidation(err)
		}
		if err := repo.SaveParticipant(ctx, p); err != nil {
			return createErr(err, "participant", p.ID.String())
		}

		res.Participants = append(res.Participants, p)
		res.emit(events.New(events.KindParticipantRegistered, events.AggregateParticipant, p.ID.String(), now, map[string]string{
			"name":            p.Name,
			"opening_balance": p.Balance.String(),
		}))
		return nil
	})
}

func (s *Service) GetDrug(ctx context.Context, vialID id.VialID) (unit *custody.DrugUnit, err error) {
	err = s.read(ctx, "get_drug", func(ctx context.Context, repo ports.Repository) error {
		if unit, err = repo.FindDrug(ctx, vialID); err != nil {
			return loadErr(err, "drug", vialID.String())
		}
		return nil
	})
	return unit, err
}

func (s *Service) GetTransfer(ctx context.Context, transferID id.TransferID) (transfer *custody.CustodyTransfer, err error) {
	err = s.read(ctx, "get_transfer", func(ctx context.Context, repo ports.Repository) error {
		if transfer, err = repo.FindTransfer(ctx, transferID); err != nil {
			return loadErr(err, "transfer", transferID.String())
		}
		return nil
	})
	return transfer, err
}

func (s *Service) GetPatient(ctx context.Context, patientID id.PatientID) (patient *dosing.PatientRecord, err error) {
	err = s.read(ctx, "get_patient", func(ctx context.Context, repo ports.Repository) error {
		if patient, err = repo.FindPatient(ctx, patientID); err != nil {
			return loadErr(err, "patient", patientID.String())
		}
		return nil
	})
	return patient, err
}

func (s *Service) GetParticipant(ctx context.Context, participantID id.ParticipantID) (participant *settlement.Participant, err error) {
	err = s.read(ctx, "get_participant", func(ctx context.Context, repo ports.Repository) error {
		if participant, err = repo.FindParticipant(ctx, participantID); err != nil {
			return loadErr(err, "participant", participantID.String())
		}
		return nil
	})
	return participant, err
}
