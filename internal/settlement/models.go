package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
)

// Contract is the escrow term attached to one custody transfer: the payer owes
// the courier Payment once the consignment arrives within range.
type Contract struct {
	PayerID id.ParticipantID `json:"payer_id"`
	PayeeID id.ParticipantID `json:"payee_id"`
	Payment decimal.Decimal  `json:"payment"`
}

// Validate checks the contract terms. Payment may be zero but never negative.
func (c Contract) Validate() error {
	if c.PayerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "contract payer is required")
	}
	if c.PayeeID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "contract payee is required")
	}
	if c.PayerID == c.PayeeID {
		return dErrors.New(dErrors.CodeValidation, "contract payer and payee must differ")
	}
	if c.Payment.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "contract payment must not be negative")
	}
	return nil
}

// Participant is a business taking part in the supply chain (manufacturer,
// storage operator, courier, hospital). Each owns a mutable balance.
type Participant struct {
	ID        id.ParticipantID `json:"participant_id"`
	Name      string           `json:"name"`
	Balance   decimal.Decimal  `json:"balance"`
	Version   int64            `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func NewParticipant(participantID id.ParticipantID, name string, opening decimal.Decimal, now time.Time) (*Participant, error) {
	if participantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "participant id is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "participant name cannot be empty")
	}
	return &Participant{
		ID:        participantID,
		Name:      name,
		Balance:   opening,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a copy of p. Decimal values are immutable, so a shallow copy
// shares no mutable state.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
