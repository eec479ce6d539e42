// Package settlement moves escrowed payment from a payer to a courier when a
// consignment passes its receipt-time temperature audit.
package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"coldchain/internal/custody/gate"
	id "coldchain/pkg/domain"
	dErrors "coldchain/pkg/domain-errors"
)

// Receipt describes a settlement decision. A zero Receipt means nothing moved.
type Receipt struct {
	Settled      bool
	PayerID      id.ParticipantID
	PayeeID      id.ParticipantID
	Amount       decimal.Decimal
	PayerBalance decimal.Decimal
	PayeeBalance decimal.Decimal
}

// Settle debits the payer and credits the payee by the contract payment when
// outcome passed. A failed outcome leaves both balances untouched. Balances are
// not floored at zero.
func Settle(c Contract, outcome gate.Outcome, payer, payee *Participant, now time.Time) (Receipt, error) {
	if err := c.Validate(); err != nil {
		return Receipt{}, err
	}
	if !outcome.Passed() {
		return Receipt{}, nil
	}
	if payer == nil || payee == nil {
		return Receipt{}, dErrors.New(dErrors.CodeInvariantViolation, "settlement requires both participants")
	}
	if payer.ID != c.PayerID || payee.ID != c.PayeeID {
		return Receipt{}, dErrors.New(dErrors.CodeInvariantViolation, "participants do not match the contract")
	}

	payer.Balance = payer.Balance.Sub(c.Payment)
	payee.Balance = payee.Balance.Add(c.Payment)
	payer.UpdatedAt = now
	payee.UpdatedAt = now

	return Receipt{
		Settled:      true,
		PayerID:      payer.ID,
		PayeeID:      payee.ID,
		Amount:       c.Payment,
		PayerBalance: payer.Balance,
		PayeeBalance: payee.Balance,
	}, nil
}
