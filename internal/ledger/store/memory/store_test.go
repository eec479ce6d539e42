package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"coldchain/internal/ledger/ports"
	"coldchain/internal/ledger/store/storetest"
	"coldchain/internal/settlement"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/sentinel"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestStoreContract(t *testing.T) {
	suite.Run(t, &storetest.Suite{NewStore: func() storetest.Store { return New() }})
}

func TestRunInTxRejectsCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunInTx(ctx, func(ports.Repository) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

// Concurrent read-modify-write transactions on one balance must serialise.
func TestConcurrentTransactionsSerialise(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, err := settlement.NewParticipant("COURIER", "Courier", decimal.Zero, t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveParticipant(ctx, p))

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunInTx(ctx, func(repo ports.Repository) error {
				got, err := repo.FindParticipant(ctx, "COURIER")
				if err != nil {
					return err
				}
				got.Balance = got.Balance.Add(decimal.NewFromInt(1))
				return repo.SaveParticipant(ctx, got)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.FindParticipant(ctx, "COURIER")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(workers)))
	assert.Equal(t, int64(workers+1), got.Version)
}

func TestStaleVersionInsideTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, err := settlement.NewParticipant("PHARMA", "Pharma", decimal.NewFromInt(5), t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveParticipant(ctx, p))

	stale, err := s.FindParticipant(ctx, "PHARMA")
	require.NoError(t, err)
	require.NoError(t, s.SaveParticipant(ctx, p))

	err = s.RunInTx(ctx, func(repo ports.Repository) error {
		return repo.SaveParticipant(ctx, stale)
	})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}
