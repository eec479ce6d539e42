package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldchain/internal/ledger/service"
	"coldchain/internal/platform/config"
	"coldchain/internal/platform/logger"
)

// syncBuffer lets the test read log output while the daemon goroutines write.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func memoryConfig() config.Config {
	return config.Config{
		Log:    config.Log{Level: "info", Format: "json"},
		Store:  config.Store{Driver: config.DriverMemory},
		Events: config.Events{Publisher: config.PublisherLog, BufferSize: 16, BatchSize: 4, PollInterval: 10 * time.Millisecond},
		Ops:    config.Ops{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
	}
}

func TestRunForwardsEventsUntilCancelled(t *testing.T) {
	out := &syncBuffer{}
	a, err := New(context.Background(), memoryConfig(), logger.NewWithWriter(out, config.Log{Level: "info"}), prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	_, err = a.Ledger.ProduceDrug(ctx, service.ProduceDrugRequest{VialID: "VIAL-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte(`"kind":"drug_produced"`))
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Zero(t, a.Events.Len())
	assert.Contains(t, out.String(), "ledger daemon stopped")
}

func TestOpsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), memoryConfig(), logger.NewWithWriter(&syncBuffer{}, config.Log{}), reg)
	require.NoError(t, err)

	_, err = a.Ledger.RegisterParticipant(context.Background(), service.RegisterParticipantRequest{ParticipantID: "MFR-1", Name: "Maker"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `coldchain_transactions_total{operation="register_participant",result="ok"} 1`)
	assert.Contains(t, w.Body.String(), "coldchain_event_buffer_depth 1")
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Driver = "sqlite"
	_, err := New(context.Background(), cfg, logger.NewWithWriter(&syncBuffer{}, config.Log{}), prometheus.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store driver "sqlite"`)
}
