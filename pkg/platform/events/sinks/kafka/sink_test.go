package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldchain/pkg/platform/events"
)

func TestEncodeKeysByAggregate(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := events.New(events.KindShipmentReceived, events.AggregateTransfer, "SHIP-1", at,
		map[string]string{"outcome": "PASS"})

	record, err := Encode("ledger-events", ev)
	require.NoError(t, err)

	assert.Equal(t, "ledger-events", record.Topic)
	assert.Equal(t, "transfer:SHIP-1", string(record.Key))
	assert.Equal(t, at, record.Timestamp)
	require.Len(t, record.Headers, 2)
	assert.Equal(t, "shipment_received", string(record.Headers[0].Value))

	decoded, err := Decode(record)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, ev.Kind, decoded.Kind)
	assert.Equal(t, "PASS", decoded.Attributes["outcome"])
	assert.True(t, at.Equal(decoded.OccurredAt))
}

func TestNewRequiresBrokersAndTopic(t *testing.T) {
	_, err := New(Config{Topic: "t"})
	assert.Error(t, err)
	_, err = New(Config{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
