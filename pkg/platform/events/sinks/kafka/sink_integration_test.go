//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"coldchain/pkg/platform/events"
	"coldchain/pkg/testutil/containers"
)

func TestSinkPublishesToBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := containers.GetManager().GetRedpanda(t).Broker

	sink, err := New(Config{Brokers: []string{broker}, Topic: "ledger-events"})
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1), "second create is a no-op")

	ev := events.New(events.KindDrugProduced, events.AggregateDrug, "VIAL-1", time.Now().UTC(), nil)
	require.NoError(t, sink.Publish(ctx, ev))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics("ledger-events"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []events.Event
	for len(got) == 0 {
		fetches := consumer.PollFetches(ctx)
		require.Empty(t, fetches.Errors())
		fetches.EachRecord(func(r *kgo.Record) {
			decoded, err := Decode(r)
			require.NoError(t, err)
			got = append(got, decoded)
		})
	}
	assert.Equal(t, ev.ID, got[0].ID)
}
