// Package kafka publishes ledger events to a Kafka topic, keyed by aggregate
// so every event about one vial, transfer or patient lands on one partition
// in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"coldchain/pkg/platform/events"
)

const (
	headerKind          = "kind"
	headerAggregateType = "aggregate_type"
)

type Config struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
	ClientID          string
}

type Sink struct {
	client *kgo.Client
	topic  string
}

// New connects a producer. It does not create the topic; call EnsureTopic.
func New(cfg Config, extra ...kgo.Opt) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return &Sink{client: client, topic: cfg.Topic}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (s *Sink) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	if partitions <= 0 {
		partitions = 1
	}
	if replicationFactor <= 0 {
		replicationFactor = 1
	}
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, s.topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic %s: %w", s.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka: create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Ping checks broker reachability.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Sink) Publish(ctx context.Context, event events.Event) error {
	record, err := Encode(s.topic, event)
	if err != nil {
		return err
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce %s: %w", event.Kind, err)
	}
	return nil
}

func (s *Sink) Close() {
	s.client.Close()
}

// Encode renders an event as a record. The value is the JSON event; kind and
// aggregate type are repeated as headers for routing without decoding.
func Encode(topic string, event events.Event) (*kgo.Record, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("kafka: marshal event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(event.AggregateType + ":" + event.AggregateID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: headerKind, Value: []byte(event.Kind)},
			{Key: headerAggregateType, Value: []byte(event.AggregateType)},
		},
		Timestamp: event.OccurredAt,
	}, nil
}

// Decode is the inverse of Encode.
func Decode(record *kgo.Record) (events.Event, error) {
	var event events.Event
	if err := json.Unmarshal(record.Value, &event); err != nil {
		return events.Event{}, fmt.Errorf("kafka: unmarshal event: %w", err)
	}
	return event, nil
}
