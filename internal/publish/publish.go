// Package publish fans committed wallet events out to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shokenteam/shoken-core/internal/store"
)

// Publisher receives every batch of records after it has been appended to
// the event log. Publishing is best effort: the log is the source of truth.
type Publisher interface {
	Publish(ctx context.Context, wallet string, recs []store.Record) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, string, []store.Record) error { return nil }
func (Nop) Close() error                                          { return nil }

// KafkaPublisher writes one message per record, keyed by wallet so a
// wallet's events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a synchronous publisher for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, wallet string, recs []store.Record) error {
	if len(recs) == 0 {
		return nil
	}
	msgs, err := Messages(wallet, recs)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d events for %s: %w", len(msgs), wallet, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Messages encodes recs as Kafka messages. The record kind travels in a
// header so consumers can route without decoding the body.
func Messages(wallet string, recs []store.Record) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(recs))
	for _, r := range recs {
		r.Wallet = wallet
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode seq %d: %w", r.Seq, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(wallet),
			Value: data,
			Time:  r.At,
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(r.Kind)},
			},
		})
	}
	return msgs, nil
}
