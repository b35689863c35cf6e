// Package feed consumes venue price updates from Kafka and applies them as
// perp marks or prediction outcome prices.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/shokenteam/shoken-core/internal/metrics"
	"github.com/shokenteam/shoken-core/internal/model"
)

// ErrInvalidMessage is returned for messages that cannot be applied.
var ErrInvalidMessage = errors.New("feed: invalid message")

// Sink receives decoded price updates. *trade.Service implements it.
type Sink interface {
	UpdateMark(ctx context.Context, marketID string, price decimal.Decimal) (int, error)
	UpdatePredictionPrice(ctx context.Context, marketID string, outcome model.Outcome, price decimal.Decimal) (int, error)
}

// PriceUpdate is the message value. An empty Outcome is a perp mark,
// YES or NO is a prediction outcome price.
type PriceUpdate struct {
	MarketID  string          `json:"market_id"`
	Price     decimal.Decimal `json:"price"`
	Outcome   string          `json:"outcome,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// Handler applies one message to a Sink.
type Handler struct {
	sink Sink
}

func NewHandler(sink Sink) *Handler {
	return &Handler{sink: sink}
}

// Handle decodes msg and forwards it. The market id falls back to the
// message key.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var u PriceUpdate
	if err := json.Unmarshal(msg.Value, &u); err != nil {
		metrics.FeedMessages.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if u.MarketID == "" {
		u.MarketID = string(msg.Key)
	}
	if u.MarketID == "" {
		metrics.FeedMessages.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: market_id is required", ErrInvalidMessage)
	}

	var (
		n   int
		err error
	)
	if u.Outcome == "" {
		n, err = h.sink.UpdateMark(ctx, u.MarketID, u.Price)
	} else {
		n, err = h.sink.UpdatePredictionPrice(ctx, u.MarketID, model.Outcome(u.Outcome), u.Price)
	}
	if err != nil {
		metrics.FeedMessages.WithLabelValues("error").Inc()
		return fmt.Errorf("apply %s price for %s: %w", outcomeLabel(u.Outcome), u.MarketID, err)
	}

	metrics.FeedMessages.WithLabelValues("ok").Inc()
	slog.Debug("feed price applied",
		"market", u.MarketID,
		"outcome", u.Outcome,
		"price", u.Price.String(),
		"wallets", n,
	)
	return nil
}

func outcomeLabel(outcome string) string {
	if outcome == "" {
		return "mark"
	}
	return outcome
}

// Consumer reads a price topic as part of a consumer group.
type Consumer struct {
	reader  *kafka.Reader
	handler *Handler
}

// NewConsumer creates a group reader for topic starting at the latest
// offset. Older prices are superseded by the next update anyway.
func NewConsumer(brokers []string, topic, groupID string, sink Sink) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
		MaxBytes:       10e6,
	})
	slog.Info("price feed consumer created", "brokers", brokers, "topic", topic, "group_id", groupID)
	return &Consumer{reader: reader, handler: NewHandler(sink)}
}

// Run reads until ctx is done. Messages that fail to apply are logged and
// skipped.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read price feed: %w", err)
		}
		if err := c.handler.Handle(ctx, msg); err != nil {
			slog.Warn("price feed message skipped",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"err", err,
			)
		}
	}
}
