package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shokenteam/shoken-core/internal/metrics"
	"github.com/shokenteam/shoken-core/internal/store"
)

// ErrQueueFull is returned when a batch is dropped because the forwarder
// is behind.
var ErrQueueFull = errors.New("publish: queue full")

// DrainTimeout bounds how long Run keeps forwarding queued batches after
// its context is canceled.
const DrainTimeout = 5 * time.Second

type batch struct {
	wallet string
	recs   []store.Record
}

// Async queues batches for a background forwarder so callers never wait
// on the downstream publisher. Run must be running for batches to leave
// the queue.
type Async struct {
	next  Publisher
	queue chan batch
}

// NewAsync wraps next with a queue holding up to size batches.
func NewAsync(next Publisher, size int) *Async {
	if size <= 0 {
		size = 1
	}
	return &Async{next: next, queue: make(chan batch, size)}
}

// Publish enqueues recs without blocking.
func (a *Async) Publish(_ context.Context, wallet string, recs []store.Record) error {
	if len(recs) == 0 {
		return nil
	}
	select {
	case a.queue <- batch{wallet: wallet, recs: recs}:
		return nil
	default:
		return fmt.Errorf("%w: dropped %d events for %s", ErrQueueFull, len(recs), wallet)
	}
}

// Pending returns the number of queued batches.
func (a *Async) Pending() int {
	return len(a.queue)
}

// Run forwards queued batches in order until ctx is done, then drains what
// is left within DrainTimeout.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case b := <-a.queue:
			a.forward(ctx, b)
		case <-ctx.Done():
			return a.drain()
		}
	}
}

func (a *Async) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()
	for {
		select {
		case b := <-a.queue:
			a.forward(ctx, b)
		default:
			return nil
		}
	}
}

func (a *Async) forward(ctx context.Context, b batch) {
	if err := a.next.Publish(ctx, b.wallet, b.recs); err != nil {
		metrics.PublishErrors.Inc()
		slog.Warn("event publish failed", "wallet", b.wallet, "events", len(b.recs), "err", err)
	}
}

// Close closes the wrapped publisher. Call it after Run has returned.
func (a *Async) Close() error {
	return a.next.Close()
}
