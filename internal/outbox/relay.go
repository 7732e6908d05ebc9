// Package outbox relays events written inside checkout transactions to
// Kafka. Delivery is at-least-once: a record is marked sent only after the
// broker acknowledged it.
package outbox

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/market"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Store interface {
	PendingOutbox(ctx context.Context, limit int) ([]storage.OutboxRecord, error)
	MarkOutboxSent(ctx context.Context, id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error
}

type Recorder interface {
	ObserveOutbox(result string)
}

type Relay struct {
	Store     Store
	Publisher Publisher
	Logger    *zap.Logger
	Interval  time.Duration
	Batch     int
	// Metrics is optional.
	Metrics Recorder
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.Logger.Warn("outbox flush", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Flush publishes one batch in id order and stops at the first failure so
// per-order event order is preserved.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = 100
	}
	recs, err := r.Store.PendingOutbox(ctx, batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rec := range recs {
		err := r.Publisher.Publish(ctx, rec.Topic, market.PartitionKey(rec.Key), rec.Payload,
			kafka.Header{Key: "x-event-id", Value: []byte(rec.EventID)},
			kafka.Header{Key: "x-event-version", Value: []byte("1")},
		)
		if err != nil {
			r.count("error")
			return sent, err
		}
		if err := r.Store.MarkOutboxSent(ctx, rec.ID); err != nil {
			// already on the wire; the consumer dedupes on event id
			r.count("mark_error")
			return sent, err
		}
		r.count("ok")
		sent++
	}
	return sent, nil
}

func (r *Relay) count(result string) {
	if r.Metrics != nil {
		r.Metrics.ObserveOutbox(result)
	}
}
