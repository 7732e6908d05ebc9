package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

const (
	retryMin = 200 * time.Millisecond
	retryMax = 5 * time.Second
)

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       reader
	workers int
	logger  *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, logger)
}

func newConsumer(r reader, workers int, logger *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, logger: logger}
}

// Start fetches messages until ctx is cancelled. Every partition is pinned to
// one worker, so messages of a partition are handled and committed in offset
// order. A failing message is retried in place; the partition does not move
// past it until the handler succeeds.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	done := make(chan struct{})
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 1)
		go func(jobs <-chan kafka.Message) {
			defer func() { done <- struct{}{} }()
			for m := range jobs {
				c.handle(ctx, h, m)
			}
		}(lanes[i])
	}
	wait := func() {
		for _, l := range lanes {
			close(l)
		}
		for range lanes {
			<-done
		}
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			wait()
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			wait()
			return nil
		}
	}
}

// handle returns without committing only when ctx is cancelled; the group
// then redelivers from the last committed offset.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	backoff := retryMin
	for {
		err := h(ctx, m)
		if err == nil {
			break
		}
		c.logger.Warn("handler failed; retrying",
			zap.String("topic", m.Topic), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset),
			zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > retryMax {
			backoff = retryMax
		}
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.Warn("commit offset", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}
