package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/semanticallynull/ebike-fleet/event"
)

// Queue carries events through a Redis list so notifications are sent outside the
// request that caused them. It implements event.Publisher on the producing side; Run
// consumes on the other. An event stays in the processing list until it has been
// handled or dead-lettered.
type Queue struct {
	rdb        *redis.Client
	key        string
	processing string
	dead       string
	wait       time.Duration
	logger     *slog.Logger
}

const DefaultQueueKey = "fleet:events"

func NewQueue(rdb *redis.Client, key string, logger *slog.Logger) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Queue{
		rdb:        rdb,
		key:        key,
		processing: key + ":processing",
		dead:       key + ":dead",
		wait:       time.Second,
		logger:     logger,
	}
}

func (q *Queue) Publish(ctx context.Context, e event.Event) error {
	data, err := event.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Type(), err)
	}
	return q.rdb.LPush(ctx, q.key, data).Err()
}

// Run hands queued events to h until ctx is cancelled. Events h rejects, or that cannot
// be decoded, are moved to the dead-letter list. Events left in the processing list by
// an earlier consumer are requeued first.
func (q *Queue) Run(ctx context.Context, h event.Handler) error {
	if _, err := q.Requeue(ctx); err != nil {
		q.logger.ErrorContext(ctx, "requeue unfinished events failed", "error", err)
	}

	for {
		data, err := q.rdb.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", q.wait).Result()
		switch {
		case ctx.Err() != nil:
			if err == nil {
				q.process(ctx, h, data)
			}
			return nil
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			q.logger.ErrorContext(ctx, "queue receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.wait):
			}
			continue
		}
		q.process(ctx, h, data)
	}
}

// Drain handles everything currently queued and returns how many events it took.
func (q *Queue) Drain(ctx context.Context, h event.Handler) (int, error) {
	n := 0
	for {
		data, err := q.rdb.LMove(ctx, q.key, q.processing, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		q.process(ctx, h, data)
		n++
	}
}

// Requeue moves events stranded in the processing list back onto the queue.
func (q *Queue) Requeue(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, q.processing, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// process runs detached from cancellation so an event taken off the queue is finished
// or parked even while the consumer shuts down.
func (q *Queue) process(ctx context.Context, h event.Handler, data string) {
	ctx = context.WithoutCancel(ctx)

	e, err := event.Unmarshal([]byte(data))
	if err == nil {
		err = h.Handle(ctx, e)
	}
	if err != nil {
		q.logger.WarnContext(ctx, "queued event failed", "error", err)
		if err := q.rdb.LPush(ctx, q.dead, data).Err(); err != nil {
			q.logger.ErrorContext(ctx, "dead-letter push failed, event left in processing list", "error", err)
			return
		}
	}

	if err := q.rdb.LRem(ctx, q.processing, 1, data).Err(); err != nil {
		q.logger.ErrorContext(ctx, "processing list cleanup failed", "error", err)
	}
}

// Pending returns the number of events waiting or in flight.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	queued, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, err
	}
	inFlight, err := q.rdb.LLen(ctx, q.processing).Result()
	return queued + inFlight, err
}

// DeadLetters returns the number of events parked after failing.
func (q *Queue) DeadLetters(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.dead).Result()
}

// Ping checks the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
