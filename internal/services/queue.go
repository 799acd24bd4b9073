package services

import (
	"context"
	"time"

	"video-contest-ads/internal/metrics"
	"video-contest-ads/internal/models"

	"github.com/sirupsen/logrus"
)

// EventStore persists batches of events.
type EventStore interface {
	CreateEvents(ctx context.Context, events []models.AdEvent) error
}

type QueueOptions struct {
	BufferSize   int
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

func DefaultQueueOptions() QueueOptions {
	return QueueOptions{
		BufferSize:   10000,
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// EventQueue buffers events and writes them to the store in batches.
type EventQueue struct {
	events chan models.AdEvent
	store  EventStore
	logger *logrus.Logger
	opts   QueueOptions
}

func NewEventQueue(store EventStore, logger *logrus.Logger, opts QueueOptions) *EventQueue {
	def := DefaultQueueOptions()
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = def.BatchTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}

	return &EventQueue{
		events: make(chan models.AdEvent, opts.BufferSize),
		store:  store,
		logger: logger,
		opts:   opts,
	}
}

// Enqueue never blocks. It returns false when the buffer is full.
func (q *EventQueue) Enqueue(event models.AdEvent) bool {
	select {
	case q.events <- event:
		metrics.QueueSize.Set(float64(len(q.events)))
		return true
	default:
		q.logger.WithField("ad_id", event.AdID).Warn("Event queue is full, dropping event")
		return false
	}
}

func (q *EventQueue) Len() int {
	return len(q.events)
}

// StartProcessor drains the queue until ctx is cancelled, then flushes what
// is already buffered.
func (q *EventQueue) StartProcessor(ctx context.Context) {
	batch := make([]models.AdEvent, 0, q.opts.BatchSize)
	timer := time.NewTimer(q.opts.BatchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			batch = q.drain(batch)
			if len(batch) > 0 {
				q.processBatch(batch)
			}
			return
		case event := <-q.events:
			batch = append(batch, event)
			if len(batch) >= q.opts.BatchSize {
				q.processBatch(batch)
				batch = batch[:0]
				timer.Reset(q.opts.BatchTimeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				q.processBatch(batch)
				batch = batch[:0]
			}
			timer.Reset(q.opts.BatchTimeout)
		}
		metrics.QueueSize.Set(float64(len(q.events)))
	}
}

func (q *EventQueue) drain(batch []models.AdEvent) []models.AdEvent {
	for {
		select {
		case event := <-q.events:
			batch = append(batch, event)
		default:
			return batch
		}
	}
}

func (q *EventQueue) processBatch(events []models.AdEvent) {
	if len(events) == 0 {
		return
	}

	// The store may keep the slice; the caller reuses its backing array.
	batch := append([]models.AdEvent(nil), events...)

	for i := 0; i < q.opts.MaxRetries; i++ {
		err := q.store.CreateEvents(context.Background(), batch)
		if err == nil {
			metrics.EventsProcessed.Add(float64(len(batch)))
			return
		}
		q.logger.WithError(err).Warnf("Failed to insert batch (attempt %d/%d)", i+1, q.opts.MaxRetries)
		if i < q.opts.MaxRetries-1 {
			time.Sleep(time.Duration(i+1) * q.opts.RetryDelay)
		}
	}

	q.logger.WithField("batch_size", len(batch)).Error("Failed to insert ad events after all retries")
	metrics.EventsDropped.Add(float64(len(batch)))
}
