package services

import (
	"context"
	"sync"
	"time"

	"video-contest-ads/internal/beacon"
	"video-contest-ads/internal/metrics"
	"video-contest-ads/internal/models"

	"github.com/sirupsen/logrus"
)

// Publisher forwards events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, event models.AdEvent) error
}

// Tracker records engagement events. With a publisher, events travel through
// the bus and are persisted by its consumer; otherwise they go straight to the
// local queue.
type Tracker struct {
	queue     *EventQueue
	store     EventStore
	publisher Publisher
	logger    *logrus.Logger
	now       func() time.Time
	inflight  sync.WaitGroup
}

func NewTracker(queue *EventQueue, store EventStore, publisher Publisher, logger *logrus.Logger) *Tracker {
	return &Tracker{
		queue:     queue,
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (t *Tracker) Record(ctx context.Context, event models.AdEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = t.now()
	}
	metrics.EventsReceived.WithLabelValues(string(event.Kind)).Inc()

	if t.publisher != nil {
		err := t.publisher.Publish(ctx, event)
		if err == nil {
			return nil
		}
		t.logger.WithError(err).WithField("ad_id", event.AdID).Warn("Failed to publish event, persisting locally")
	}
	return t.Persist(ctx, event)
}

// Persist queues the event, inserting it synchronously when the queue is full.
func (t *Tracker) Persist(ctx context.Context, event models.AdEvent) error {
	if t.queue.Enqueue(event) {
		return nil
	}
	return t.store.CreateEvents(ctx, []models.AdEvent{event})
}

// Send records a beacon in the background, for controllers hosted in this
// process.
func (t *Tracker) Send(kind beacon.Kind, adID string) {
	t.send(models.AdEvent{AdID: adID, Kind: kind})
}

// ForSession returns a beacon that tags events with the playback session and
// viewer details.
func (t *Tracker) ForSession(sessionID, ipAddress, userAgent string) *SessionBeacon {
	return &SessionBeacon{tracker: t, sessionID: sessionID, ipAddress: ipAddress, userAgent: userAgent}
}

// Wait blocks until background sends have been recorded.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}

func (t *Tracker) send(event models.AdEvent) {
	event.Timestamp = t.now()
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := t.Record(ctx, event); err != nil {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"ad_id": event.AdID,
				"kind":  event.Kind,
			}).Error("Failed to record beacon")
		}
	}()
}

type SessionBeacon struct {
	tracker   *Tracker
	sessionID string
	ipAddress string
	userAgent string
}

func (b *SessionBeacon) Send(kind beacon.Kind, adID string) {
	b.tracker.send(models.AdEvent{
		AdID:      adID,
		Kind:      kind,
		SessionID: b.sessionID,
		IPAddress: b.ipAddress,
		UserAgent: b.userAgent,
	})
}
