// Package session hosts ad presentations for remote players over websockets.
// The player reports media events, the server runs the playback controller
// and pushes back what the player should do.
package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"video-contest-ads/internal/adunit"
	"video-contest-ads/internal/beacon"
	"video-contest-ads/internal/metrics"
	"video-contest-ads/internal/models"
	"video-contest-ads/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Commands sent by the player.
const (
	CommandPlay  = "play"
	CommandPause = "pause"
	CommandEnded = "ended"
	CommandSkip  = "skip"
	CommandClick = "click"
)

// Events sent to the player.
const (
	EventReady        = "ready"
	EventProgress     = "progress"
	EventSkipRejected = "skip_rejected"
	EventOpen         = "open"
	EventPause        = "pause"
	EventCompleted    = "completed"
	EventSkipped      = "skipped"
	EventError        = "error"
)

const (
	maxMessageSize = 4096
	writeWait      = 5 * time.Second

	// DefaultPongWait is how long a silent player is kept before the session
	// is dropped. Pings go out at nine tenths of it.
	DefaultPongWait = 60 * time.Second
)

type Command struct {
	Type string `json:"type"`
}

type Event struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId,omitempty"`
	AdID      string           `json:"adId,omitempty"`
	Format    adunit.Format    `json:"format,omitempty"`
	Label     string           `json:"label,omitempty"`
	Title     string           `json:"title,omitempty"`
	MediaURL  string           `json:"mediaUrl,omitempty"`
	Skippable bool             `json:"skippable,omitempty"`
	Progress  *adunit.Progress `json:"progress,omitempty"`
	URL       string           `json:"url,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type AdFinder interface {
	FindAd(ctx context.Context, id string) (*models.Ad, error)
}

// BeaconFunc returns the beacon used by one session.
type BeaconFunc func(sessionID, ipAddress, userAgent string) adunit.Beacon

type Handler struct {
	ads        AdFinder
	beacons    BeaconFunc
	logger     *logrus.Logger
	upgrader   websocket.Upgrader
	controller []adunit.Option
	pongWait   time.Duration
	closeWait  time.Duration
}

type Option func(*Handler)

// WithTimeouts sets how long a silent player is kept alive and how long the
// close handshake may take after the ad ends.
func WithTimeouts(pongWait, closeWait time.Duration) Option {
	return func(h *Handler) {
		if pongWait > 0 {
			h.pongWait = pongWait
		}
		if closeWait > 0 {
			h.closeWait = closeWait
		}
	}
}

// WithControllerOptions passes options to every controller the handler creates.
func WithControllerOptions(opts ...adunit.Option) Option {
	return func(h *Handler) {
		h.controller = append(h.controller, opts...)
	}
}

func NewHandler(ads AdFinder, beacons BeaconFunc, logger *logrus.Logger, allowedOrigins []string, opts ...Option) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	h := &Handler{
		ads:     ads,
		beacons: beacons,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowed[r.Header.Get("Origin")] || sameOrigin(r)
			},
		},
		controller: []adunit.Option{adunit.WithLogger(logger)},
		pongWait:   DefaultPongWait,
		closeWait:  writeWait,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve upgrades GET /api/ads/:id/session and runs one presentation.
func (h *Handler) Serve(c *gin.Context) {
	ad, err := h.ads.FindAd(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrAdNotFound) || (err == nil && !ad.Active) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ad not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load ad for session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load ad"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	id := uuid.NewString()
	s := &session{
		id:        id,
		conn:      conn,
		beacons:   h.beacons(id, c.ClientIP(), c.Request.UserAgent()),
		pongWait:  h.pongWait,
		closeWait: h.closeWait,
		logger: h.logger.WithFields(logrus.Fields{
			"session_id": id,
			"ad_id":      ad.ID,
		}),
	}
	s.run(ad.Instance(), h.controller)
}

// sameOrigin accepts requests without an Origin header and pages served from
// this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type session struct {
	id        string
	conn      *websocket.Conn
	beacons   adunit.Beacon
	logger    *logrus.Entry
	pongWait  time.Duration
	closeWait time.Duration

	mu     sync.Mutex
	closed bool
}

func (s *session) run(instance adunit.Instance, opts []adunit.Option) {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxMessageSize)
	s.extendRead()
	s.conn.SetPongHandler(func(string) error {
		s.extendRead()
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go s.keepalive(done)

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	ctrl, err := adunit.New(instance, s, s.beacons, opts...)
	if err != nil {
		// A malformed ad must not hold up the content behind it.
		s.logger.WithError(err).Warn("Invalid ad, skipping")
		s.write(Event{Type: EventError, Error: err.Error()})
		s.Skipped()
		metrics.SessionOutcomes.WithLabelValues(string(instance.Format), "invalid").Inc()
		return
	}
	defer func() {
		ctrl.Unmount()
		metrics.SessionOutcomes.WithLabelValues(string(instance.Format), outcome(ctrl.State())).Inc()
	}()
	if ctrl.State().Terminal() {
		return
	}

	progress := ctrl.Progress()
	s.write(Event{
		Type:      EventReady,
		SessionID: s.id,
		AdID:      instance.AdID,
		Format:    instance.Format,
		Label:     ctrl.Label(),
		Title:     instance.Title,
		MediaURL:  instance.MediaURL,
		Skippable: ctrl.Skippable(),
		Progress:  &progress,
	})
	ctrl.Mount()

	for {
		var cmd Command
		if err := s.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithError(err).Debug("Player disconnected")
			}
			return
		}
		s.extendRead()
		s.dispatch(ctrl, cmd)
	}
}

// keepalive pings the player until the session ends. A failed ping closes the
// connection, which ends the read loop.
func (s *session) keepalive(done <-chan struct{}) {
	ticker := time.NewTicker(s.pongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				continue
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.WithError(err).Debug("Ping failed, dropping session")
				s.conn.Close()
				return
			}
		}
	}
}

// extendRead pushes the read deadline out while the session is open. Once
// closing, the deadline set by finish stands.
func (s *session) extendRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
}

func (s *session) dispatch(ctrl *adunit.Controller, cmd Command) {
	switch cmd.Type {
	case CommandPlay:
		ctrl.Play()
	case CommandPause:
		ctrl.Pause()
	case CommandEnded:
		ctrl.End()
	case CommandSkip:
		if !ctrl.Skip() && !ctrl.State().Terminal() {
			p := ctrl.Progress()
			s.write(Event{Type: EventSkipRejected, Progress: &p})
		}
	case CommandClick:
		ctrl.Click()
	default:
		s.write(Event{Type: EventError, Error: "unknown command " + cmd.Type})
	}
}

func outcome(state adunit.State) string {
	if state.Terminal() {
		return state.String()
	}
	return "abandoned"
}

func (s *session) Completed() {
	s.finish(EventCompleted)
}

func (s *session) Skipped() {
	s.finish(EventSkipped)
}

func (s *session) OpenDestination(dest string) {
	s.write(Event{Type: EventOpen, URL: dest})
}

func (s *session) PauseMedia() {
	s.write(Event{Type: EventPause})
}

func (s *session) Progress(p adunit.Progress) {
	s.write(Event{Type: EventProgress, Progress: &p})
}

// The player page performs skippable engagement beacons itself; here the
// session is the page.
func (s *session) ReportImpression(adID string) {
	s.beacons.Send(beacon.Impression, adID)
}

func (s *session) ReportClick(adID string) {
	s.beacons.Send(beacon.Click, adID)
}

func (s *session) write(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(ev); err != nil {
		s.logger.WithError(err).WithField("event", ev.Type).Debug("Failed to write session event")
	}
}

// finish sends the terminal event and starts the closing handshake. The read
// loop ends when the player answers or the close wait runs out.
func (s *session) finish(eventType string) {
	s.write(Event{Type: eventType})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, eventType)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.logger.WithError(err).Debug("Failed to send close frame")
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.closeWait))
}
