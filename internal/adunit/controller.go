// Package adunit drives a single ad presentation through its playback
// lifecycle and guarantees that impression and view beacons go out at most
// once per presentation.
package adunit

import (
	"sync"
	"time"

	"video-contest-ads/internal/beacon"

	"github.com/sirupsen/logrus"
)

type State int

const (
	Loaded State = iota
	Playing
	Paused
	Completed
	Skipped
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Terminal reports whether no further transition can leave the state.
func (s State) Terminal() bool {
	return s == Completed || s == Skipped
}

// Beacon delivers engagement events. Implementations must not block.
type Beacon interface {
	Send(kind beacon.Kind, adID string)
}

// Host is the surface presenting the ad.
type Host interface {
	Completed()
	Skipped()
	OpenDestination(url string)
	PauseMedia()
}

// EngagementReporter is implemented by hosts that report impressions and
// clicks of skippable ads themselves.
type EngagementReporter interface {
	ReportImpression(adID string)
	ReportClick(adID string)
}

// ProgressListener receives the skip countdown once per second of playback.
type ProgressListener interface {
	Progress(p Progress)
}

type Progress struct {
	SecondsWatched int  `json:"secondsWatched"`
	SkipRemaining  int  `json:"skipRemaining"`
	CanSkip        bool `json:"canSkip"`
}

type Option func(*Controller)

func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

type Controller struct {
	instance Instance
	policy   policy
	host     Host
	beacons  Beacon
	clock    Clock
	logger   *logrus.Logger

	mu             sync.Mutex
	state          State
	unmounted      bool
	impressionSent bool
	viewSent       bool
	skipUnlocked   bool
	timer          *SkipTimer
	stopTick       chan struct{}
}

// New prepares a controller for the instance. A skippable instance without
// media never plays: it is skipped immediately and the host is told so before
// New returns.
func New(instance Instance, host Host, beacons Beacon, opts ...Option) (*Controller, error) {
	if err := instance.Validate(); err != nil {
		return nil, err
	}
	if host == nil {
		return nil, ErrNoHost
	}

	c := &Controller{
		instance: instance,
		policy:   policies[instance.Format],
		host:     host,
		beacons:  beacons,
		clock:    realClock{},
		logger:   logrus.StandardLogger(),
		state:    Loaded,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.timer = NewSkipTimer(c.clock)

	if !c.Renders() {
		c.logger.WithFields(c.fields()).Warn("Skippable ad has no media, skipping")
		c.state = Skipped
		c.notify("skipped", c.host.Skipped)
	}
	return c, nil
}

func (c *Controller) Instance() Instance {
	return c.instance
}

func (c *Controller) Label() string {
	return c.policy.label
}

func (c *Controller) Skippable() bool {
	return c.policy.skippable
}

// Renders reports whether the host should show a player at all.
func (c *Controller) Renders() bool {
	return !(c.policy.requiresMedia && c.instance.MediaURL == "")
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) SecondsWatched() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer.Seconds()
}

func (c *Controller) CanSkip() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSkipLocked()
}

// SkipRemaining is the countdown shown before skipping is allowed.
func (c *Controller) SkipRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked().SkipRemaining
}

func (c *Controller) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked()
}

// Mount records the impression. Mounting again, or after a terminal state,
// sends nothing.
func (c *Controller) Mount() {
	c.mu.Lock()
	if c.unmounted || c.state.Terminal() || c.impressionSent {
		c.mu.Unlock()
		return
	}
	c.impressionSent = true
	reporter, delegated := c.reporter()
	if !delegated {
		c.send(beacon.Impression)
	}
	c.mu.Unlock()

	if delegated {
		c.notify("impression", func() { reporter.ReportImpression(c.instance.AdID) })
	}
}

// Play handles media start and resume.
func (c *Controller) Play() {
	c.Mount()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted || c.state.Terminal() || c.state == Playing {
		return
	}
	c.state = Playing
	if c.policy.skippable {
		c.timer.Start()
		c.startTickerLocked()
	}
	c.logger.WithFields(c.fields()).Debug("Ad playing")
}

func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted || c.state != Playing {
		return
	}
	c.haltLocked()
	c.state = Paused
	c.logger.WithFields(c.fields()).Debug("Ad paused")
}

// End handles the media's natural end. The view beacon is dispatched before
// the host hears about completion.
func (c *Controller) End() {
	c.Mount()

	c.mu.Lock()
	if c.unmounted || c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.haltLocked()
	if !c.viewSent {
		c.viewSent = true
		c.send(beacon.View)
	}
	c.state = Completed
	c.logger.WithFields(c.fields()).Debug("Ad completed")
	c.mu.Unlock()

	c.notify("completed", c.host.Completed)
}

// Skip ends a skippable ad early. It returns false, changing nothing, when the
// ad cannot be skipped yet.
func (c *Controller) Skip() bool {
	c.mu.Lock()
	if c.unmounted || c.state.Terminal() || !c.canSkipLocked() {
		c.mu.Unlock()
		return false
	}
	c.haltLocked()
	c.state = Skipped
	c.logger.WithFields(c.fields()).Debug("Ad skipped")
	c.mu.Unlock()

	c.notify("pause media", c.host.PauseMedia)
	c.notify("skipped", c.host.Skipped)
	return true
}

// Click sends a click beacon for every call and opens the destination.
// Playback state is untouched.
func (c *Controller) Click() {
	c.mu.Lock()
	if c.unmounted || c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	reporter, delegated := c.reporter()
	if !delegated {
		c.send(beacon.Click)
	}
	c.mu.Unlock()

	if delegated {
		c.notify("click", func() { reporter.ReportClick(c.instance.AdID) })
	}
	if url := c.instance.DestinationURL; url != "" {
		c.notify("open destination", func() { c.host.OpenDestination(url) })
	}
}

// Unmount abandons the presentation. No callback fires afterwards and the
// watched time stops accruing.
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}
	c.unmounted = true
	c.haltLocked()
	c.logger.WithFields(c.fields()).Debug("Ad unmounted")
}

func (c *Controller) reporter() (EngagementReporter, bool) {
	if !c.policy.hostEngagement {
		return nil, false
	}
	r, ok := c.host.(EngagementReporter)
	return r, ok
}

func (c *Controller) canSkipLocked() bool {
	if !c.policy.skippable {
		return false
	}
	if !c.skipUnlocked && c.timer.Seconds() >= c.instance.SkipThreshold() {
		c.skipUnlocked = true
	}
	return c.skipUnlocked
}

func (c *Controller) progressLocked() Progress {
	p := Progress{SecondsWatched: c.timer.Seconds()}
	if !c.policy.skippable {
		return p
	}
	p.CanSkip = c.canSkipLocked()
	if !p.CanSkip {
		p.SkipRemaining = c.instance.SkipThreshold() - p.SecondsWatched
	}
	return p
}

func (c *Controller) startTickerLocked() {
	stop := make(chan struct{})
	c.stopTick = stop
	ticker := c.clock.NewTicker(time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				c.tick(stop)
			}
		}
	}()
}

func (c *Controller) tick(stop <-chan struct{}) {
	c.mu.Lock()
	select {
	case <-stop:
		c.mu.Unlock()
		return
	default:
	}
	p := c.progressLocked()
	c.mu.Unlock()

	if l, ok := c.host.(ProgressListener); ok {
		c.notify("progress", func() { l.Progress(p) })
	}
}

// haltLocked stops time accrual and the progress ticker. Eligibility reached
// so far is latched first.
func (c *Controller) haltLocked() {
	if c.policy.skippable {
		c.canSkipLocked()
	}
	c.timer.Stop()
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
}

func (c *Controller) send(kind beacon.Kind) {
	if c.beacons == nil {
		return
	}
	c.notify(string(kind)+" beacon", func() { c.beacons.Send(kind, c.instance.AdID) })
}

// notify shields the state machine from host and beacon failures.
func (c *Controller) notify(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(c.fields()).Errorf("Ad %s callback panicked: %v", what, r)
		}
	}()
	fn()
}

func (c *Controller) fields() logrus.Fields {
	return logrus.Fields{
		"ad_id":  c.instance.AdID,
		"format": c.instance.Format,
	}
}
