// Package poller runs the fetch, select, format, and dispatch cycle on a
// fixed cadence and tracks the last event it announced.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrStartupAnnouncement is returned by Run when the startup message could not be delivered.
	ErrStartupAnnouncement = errors.New("startup announcement failed")
	// ErrLoopFatal is returned by Run when a cycle panicked.
	ErrLoopFatal = errors.New("polling loop failed")
)

// FeedFetcher retrieves the current event feed.
type FeedFetcher interface {
	Fetch(ctx context.Context) ([]domain.SeismicEvent, error)
}

// Dispatcher delivers message text to the channel.
type Dispatcher interface {
	Send(ctx context.Context, text string) (bool, error)
}

// AlertArchiver records alerts that were delivered.
type AlertArchiver interface {
	Archive(ctx context.Context, record domain.AlertRecord) error
}

// Settings controls what qualifies and how often the loop runs.
type Settings struct {
	Region        domain.BoundingBox
	MinMagnitude  float64
	CheckInterval time.Duration
	MessageDelay  time.Duration
	// Dedup skips events not newer than the last one announced. Off by
	// default: every cycle re-announces the most recent qualifying event.
	Dedup bool
	// AnnounceTimeout bounds shutdown and failure announcements, which run
	// after the loop context is already done.
	AnnounceTimeout time.Duration
}

// Option customises a Poller.
type Option func(*Poller)

// WithGeocoder fills missing places on selected events before formatting.
func WithGeocoder(g domain.Geocoder) Option {
	return func(p *Poller) { p.geocoder = g }
}

// WithArchive publishes every delivered alert.
func WithArchive(a AlertArchiver) Option {
	return func(p *Poller) { p.archive = a }
}

// WithClock replaces the clock used for waits between cycles.
func WithClock(c clockwork.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// Poller orchestrates the alert loop.
type Poller struct {
	fetcher    FeedFetcher
	dispatcher Dispatcher
	formatter  domain.Formatter
	settings   Settings
	geocoder   domain.Geocoder
	archive    AlertArchiver
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	newCycleID func() string

	state        atomic.Int32
	lastNotified atomic.Int64 // epoch millis; written only by the Run goroutine
}

// New creates a Poller in the starting state.
func New(fetcher FeedFetcher, dispatcher Dispatcher, formatter domain.Formatter, settings Settings,
	logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Poller {
	if settings.AnnounceTimeout <= 0 {
		settings.AnnounceTimeout = 10 * time.Second
	}
	p := &Poller{
		fetcher:    fetcher,
		dispatcher: dispatcher,
		formatter:  formatter,
		settings:   settings,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
		metrics:    metrics,
		newCycleID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lastNotified.Store(domain.NoPriorEvent)
	return p
}

// State returns the current lifecycle phase.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// LastNotified returns the origin time (epoch millis) of the last announced
// event, or domain.NoPriorEvent.
func (p *Poller) LastNotified() int64 {
	return p.lastNotified.Load()
}

// CheckReadiness returns nil while the loop is running.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if s := p.State(); s != StateRunning {
		return fmt.Errorf("poller is %s", s)
	}
	return nil
}

// Run performs startup and then polls until ctx is cancelled (returns nil)
// or a cycle fails unexpectedly (returns ErrLoopFatal). A failed startup
// announcement returns ErrStartupAnnouncement without entering the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.setState(StateStarting)
	p.logger.Info("poller starting",
		"region", p.settings.Region,
		"min_magnitude", p.settings.MinMagnitude,
		"check_interval", p.settings.CheckInterval,
		"dedup", p.settings.Dedup,
	)

	if err := p.start(ctx); err != nil {
		if ctx.Err() != nil {
			p.stop()
			return nil
		}
		p.setState(StateFatallyFailed)
		p.logger.Error("startup failed, not entering loop", "error", err)
		return err
	}

	p.setState(StateRunning)
	p.metrics.PollerRunning.Set(1)
	defer p.metrics.PollerRunning.Set(0)

	if err := p.loop(ctx); err != nil {
		p.setState(StateFatallyFailed)
		p.logger.Error("poller stopped on error", "error", err)
		p.announce(p.formatter.FormatFailure())
		return err
	}

	p.stop()
	return nil
}

func (p *Poller) stop() {
	p.setState(StateStopped)
	p.logger.Info("poller stopping", "last_notified", p.LastNotified())
	p.announce(p.formatter.FormatShutdown())
}

// start seeds lastNotified from the feed so events already present are not
// treated as new, then sends the startup announcement.
func (p *Poller) start(ctx context.Context) error {
	events, err := p.fetcher.Fetch(ctx)
	if err != nil {
		p.logger.Warn("initial feed fetch failed", "error", err)
	} else if latest, ok := domain.SelectMostRecentQualifying(events, domain.InRegion(p.settings.Region)); ok {
		p.markNotified(latest.OccurredAtMillis)
		p.logger.Info("seeded last notified event", "event_id", latest.ID, "occurred_at", latest.OccurredAt())
	}

	msg := p.formatter.FormatStartup(p.settings.Region, p.settings.MinMagnitude, p.settings.CheckInterval)
	sent, err := p.dispatcher.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartupAnnouncement, err)
	}
	if !sent {
		return ErrStartupAnnouncement
	}
	return nil
}

func (p *Poller) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		dispatched, err := p.safeCycle(ctx)
		if err != nil {
			return err
		}
		if dispatched && !p.wait(ctx, p.settings.MessageDelay) {
			return nil
		}
		if !p.wait(ctx, p.settings.CheckInterval) {
			return nil
		}
	}
}

// safeCycle converts a panic inside a cycle into ErrLoopFatal.
func (p *Poller) safeCycle(ctx context.Context) (dispatched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLoopFatal, r)
		}
	}()
	return p.cycle(ctx), nil
}

// cycle runs one fetch-select-dispatch pass and reports whether an alert was delivered.
func (p *Poller) cycle(ctx context.Context) bool {
	start := p.clock.Now()
	cycleID := p.newCycleID()
	logger := p.logger.With("cycle_id", cycleID)
	defer func() { p.metrics.CycleDuration.Observe(p.clock.Since(start).Seconds()) }()

	events, err := p.fetcher.Fetch(ctx)
	if err != nil {
		logger.Error("feed fetch failed, skipping cycle", "error", err)
		p.metrics.Cycles.WithLabelValues("fetch_error").Inc()
		return false
	}

	event, ok := domain.SelectMostRecentQualifying(events, domain.Qualifying(p.settings.Region, p.settings.MinMagnitude))
	if !ok {
		logger.Debug("no qualifying event", "events", len(events))
		p.metrics.Cycles.WithLabelValues("no_match").Inc()
		return false
	}

	if p.settings.Dedup && event.OccurredAtMillis <= p.LastNotified() {
		logger.Debug("latest qualifying event already announced", "event_id", event.ID)
		p.metrics.Cycles.WithLabelValues("skipped").Inc()
		return false
	}

	event = domain.EnrichPlace(ctx, event, p.geocoder, logger)
	msg := p.formatter.FormatAlert(event)

	sent, err := p.dispatcher.Send(ctx, msg)
	if err != nil || !sent {
		logger.Error("alert dispatch failed", "event_id", event.ID, "error", err)
		p.metrics.Cycles.WithLabelValues("dispatch_error").Inc()
		return false
	}

	p.markNotified(event.OccurredAtMillis)
	p.metrics.Cycles.WithLabelValues("alerted").Inc()
	logger.Info("alert dispatched",
		"event_id", event.ID,
		"magnitude", *event.Magnitude,
		"place", event.Place,
		"occurred_at", event.OccurredAt(),
	)

	if p.archive != nil {
		if err := p.archive.Archive(ctx, domain.NewAlertRecord(event, cycleID, msg)); err != nil {
			logger.Warn("archive alert failed", "event_id", event.ID, "error", err)
			p.metrics.ArchiveErrors.Inc()
		}
	}
	return true
}

// markNotified advances lastNotified; it never moves backwards.
func (p *Poller) markNotified(millis int64) {
	for {
		cur := p.lastNotified.Load()
		if millis <= cur {
			return
		}
		if p.lastNotified.CompareAndSwap(cur, millis) {
			p.metrics.LastNotified.Set(float64(millis) / 1000)
			return
		}
	}
}

// announce sends a best-effort lifecycle message on a detached context.
func (p *Poller) announce(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.settings.AnnounceTimeout)
	defer cancel()

	if _, err := p.dispatcher.Send(ctx, text); err != nil {
		p.logger.Error("lifecycle announcement failed", "error", err)
	}
}

// wait sleeps for d and returns false if ctx was cancelled first.
func (p *Poller) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
}
