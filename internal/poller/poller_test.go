package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type fetchResult struct {
	events []domain.SeismicEvent
	err    error
	panic  bool
}

// scriptedFetcher replays results in order and repeats the last one.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	clock   clockwork.Clock
	calls   []time.Time
}

func (f *scriptedFetcher) Fetch(_ context.Context) ([]domain.SeismicEvent, error) {
	f.mu.Lock()
	i := len(f.calls)
	if f.clock != nil {
		f.calls = append(f.calls, f.clock.Now())
	} else {
		f.calls = append(f.calls, time.Time{})
	}
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	r := f.results[i]
	f.mu.Unlock()

	if r.panic {
		panic("feed decoder blew up")
	}
	return r.events, r.err
}

func (f *scriptedFetcher) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

type recordingDispatcher struct {
	mu    sync.Mutex
	texts []string
	errs  []error // by call index
}

func (d *recordingDispatcher) Send(_ context.Context, text string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := len(d.texts)
	d.texts = append(d.texts, text)
	if i < len(d.errs) && d.errs[i] != nil {
		return false, d.errs[i]
	}
	return true, nil
}

func (d *recordingDispatcher) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

type recordingArchive struct {
	records []domain.AlertRecord
	err     error
}

func (a *recordingArchive) Archive(_ context.Context, rec domain.AlertRecord) error {
	a.records = append(a.records, rec)
	return a.err
}

type stubGeocoder struct {
	place string
}

func (g stubGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{Lat: lat, Lon: lon, FormattedAddress: g.place}, nil
}

// --- helpers ---

var testRegion = domain.BoundingBox{LatMin: 5, LatMax: 22, LonMin: 92, LonMax: 108}

func mag(v float64) *float64 { return &v }

func event(id string, millis int64, m *float64, lat, lon float64) domain.SeismicEvent {
	return domain.SeismicEvent{
		ID:               id,
		OccurredAtMillis: millis,
		Magnitude:        m,
		Latitude:         lat,
		Longitude:        lon,
		DepthKm:          10,
		Place:            "near " + id,
	}
}

// sampleFeed mirrors testdata/usgs_2.5_day.geojson: the newest event is
// outside the region and the newest in-region one is below threshold.
func sampleFeed() []domain.SeismicEvent {
	return []domain.SeismicEvent{
		event("ak024abc", 1714160000000, mag(3.0), 61.2, -150.1),
		event("us7000low", 1714158000000, mag(2.2), 14.0, 100.5),
		event("us7000nul", 1714155000000, nil, 12.0, 99.0),
		event("us7000mya1", 1714150000000, mag(4.6), 21.9, 95.9),
		event("us7000mya2", 1714140000000, mag(3.1), 20.1, 96.4),
	}
}

func testSettings() Settings {
	return Settings{
		Region:          testRegion,
		MinMagnitude:    2.5,
		CheckInterval:   60 * time.Second,
		MessageDelay:    5 * time.Second,
		AnnounceTimeout: time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPoller(f FeedFetcher, d Dispatcher, settings Settings, opts ...Option) *Poller {
	formatter := domain.NewFormatter(time.FixedZone("Asia/Bangkok", 7*60*60))
	p := New(f, d, formatter, settings, discardLogger(), observability.NewMetricsForTesting(), opts...)
	p.newCycleID = func() string { return "cycle-test" }
	return p
}

// --- startup ---

func TestStart_SeedsLastNotifiedFromInRegionEvent(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{events: sampleFeed()}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings())

	require.NoError(t, p.start(context.Background()))

	// Magnitude is ignored when seeding; region is not.
	assert.Equal(t, int64(1714158000000), p.LastNotified())
	require.Len(t, d.sent(), 1)
	assert.Contains(t, d.sent()[0], "lat 5 to 22, lon 92 to 108")
}

func TestStart_NoInRegionEventKeepsSentinel(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{events: []domain.SeismicEvent{
		event("ak024abc", 1714160000000, mag(5.0), 61.2, -150.1),
	}}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings())

	require.NoError(t, p.start(context.Background()))
	assert.Equal(t, domain.NoPriorEvent, p.LastNotified())
}

func TestStart_FetchErrorStillAnnounces(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{err: domain.ErrNetwork}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings())

	require.NoError(t, p.start(context.Background()))
	assert.Equal(t, domain.NoPriorEvent, p.LastNotified())
	assert.Len(t, d.sent(), 1)
}

func TestRun_StartupAnnouncementFailureIsFatal(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{events: sampleFeed()}}}
	d := &recordingDispatcher{errs: []error{errors.New("line API error: status 401")}}
	p := newTestPoller(f, d, testSettings())

	err := p.Run(context.Background())

	require.ErrorIs(t, err, ErrStartupAnnouncement)
	assert.Equal(t, StateFatallyFailed, p.State())
	assert.Len(t, f.callTimes(), 1, "loop must not start")
	assert.Len(t, d.sent(), 1, "no shutdown message after a failed startup")
	assert.Error(t, p.CheckReadiness(context.Background()))
}

// --- cycles ---

func TestCycle_ReannouncesSameEventEveryCycle(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{events: sampleFeed()}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings())
	ctx := context.Background()

	require.NoError(t, p.start(ctx))
	assert.True(t, p.cycle(ctx))
	assert.True(t, p.cycle(ctx))

	sent := d.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, sent[1], sent[2])
	assert.Contains(t, sent[1], "near us7000mya1")
}

func TestCycle_DedupSkipsAlreadyAnnouncedEvent(t *testing.T) {
	settings := testSettings()
	settings.Dedup = true
	f := &scriptedFetcher{results: []fetchResult{{events: sampleFeed()}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, settings)
	ctx := context.Background()

	// Seed picks us7000low (newer than us7000mya1), so mya1 counts as seen.
	require.NoError(t, p.start(ctx))
	assert.False(t, p.cycle(ctx))
	assert.Len(t, d.sent(), 1)
}

func TestCycle_DedupAnnouncesNewerEventOnce(t *testing.T) {
	settings := testSettings()
	settings.Dedup = true
	newer := event("us7000new", 1714170000000, mag(5.1), 16.8, 96.1)
	f := &scriptedFetcher{results: []fetchResult{
		{events: sampleFeed()},
		{events: append([]domain.SeismicEvent{newer}, sampleFeed()...)},
	}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, settings)
	ctx := context.Background()

	require.NoError(t, p.start(ctx))
	assert.True(t, p.cycle(ctx))
	assert.False(t, p.cycle(ctx))

	assert.Len(t, d.sent(), 2)
	assert.Equal(t, newer.OccurredAtMillis, p.LastNotified())
}

func TestCycle_FetchErrorSkipsCycle(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{err: domain.ErrNetwork}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings())

	assert.False(t, p.cycle(context.Background()))
	assert.Empty(t, d.sent())
}

func TestCycle_NoQualifyingEvent(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{events: []domain.SeismicEvent{
		event("us7000low", 1714158000000, mag(2.2), 14.0, 100.5),
		event("us7000nul", 1714155000000, nil, 12.0, 99.0),
	}}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings())

	assert.False(t, p.cycle(context.Background()))
	assert.Empty(t, d.sent())
	assert.Equal(t, domain.NoPriorEvent, p.LastNotified())
}

func TestCycle_DispatchFailureLeavesStateUnchanged(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{events: sampleFeed()}}}
	d := &recordingDispatcher{errs: []error{errors.New("rate limit retries exhausted")}}
	archive := &recordingArchive{}
	p := newTestPoller(f, d, testSettings(), WithArchive(archive))

	assert.False(t, p.cycle(context.Background()))
	assert.Equal(t, domain.NoPriorEvent, p.LastNotified())
	assert.Empty(t, archive.records)
}

func TestCycle_LastNotifiedNeverMovesBackwards(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{events: sampleFeed()}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings())
	ctx := context.Background()

	require.NoError(t, p.start(ctx))
	seeded := p.LastNotified()

	// us7000mya1 is older than the seeded event.
	assert.True(t, p.cycle(ctx))
	assert.Equal(t, seeded, p.LastNotified())
}

func TestCycle_ArchivesDispatchedAlert(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{events: sampleFeed()}}}
	d := &recordingDispatcher{}
	archive := &recordingArchive{err: errors.New("broker down")}
	p := newTestPoller(f, d, testSettings(), WithArchive(archive))

	// Archive failures do not undo a delivered alert.
	assert.True(t, p.cycle(context.Background()))

	require.Len(t, archive.records, 1)
	rec := archive.records[0]
	assert.Equal(t, "us7000mya1", rec.EventID)
	assert.Equal(t, domain.SeverityModerate, rec.Severity)
	assert.Equal(t, "cycle-test", rec.CycleID)
	assert.Equal(t, d.sent()[0], rec.Message)
}

func TestCycle_GeocoderFillsMissingPlace(t *testing.T) {
	e := event("us7000mya1", 1714150000000, mag(4.6), 21.9, 95.9)
	e.Place = ""
	f := &scriptedFetcher{results: []fetchResult{{events: []domain.SeismicEvent{e}}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings(), WithGeocoder(stubGeocoder{place: "Mandalay, Myanmar"}))

	require.True(t, p.cycle(context.Background()))
	assert.Contains(t, d.sent()[0], "Place: Mandalay, Myanmar")
}

func TestCycle_AlertContent(t *testing.T) {
	e := domain.SeismicEvent{
		ID:               "us7000tha",
		OccurredAtMillis: 1714143000000,
		Magnitude:        mag(5.3),
		Latitude:         18.79,
		Longitude:        98.98,
		DepthKm:          12.5,
		Place:            "10 km N of Chiang Mai, Thailand",
	}
	f := &scriptedFetcher{results: []fetchResult{{events: []domain.SeismicEvent{e}}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings())

	require.True(t, p.cycle(context.Background()))

	msg := d.sent()[0]
	for _, want := range []string{
		"Magnitude: 5.3",
		"Place: 10 km N of Chiang Mai, Thailand",
		"Coordinates: (18.79, 98.98)",
		"Depth: 12.5 km",
		"Time: 2024-04-26 21:50:00",
		"https://www.google.com/maps?q=18.79,98.98",
	} {
		assert.Contains(t, msg, want)
	}
}

// slowFetcher advances a fake clock while fetching.
type slowFetcher struct {
	clock  *clockwork.FakeClock
	took   time.Duration
	events []domain.SeismicEvent
}

func (f *slowFetcher) Fetch(_ context.Context) ([]domain.SeismicEvent, error) {
	f.clock.Advance(f.took)
	return f.events, nil
}

func TestCycle_DurationUsesInjectedClock(t *testing.T) {
	fc := clockwork.NewFakeClock()
	f := &slowFetcher{clock: fc, took: 3 * time.Second, events: sampleFeed()}
	p := newTestPoller(f, &recordingDispatcher{}, testSettings(), WithClock(fc))

	require.True(t, p.cycle(context.Background()))

	var m dto.Metric
	require.NoError(t, p.metrics.CycleDuration.Write(&m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
	assert.InDelta(t, 3.0, m.GetHistogram().GetSampleSum(), 1e-9)
}

// --- run loop ---

func TestRun_CadenceAndShutdown(t *testing.T) {
	fc := clockwork.NewFakeClock()
	t0 := fc.Now()
	f := &scriptedFetcher{clock: fc, results: []fetchResult{{events: sampleFeed()}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings(), WithClock(fc))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runCtx, stop := context.WithCancel(ctx)

	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx) }()

	// Cycle 1 dispatched; waiting out the message delay.
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	assert.Equal(t, StateRunning, p.State())
	assert.NoError(t, p.CheckReadiness(ctx))
	fc.Advance(5 * time.Second)

	// Waiting out the check interval.
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(60 * time.Second)

	// Cycle 2 dispatched.
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	want := []time.Time{t0, t0, t0.Add(65 * time.Second)}
	assert.Empty(t, cmp.Diff(want, f.callTimes()))

	stop()
	require.NoError(t, <-done)

	assert.Equal(t, StateStopped, p.State())
	sent := d.sent()
	require.Len(t, sent, 4)
	assert.True(t, strings.HasPrefix(sent[0], "Earthquake alerts started"))
	assert.Equal(t, sent[1], sent[2])
	assert.Equal(t, "Earthquake alerts stopped", sent[3])
	assert.Error(t, p.CheckReadiness(ctx))
}

func TestRun_NoDispatchSkipsMessageDelay(t *testing.T) {
	fc := clockwork.NewFakeClock()
	t0 := fc.Now()
	f := &scriptedFetcher{clock: fc, results: []fetchResult{{events: nil}}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings(), WithClock(fc))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runCtx, stop := context.WithCancel(ctx)

	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx) }()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(60 * time.Second)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	want := []time.Time{t0, t0, t0.Add(60 * time.Second)}
	assert.Empty(t, cmp.Diff(want, f.callTimes()))

	stop()
	require.NoError(t, <-done)
}

func TestRun_PanicInCycleIsFatal(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{
		{events: sampleFeed()},
		{panic: true},
	}}
	d := &recordingDispatcher{}
	p := newTestPoller(f, d, testSettings(), WithClock(clockwork.NewFakeClock()))

	err := p.Run(context.Background())

	require.ErrorIs(t, err, ErrLoopFatal)
	assert.Equal(t, StateFatallyFailed, p.State())
	sent := d.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Earthquake alerts stopped because of an error", sent[1])
}

func TestRun_CancelledBeforeStartStops(t *testing.T) {
	f := &scriptedFetcher{results: []fetchResult{{err: context.Canceled}}}
	d := &recordingDispatcher{errs: []error{context.Canceled}}
	p := newTestPoller(f, d, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, StateStopped, p.State())
	assert.Equal(t, "Earthquake alerts stopped", d.sent()[len(d.sent())-1])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "fatally_failed", StateFatallyFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
