// Command preview fetches (or reads) a USGS GeoJSON feed once, lists the
// events that would qualify for an alert, and prints the message the service
// would broadcast for the most recent one. Nothing is sent.
//
// Usage:
//
//	go run ./cmd/preview -min-magnitude 3.0
//	go run ./cmd/preview -file testdata/usgs_2.5_day.geojson -all
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/quake-alert-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-alert-service/internal/config"
	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
)

type options struct {
	feedURL      string
	file         string
	timeout      time.Duration
	region       domain.BoundingBox
	minMagnitude float64
	timezone     string
	all          bool
}

func main() {
	var opts options
	flag.StringVar(&opts.feedURL, "feed-url", config.DefaultFeedURL, "USGS GeoJSON feed to fetch")
	flag.StringVar(&opts.file, "file", "", "read the feed from a local file instead of fetching it")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "feed request timeout")
	flag.Float64Var(&opts.region.LatMin, "lat-min", 5.0, "southern edge of the region")
	flag.Float64Var(&opts.region.LatMax, "lat-max", 22.0, "northern edge of the region")
	flag.Float64Var(&opts.region.LonMin, "lon-min", 92.0, "western edge of the region")
	flag.Float64Var(&opts.region.LonMax, "lon-max", 108.0, "eastern edge of the region")
	flag.Float64Var(&opts.minMagnitude, "min-magnitude", 2.5, "minimum magnitude to alert on")
	flag.StringVar(&opts.timezone, "tz", "Asia/Bangkok", "IANA zone for displayed times")
	flag.BoolVar(&opts.all, "all", false, "list every parsed event, marking the qualifying ones")
	flag.Parse()

	if code := run(context.Background(), os.Stdout, opts); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, out io.Writer, opts options) int {
	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: timezone %q: %v\n", opts.timezone, err)
		return 1
	}

	events, err := loadEvents(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	qualifies := domain.Qualifying(opts.region, opts.minMagnitude)
	listed := sortedNewestFirst(events, qualifies, opts.all)

	fmt.Fprintf(out, "Feed: %d events, region lat %g..%g lon %g..%g, magnitude >= %.1f\n\n",
		len(events), opts.region.LatMin, opts.region.LatMax, opts.region.LonMin, opts.region.LonMax, opts.minMagnitude)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tTIME\tMAG\tLAT\tLON\tPLACE")
	for _, e := range listed {
		mark := ""
		if opts.all && qualifies(e) {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%s\n",
			mark, e.ID, e.OccurredAt().In(loc).Format(time.DateTime), magString(e), e.Latitude, e.Longitude, e.Place)
	}
	_ = tw.Flush()

	latest, ok := domain.SelectMostRecentQualifying(events, qualifies)
	if !ok {
		fmt.Fprintln(out, "\nNo qualifying event; nothing would be sent.")
		return 0
	}

	fmt.Fprintln(out, "\n--- alert that would be sent ---")
	fmt.Fprintln(out, domain.NewFormatter(loc).FormatAlert(latest))
	return 0
}

func loadEvents(ctx context.Context, opts options) ([]domain.SeismicEvent, error) {
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, fmt.Errorf("read feed file: %w", err)
		}
		return domain.ParseFeed(data)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client := usgs.NewClient(opts.feedURL, opts.timeout, observability.NewUnregisteredMetrics(), logger)
	return client.Fetch(ctx)
}

// sortedNewestFirst returns the events to list, newest first. Unless all is
// set, only qualifying events are kept.
func sortedNewestFirst(events []domain.SeismicEvent, qualifies domain.Predicate, all bool) []domain.SeismicEvent {
	sorted := domain.SortNewestFirst(events)
	if all {
		return sorted
	}
	listed := sorted[:0]
	for _, e := range sorted {
		if qualifies(e) {
			listed = append(listed, e)
		}
	}
	return listed
}

func magString(e domain.SeismicEvent) string {
	if !e.HasMagnitude() {
		return "-"
	}
	return fmt.Sprintf("%.1f", *e.Magnitude)
}
