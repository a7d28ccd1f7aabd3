package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severity is the coarse alert band derived from magnitude.
type Severity string

const (
	SeverityLight    Severity = "light"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// PlacePlaceholder is shown when neither the feed nor geocoding supplied a place.
const PlacePlaceholder = "Unknown location"

const (
	severeThreshold   = 6.0
	moderateThreshold = 4.0

	localTimeLayout = "2006-01-02 15:04:05"
	mapLinkBase     = "https://www.google.com/maps?q="
)

// ClassifySeverity maps a magnitude to its band. Lower bounds are inclusive.
func ClassifySeverity(magnitude float64) Severity {
	switch {
	case magnitude >= severeThreshold:
		return SeveritySevere
	case magnitude >= moderateThreshold:
		return SeverityModerate
	default:
		return SeverityLight
	}
}

// Formatter renders broadcast texts. Location is the display time zone; UTC
// is used when it is nil.
type Formatter struct {
	Location *time.Location
}

// NewFormatter returns a Formatter for the given display zone.
func NewFormatter(loc *time.Location) Formatter {
	return Formatter{Location: loc}
}

func (f Formatter) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// FormatAlert renders the multi-line alert for a qualifying event.
func (f Formatter) FormatAlert(event SeismicEvent) string {
	var mag float64
	if event.Magnitude != nil {
		mag = *event.Magnitude
	}
	place := strings.TrimSpace(event.Place)
	if place == "" {
		place = PlacePlaceholder
	}

	loc := f.location()
	local := event.OccurredAt().In(loc)

	var b strings.Builder
	b.WriteString("Latest earthquake alert\n")
	fmt.Fprintf(&b, "Severity: %s\n", ClassifySeverity(mag))
	fmt.Fprintf(&b, "Magnitude: %.1f\n", mag)
	fmt.Fprintf(&b, "Place: %s\n", place)
	fmt.Fprintf(&b, "Coordinates: (%.2f, %.2f)\n", event.Latitude, event.Longitude)
	fmt.Fprintf(&b, "Depth: %.1f km\n", event.DepthKm)
	fmt.Fprintf(&b, "Time: %s (%s)\n", local.Format(localTimeLayout), loc.String())
	b.WriteString("Map: " + MapLink(event.Latitude, event.Longitude))
	return b.String()
}

// MapLink returns a map URL centred on the coordinate.
func MapLink(lat, lon float64) string {
	return mapLinkBase + formatCoord(lat) + "," + formatCoord(lon)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatStartup renders the announcement sent once the poller starts.
func (f Formatter) FormatStartup(bbox BoundingBox, minMagnitude float64, interval time.Duration) string {
	return fmt.Sprintf(
		"Earthquake alerts started\nWatching magnitude %.1f and above\nRegion: lat %s to %s, lon %s to %s\nChecking every %s",
		minMagnitude,
		formatCoord(bbox.LatMin), formatCoord(bbox.LatMax),
		formatCoord(bbox.LonMin), formatCoord(bbox.LonMax),
		interval,
	)
}

// FormatShutdown renders the announcement sent on a clean stop.
func (f Formatter) FormatShutdown() string {
	return "Earthquake alerts stopped"
}

// FormatFailure renders the announcement sent when the poller stops on an error.
func (f Formatter) FormatFailure() string {
	return "Earthquake alerts stopped because of an error"
}
