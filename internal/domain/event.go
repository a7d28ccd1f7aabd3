package domain

import "time"

// NoPriorEvent is the last-notified sentinel used before any in-region event
// has been observed.
const NoPriorEvent int64 = 0

// SeismicEvent is one feed entry after parsing. It is treated as immutable;
// enrichment returns a modified copy.
type SeismicEvent struct {
	ID               string   `json:"id"`
	OccurredAtMillis int64    `json:"occurred_at_millis"`
	Magnitude        *float64 `json:"magnitude,omitempty"` // nil when the feed reports null
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	DepthKm          float64  `json:"depth_km"`
	Place            string   `json:"place,omitempty"`
}

// OccurredAt returns the origin time in UTC.
func (e SeismicEvent) OccurredAt() time.Time {
	return time.UnixMilli(e.OccurredAtMillis).UTC()
}

// HasMagnitude reports whether the feed supplied a magnitude.
func (e SeismicEvent) HasMagnitude() bool {
	return e.Magnitude != nil
}

// BoundingBox is a latitude/longitude rectangle with inclusive edges.
type BoundingBox struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// AlertRecord is the archived form of a dispatched alert.
type AlertRecord struct {
	EventID      string    `json:"event_id"`
	Severity     Severity  `json:"severity"`
	Magnitude    float64   `json:"magnitude"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	DepthKm      float64   `json:"depth_km"`
	Place        string    `json:"place,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
	DispatchedAt time.Time `json:"dispatched_at"`
	CycleID      string    `json:"cycle_id,omitempty"`
	Message      string    `json:"message"`
}

// NewAlertRecord builds the archive record for an event that was just
// broadcast with the given message text.
func NewAlertRecord(event SeismicEvent, cycleID, message string) AlertRecord {
	var mag float64
	if event.Magnitude != nil {
		mag = *event.Magnitude
	}
	return AlertRecord{
		EventID:      event.ID,
		Severity:     ClassifySeverity(mag),
		Magnitude:    mag,
		Latitude:     event.Latitude,
		Longitude:    event.Longitude,
		DepthKm:      event.DepthKm,
		Place:        event.Place,
		OccurredAt:   event.OccurredAt(),
		DispatchedAt: clock.Now().UTC(),
		CycleID:      cycleID,
		Message:      message,
	}
}
