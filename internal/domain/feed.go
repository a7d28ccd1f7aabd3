package domain

import (
	"encoding/json"
	"fmt"
)

// featureCollection mirrors the subset of the USGS GeoJSON summary format we read.
type featureCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

type feature struct {
	ID         string            `json:"id"`
	Properties featureProperties `json:"properties"`
	Geometry   *featureGeometry  `json:"geometry"`
}

type featureProperties struct {
	Mag   *float64 `json:"mag"`
	Place *string  `json:"place"`
	Time  *int64   `json:"time"`
}

type featureGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

// ParseFeed decodes a USGS GeoJSON document into events, preserving feed
// order. Features are decoded one at a time, so a feature with mistyped or
// unusable geometry or time is skipped without affecting the rest; only a
// body that is not a JSON object with a features array is an error.
func ParseFeed(data []byte) ([]SeismicEvent, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if fc.Features == nil {
		return nil, fmt.Errorf("parse feed: missing features array")
	}

	events := make([]SeismicEvent, 0, len(fc.Features))
	for _, raw := range fc.Features {
		var f feature
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		event, ok := eventFromFeature(f)
		if !ok {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func eventFromFeature(f feature) (SeismicEvent, bool) {
	if f.Geometry == nil || len(f.Geometry.Coordinates) < 2 {
		return SeismicEvent{}, false
	}
	if f.Properties.Time == nil || *f.Properties.Time <= 0 {
		return SeismicEvent{}, false
	}

	lon := f.Geometry.Coordinates[0]
	lat := f.Geometry.Coordinates[1]
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return SeismicEvent{}, false
	}

	var depth float64
	if len(f.Geometry.Coordinates) > 2 {
		depth = f.Geometry.Coordinates[2]
	}

	var place string
	if f.Properties.Place != nil {
		place = *f.Properties.Place
	}

	var mag *float64
	if f.Properties.Mag != nil {
		m := *f.Properties.Mag
		mag = &m
	}

	return SeismicEvent{
		ID:               f.ID,
		OccurredAtMillis: *f.Properties.Time,
		Magnitude:        mag,
		Latitude:         lat,
		Longitude:        lon,
		DepthKm:          depth,
		Place:            place,
	}, true
}
