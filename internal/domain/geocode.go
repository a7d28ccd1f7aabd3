package domain

import (
	"context"
	"log/slog"
	"strings"
)

// EnrichPlace fills an empty Place by reverse geocoding the event's
// coordinates. The event is returned unchanged when geocoder is nil, the feed
// already named the place, or the lookup fails or finds nothing.
func EnrichPlace(ctx context.Context, event SeismicEvent, geocoder Geocoder, logger *slog.Logger) SeismicEvent {
	if geocoder == nil || strings.TrimSpace(event.Place) != "" {
		return event
	}

	result, err := geocoder.ReverseGeocode(ctx, event.Latitude, event.Longitude)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"event_id", event.ID,
			"lat", event.Latitude,
			"lon", event.Longitude,
			"error", err,
		)
		return event
	}

	switch {
	case result.FormattedAddress != "":
		event.Place = result.FormattedAddress
	case result.PlaceName != "":
		event.Place = result.PlaceName
	}
	return event
}
