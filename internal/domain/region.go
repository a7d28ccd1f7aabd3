package domain

// Contains reports whether the coordinate lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// IsQualifying reports whether an event should trigger an alert: it has a
// magnitude of at least minMagnitude and lies inside bbox.
func IsQualifying(event SeismicEvent, bbox BoundingBox, minMagnitude float64) bool {
	if event.Magnitude == nil || *event.Magnitude < minMagnitude {
		return false
	}
	return bbox.Contains(event.Latitude, event.Longitude)
}

// Predicate selects events.
type Predicate func(SeismicEvent) bool

// Qualifying returns the alert predicate for a region and threshold.
func Qualifying(bbox BoundingBox, minMagnitude float64) Predicate {
	return func(e SeismicEvent) bool {
		return IsQualifying(e, bbox, minMagnitude)
	}
}

// InRegion matches any event inside bbox regardless of magnitude.
func InRegion(bbox BoundingBox) Predicate {
	return func(e SeismicEvent) bool {
		return bbox.Contains(e.Latitude, e.Longitude)
	}
}
