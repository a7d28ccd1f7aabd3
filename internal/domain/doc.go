// Package domain models seismic events reported by the USGS earthquake feed
// and the pure rules applied to them before an alert is broadcast.
//
// # Data Source
//
// Events come from the USGS real-time GeoJSON summary feeds, e.g.
// https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_day.geojson.
// The feed is a FeatureCollection; each Feature carries an opaque "id", a
// "properties" object and a Point "geometry".
//
// # USGS Feed Conventions
//
// Coordinates:
//
//	geometry.coordinates is [longitude, latitude, depth], longitude first.
//	Depth is in kilometres and may be omitted by some networks; it is then 0.
//	Features without geometry, with fewer than two coordinates, or with
//	latitude/longitude outside WGS-84 ranges are dropped by [ParseFeed].
//
// Time:
//
//	properties.time is the origin time in epoch milliseconds (UTC). Features
//	with a missing or non-positive time are dropped.
//
// Magnitude:
//
//	properties.mag is nullable. A null magnitude is kept as nil and such events
//	never qualify for an alert (see [IsQualifying]).
//
// Place:
//
//	properties.place is free text such as "95 km SW of Mawlaik, Myanmar" and
//	may be null. An empty place is rendered as [PlacePlaceholder] unless
//	reverse geocoding fills it first (see [EnrichPlace]).
//
// # Severity classification
//
// Three bands, lower bound inclusive:
//
//	severe:   magnitude >= 6.0
//	moderate: 4.0 <= magnitude < 6.0
//	light:    magnitude < 4.0
//
// # Selection
//
// Candidates are ordered newest first with a stable sort, so events sharing a
// timestamp keep feed order. See [SelectMostRecentQualifying].
package domain
