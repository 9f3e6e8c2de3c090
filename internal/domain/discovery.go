package domain

import (
	"math"
	"time"
)

// Location is a WGS84 coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l Location) Valid() bool {
	return !math.IsNaN(l.Latitude) && !math.IsNaN(l.Longitude) &&
		l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// DiscoveryFilters narrows a discovery query. A nil IncludeFull means full
// activities are returned (flagged), so waitlists stay reachable.
type DiscoveryFilters struct {
	Sport        string
	IncludeFull  *bool
	StartsBefore *time.Time
	Limit        int
}

func (f DiscoveryFilters) WantsFull() bool {
	return f.IncludeFull == nil || *f.IncludeFull
}

// DiscoveryResult is one ranked activity.
type DiscoveryResult struct {
	Activity       Activity `json:"activity"`
	DistanceKm     float64  `json:"distance_km"`
	SpotsRemaining int32    `json:"spots_remaining"`
	Full           bool     `json:"full"`
}

// Bounds is a lat/lng rectangle used to prefilter candidates before exact
// distance ranking.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a rectangle enclosing every point within km of l.
// Longitude spans the full range near the poles and across the antimeridian.
func (l Location) BoundingBox(km float64) Bounds {
	const kmPerDegree = 111.195
	dLat := km / kmPerDegree
	b := Bounds{
		MinLat: math.Max(l.Latitude-dLat, -90),
		MaxLat: math.Min(l.Latitude+dLat, 90),
		MinLng: -180,
		MaxLng: 180,
	}
	if cos := math.Cos(l.Latitude * math.Pi / 180); cos > 0.01 {
		dLng := km / (kmPerDegree * cos)
		if l.Longitude-dLng >= -180 && l.Longitude+dLng <= 180 {
			b.MinLng = l.Longitude - dLng
			b.MaxLng = l.Longitude + dLng
		}
	}
	return b
}

func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}
