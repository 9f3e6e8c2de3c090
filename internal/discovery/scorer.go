package discovery

import (
	"iter"
	"math"
	"sort"
	"time"

	"pickup-backend/internal/domain"
)

const (
	DefaultRadiusKm   = 5.0
	DefaultMaxKm      = 50.0
	DefaultMinResults = 3
)

// SportRadius overrides the search radius for one sport. ExpandedKm applies
// when the base radius yields too few activities.
type SportRadius struct {
	RadiusKm   float64
	ExpandedKm float64
}

// RadiusTable holds the configured search radii.
type RadiusTable struct {
	DefaultKm  float64
	MaxKm      float64
	MinResults int
	Sports     map[string]SportRadius
}

// DefaultRadii returns the table used when nothing is configured.
func DefaultRadii() RadiusTable {
	return RadiusTable{DefaultKm: DefaultRadiusKm, MaxKm: DefaultMaxKm, MinResults: DefaultMinResults}
}

// For returns the base and expanded radius for sport, both capped at MaxKm.
// A sport without an expanded radius expands to MaxKm.
func (t RadiusTable) For(sport string) (base, expanded float64) {
	maxKm := t.MaxKm
	if maxKm <= 0 {
		maxKm = DefaultMaxKm
	}
	base = t.DefaultKm
	if base <= 0 {
		base = DefaultRadiusKm
	}
	expanded = maxKm
	if r, ok := t.Sports[sport]; ok {
		if r.RadiusKm > 0 {
			base = r.RadiusKm
		}
		if r.ExpandedKm > 0 {
			expanded = r.ExpandedKm
		}
	}
	base = math.Min(base, maxKm)
	expanded = math.Min(math.Max(expanded, base), maxKm)
	return base, expanded
}

// Scorer ranks activities by distance from a searcher.
type Scorer struct {
	Radii RadiusTable
}

func NewScorer(radii RadiusTable) *Scorer {
	return &Scorer{Radii: radii}
}

type candidate struct {
	activity domain.Activity
	distance float64
	base     float64
	expanded float64
}

// Rank returns candidates near origin, nearest first. Ties go to the sooner
// start, then the lower ID. Nothing is computed until the sequence is ranged.
func (s *Scorer) Rank(origin domain.Location, activities []domain.Activity, filters domain.DiscoveryFilters, now time.Time) iter.Seq[domain.DiscoveryResult] {
	return func(yield func(domain.DiscoveryResult) bool) {
		pool := make([]candidate, 0, len(activities))
		inBase := 0
		for _, a := range activities {
			if !eligible(&a, filters, now) {
				continue
			}
			c := candidate{activity: a}
			c.base, c.expanded = s.Radii.For(a.Sport)
			c.distance = HaversineKm(origin.Latitude, origin.Longitude, a.Venue.Latitude, a.Venue.Longitude)
			if c.distance > c.expanded {
				continue
			}
			if c.distance <= c.base {
				inBase++
			}
			pool = append(pool, c)
		}

		expand := inBase < s.Radii.MinResults
		ranked := pool[:0]
		for _, c := range pool {
			if expand || c.distance <= c.base {
				ranked = append(ranked, c)
			}
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			if a.distance != b.distance {
				return a.distance < b.distance
			}
			if !a.activity.StartTime.Equal(b.activity.StartTime) {
				return a.activity.StartTime.Before(b.activity.StartTime)
			}
			return a.activity.ID < b.activity.ID
		})

		for i, c := range ranked {
			if filters.Limit > 0 && i >= filters.Limit {
				return
			}
			r := domain.DiscoveryResult{
				Activity:       c.activity,
				DistanceKm:     c.distance,
				SpotsRemaining: c.activity.SpotsRemaining(),
				Full:           c.activity.IsFull(),
			}
			if !yield(r) {
				return
			}
		}
	}
}

func eligible(a *domain.Activity, f domain.DiscoveryFilters, now time.Time) bool {
	if a.IsTerminal() || a.ArchivedAt != nil || a.DeletedAt != nil {
		return false
	}
	if a.HasStarted(now) && !a.AllowLateJoin {
		return false
	}
	if f.Sport != "" && a.Sport != f.Sport {
		return false
	}
	if a.IsFull() && !f.WantsFull() {
		return false
	}
	if f.StartsBefore != nil && !a.StartTime.Before(*f.StartsBefore) {
		return false
	}
	return domain.Location{Latitude: a.Venue.Latitude, Longitude: a.Venue.Longitude}.Valid()
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
