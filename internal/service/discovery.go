package service

import (
	"context"
	"slices"

	"pickup-backend/internal/discovery"
	"pickup-backend/internal/domain"
	"pickup-backend/internal/logger"
	"pickup-backend/internal/repository"
)

const (
	DefaultDiscoveryLimit = 20
	MaxDiscoveryLimit     = 100
)

type discoveryService struct {
	activities repository.ActivityRepository
	scorer     *discovery.Scorer
	clock      Clock
}

func NewDiscoveryService(activities repository.ActivityRepository, scorer *discovery.Scorer, clock Clock) DiscoveryService {
	if clock == nil {
		clock = Options{}.withDefaults().Clock
	}
	return &discoveryService{activities: activities, scorer: scorer, clock: clock}
}

// Discover prefilters by the widest configured radius and ranks the rest
// by exact distance.
func (s *discoveryService) Discover(ctx context.Context, origin domain.Location, filters domain.DiscoveryFilters) ([]domain.DiscoveryResult, error) {
	logger.EnterMethod("discoveryService.Discover", "lat", origin.Latitude, "lng", origin.Longitude, "sport", filters.Sport)

	if !origin.Valid() {
		err := domain.Invalid("location %v,%v is out of range", origin.Latitude, origin.Longitude)
		logger.ExitMethodWithError("discoveryService.Discover", err)
		return nil, err
	}
	switch {
	case filters.Limit <= 0:
		filters.Limit = DefaultDiscoveryLimit
	case filters.Limit > MaxDiscoveryLimit:
		filters.Limit = MaxDiscoveryLimit
	}

	_, widest := s.scorer.Radii.For("")
	for sport := range s.scorer.Radii.Sports {
		if _, expanded := s.scorer.Radii.For(sport); expanded > widest {
			widest = expanded
		}
	}

	now := s.clock()
	candidates, err := s.activities.ListDiscoverable(ctx, repository.DiscoveryQuery{
		Bounds: origin.BoundingBox(widest),
		Sport:  filters.Sport,
		Now:    now,
	})
	if err != nil {
		logger.ExitMethodWithError("discoveryService.Discover", err)
		return nil, err
	}

	results := slices.Collect(s.scorer.Rank(origin, candidates, filters, now))
	if results == nil {
		results = []domain.DiscoveryResult{}
	}
	logger.ExitMethod("discoveryService.Discover", "candidates", len(candidates), "results", len(results))
	return results, nil
}
