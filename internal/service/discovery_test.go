package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"pickup-backend/internal/discovery"
	"pickup-backend/internal/domain"
	"pickup-backend/internal/repository"
	"pickup-backend/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var origin = domain.Location{Latitude: 40.7, Longitude: -74.0}

// north returns a venue km kilometres due north of origin.
func north(km float64) domain.Venue {
	return domain.Venue{Latitude: origin.Latitude + km/(6371*math.Pi/180), Longitude: origin.Longitude}
}

func TestDiscoveryService_Discover(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := start.Add(-24 * time.Hour)
	add := func(sport string, venue domain.Venue, capacity int32) *domain.Activity {
		a := &domain.Activity{
			CreatorID: creator, Sport: sport, StartTime: start, DurationMinutes: 60,
			CapacityMin: 1, CapacityMax: capacity, Status: domain.ActivityStatusScheduled, Venue: venue,
		}
		require.NoError(t, store.Create(ctx, a))
		return a
	}
	near := add("soccer", north(1), 10)
	mid := add("soccer", north(3), 10)
	add("tennis", north(2), 2)
	add("soccer", north(200), 10)

	svc := NewDiscoveryService(store, discovery.NewScorer(discovery.DefaultRadii()), func() time.Time { return now })

	t.Run("Nearest first", func(t *testing.T) {
		results, err := svc.Discover(ctx, origin, domain.DiscoveryFilters{})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, near.ID, results[0].Activity.ID)
		assert.InDelta(t, 1.0, results[0].DistanceKm, 0.01)
	})

	t.Run("Sport filter", func(t *testing.T) {
		results, err := svc.Discover(ctx, origin, domain.DiscoveryFilters{Sport: "soccer"})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, []int32{near.ID, mid.ID}, []int32{results[0].Activity.ID, results[1].Activity.ID})
	})

	t.Run("Limit", func(t *testing.T) {
		results, err := svc.Discover(ctx, origin, domain.DiscoveryFilters{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("Empty area", func(t *testing.T) {
		results, err := svc.Discover(ctx, domain.Location{Latitude: -33.9, Longitude: 151.2}, domain.DiscoveryFilters{})
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("Invalid location", func(t *testing.T) {
		_, err := svc.Discover(ctx, domain.Location{Latitude: 120}, domain.DiscoveryFilters{})
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})
}

func TestDiscoveryService_QueriesWidestRadius(t *testing.T) {
	ctx := context.Background()
	now := start.Add(-24 * time.Hour)
	radii := discovery.RadiusTable{
		DefaultKm: 5, MaxKm: 80, MinResults: 3,
		Sports: map[string]discovery.SportRadius{"cycling": {RadiusKm: 20, ExpandedKm: 80}, "chess": {RadiusKm: 2, ExpandedKm: 10}},
	}
	want := origin.BoundingBox(80)

	repo := new(MockActivityRepo)
	repo.On("ListDiscoverable", ctx, mock.MatchedBy(func(q repository.DiscoveryQuery) bool {
		return q.Bounds == want && q.Now.Equal(now) && q.Sport == "cycling"
	})).Return([]domain.Activity{}, nil).Once()
	repo.On("ListDiscoverable", ctx, mock.Anything).Return(nil, domain.StorageFailure("list discoverable", errors.New("timeout"))).Once()

	svc := NewDiscoveryService(repo, discovery.NewScorer(radii), func() time.Time { return now })
	results, err := svc.Discover(ctx, origin, domain.DiscoveryFilters{Sport: "cycling", Limit: 1000})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = svc.Discover(ctx, origin, domain.DiscoveryFilters{})
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
	repo.AssertExpectations(t)
}
