package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/notifier"
	"pickup-backend/internal/policy"
	"pickup-backend/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

const creator int32 = 100

var start = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	store      *memory.Store
	hub        *notifier.Hub
	gate       *ActivityGate
	clock      *fakeClock
	coord      Coordinator
	activities ActivityService
}

func newFixture(t *testing.T, queueSize int) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		hub:   notifier.NewHub(queueSize),
		gate:  NewActivityGate(0),
		clock: &fakeClock{t: start.Add(-24 * time.Hour)},
	}
	rules := policy.NewLockPolicy(2*time.Hour, 4*time.Hour)
	opts := Options{Clock: f.clock.Now}
	f.coord = NewCoordinator(f.store, f.gate, f.hub, rules, opts)
	f.activities = NewActivityService(f.store, f.store, f.gate, f.hub, rules, opts)
	t.Cleanup(f.hub.Close)
	return f
}

func (f *fixture) seed(t *testing.T, capacity int32) *domain.Activity {
	t.Helper()
	a := &domain.Activity{
		CreatorID:       creator,
		Sport:           "soccer",
		Title:           "Sunday five-a-side",
		StartTime:       start,
		DurationMinutes: 90,
		CapacityMin:     1,
		CapacityMax:     capacity,
		Status:          domain.ActivityStatusScheduled,
		Venue:           domain.Venue{Name: "Park", Latitude: 40.7, Longitude: -74.0},
	}
	require.NoError(t, f.store.Create(context.Background(), a))
	return a
}

func (f *fixture) joinAll(t *testing.T, activityID int32, participants ...int32) {
	t.Helper()
	for _, p := range participants {
		_, err := f.coord.Join(context.Background(), activityID, p)
		require.NoError(t, err)
	}
}

func participantIDs(entries []domain.MembershipEntry) []int32 {
	out := make([]int32, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ParticipantID)
	}
	return out
}

// flakyRosters fails the first failures commits with err.
type flakyRosters struct {
	*memory.Store
	mu       sync.Mutex
	failures int
	err      error
	commits  int
}

func (r *flakyRosters) CommitRoster(ctx context.Context, ch *domain.RosterChange) error {
	r.mu.Lock()
	r.commits++
	fail := r.commits <= r.failures
	r.mu.Unlock()
	if fail {
		return r.err
	}
	return r.Store.CommitRoster(ctx, ch)
}
