package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/notifier"
	"pickup-backend/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestActivityService_CreateActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	t.Run("Success", func(t *testing.T) {
		a, err := f.activities.CreateActivity(ctx, creator, &domain.Activity{
			Sport:       "basketball",
			Title:       "Pickup run",
			StartTime:   start,
			CapacityMin: 4,
			CapacityMax: 10,
			Status:      domain.ActivityStatusCompleted,
			Venue:       domain.Venue{Name: "Gym", Latitude: 40.7, Longitude: -74.0},
		})
		require.NoError(t, err)
		assert.NotZero(t, a.ID)
		assert.Equal(t, creator, a.CreatorID)
		assert.Equal(t, domain.ActivityStatusScheduled, a.Status)
		assert.Equal(t, DefaultDurationMinutes, a.DurationMinutes)
		assert.Equal(t, int64(1), a.Version)
	})

	t.Run("Validation", func(t *testing.T) {
		cases := map[string]domain.Activity{
			"no sport":       {StartTime: start, CapacityMin: 1, CapacityMax: 2},
			"inverted range": {Sport: "soccer", StartTime: start, CapacityMin: 5, CapacityMax: 2},
			"in the past":    {Sport: "soccer", StartTime: start.Add(-48 * time.Hour), CapacityMin: 1, CapacityMax: 2},
			"bad venue":      {Sport: "soccer", StartTime: start, CapacityMin: 1, CapacityMax: 2, Venue: domain.Venue{Latitude: 91}},
		}
		for name, a := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := f.activities.CreateActivity(ctx, creator, &a)
				assert.Equal(t, domain.KindValidation, domain.KindOf(err))
			})
		}
	})
}

func TestActivityService_UpdateActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	a := f.seed(t, 4)
	sub, err := f.hub.Subscribe(a.ID)
	require.NoError(t, err)
	defer sub.Close()

	_, err = f.activities.UpdateActivity(ctx, 1, a.ID, domain.ActivityPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, domain.ErrNotActivityCreator)

	_, err = f.activities.UpdateActivity(ctx, creator, a.ID, domain.ActivityPatch{})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	past := start.Add(-48 * time.Hour)
	_, err = f.activities.UpdateActivity(ctx, creator, a.ID, domain.ActivityPatch{StartTime: &past})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	updated, err := f.activities.UpdateActivity(ctx, creator, a.ID, domain.ActivityPatch{Title: strPtr("Evening game")})
	require.NoError(t, err)
	assert.Equal(t, "Evening game", updated.Title)
	assert.Equal(t, int64(2), updated.Version)

	u, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.EventActivityUpdated, u.Event.Kind)
	assert.Equal(t, int64(2), u.Event.Version)

	t.Run("Inside lock window", func(t *testing.T) {
		f.clock.Set(start.Add(-time.Hour))
		defer f.clock.Set(start.Add(-24 * time.Hour))
		_, err := f.activities.UpdateActivity(ctx, creator, a.ID, domain.ActivityPatch{Title: strPtr("late")})
		assert.ErrorIs(t, err, domain.ErrWithinLockWindow)
	})

	t.Run("Coordinator sees the new version", func(t *testing.T) {
		out, err := f.coord.Join(ctx, a.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), out.State.Version)
	})
}

func TestActivityService_UpdateCannotMoveStartIntoLockWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	a := f.seed(t, 4)
	f.joinAll(t, a.ID, 1)

	now := f.clock.Now()
	for _, moved := range []time.Time{now.Add(30 * time.Minute), now.Add(119 * time.Minute)} {
		_, err := f.activities.UpdateActivity(ctx, creator, a.ID, domain.ActivityPatch{StartTime: &moved})
		assert.ErrorIs(t, err, domain.ErrWithinLockWindow, moved)
	}

	got, err := f.activities.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.StartTime.Equal(start))

	// Confirmed players keep their way out.
	_, err = f.coord.Leave(ctx, a.ID, 1)
	require.NoError(t, err)

	later := now.Add(3 * time.Hour)
	updated, err := f.activities.UpdateActivity(ctx, creator, a.ID, domain.ActivityPatch{StartTime: &later})
	require.NoError(t, err)
	assert.True(t, updated.StartTime.Equal(later))
}

func TestActivityService_CancelActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	a := f.seed(t, 2)
	f.joinAll(t, a.ID, 1)

	_, err := f.activities.CancelActivity(ctx, 1, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotActivityCreator)

	// Cancelling is allowed inside the lock window.
	f.clock.Set(start.Add(-30 * time.Minute))
	cancelled, err := f.activities.CancelActivity(ctx, creator, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityStatusCancelled, cancelled.Status)

	_, err = f.activities.CancelActivity(ctx, creator, a.ID)
	assert.ErrorIs(t, err, domain.ErrActivityTerminal)

	_, err = f.coord.Join(ctx, a.ID, 2)
	assert.ErrorIs(t, err, domain.ErrActivityTerminal)

	t.Run("After start", func(t *testing.T) {
		b := f.seed(t, 2)
		f.clock.Set(start.Add(time.Minute))
		_, err := f.activities.CancelActivity(ctx, creator, b.ID)
		assert.ErrorIs(t, err, domain.ErrActivityStarted)
	})
}

func TestActivityService_DeleteActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	t.Run("Outside the deletion window", func(t *testing.T) {
		a := f.seed(t, 2)
		require.NoError(t, f.activities.DeleteActivity(ctx, creator, a.ID))

		_, err := f.activities.GetActivity(ctx, a.ID)
		assert.ErrorIs(t, err, domain.ErrActivityNotFound)
		_, err = f.coord.Roster(ctx, a.ID)
		assert.ErrorIs(t, err, domain.ErrActivityNotFound)
		assert.ErrorIs(t, f.activities.DeleteActivity(ctx, creator, a.ID), domain.ErrActivityNotFound)
	})

	t.Run("Inside the deletion window", func(t *testing.T) {
		a := f.seed(t, 2)
		f.clock.Set(start.Add(-3 * time.Hour))
		defer f.clock.Set(start.Add(-24 * time.Hour))

		err := f.activities.DeleteActivity(ctx, creator, a.ID)
		assert.ErrorIs(t, err, domain.ErrDeleteWindowClosed)

		_, err = f.activities.CancelActivity(ctx, creator, a.ID)
		require.NoError(t, err)
		assert.NoError(t, f.activities.DeleteActivity(ctx, creator, a.ID))
	})

	t.Run("Not organizer", func(t *testing.T) {
		a := f.seed(t, 2)
		assert.ErrorIs(t, f.activities.DeleteActivity(ctx, 1, a.ID), domain.ErrNotActivityCreator)
	})
}

func TestActivityService_LockStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	a := f.seed(t, 2)
	f.clock.Set(start.Add(-3 * time.Hour))

	ls, err := f.activities.LockStatus(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ls.Modify.CanModify)
	assert.Equal(t, start.Add(-2*time.Hour), ls.Modify.LockedAt)
	assert.False(t, ls.Delete.CanModify)
	assert.Equal(t, domain.LockReasonWithinLockWindow, ls.Delete.Reason)
}

func TestActivityService_ListMemberships(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	a := f.seed(t, 1)
	b := f.seed(t, 1)
	f.joinAll(t, a.ID, 1, 2)
	f.joinAll(t, b.ID, 2)

	entries, err := f.activities.ListMemberships(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.MembershipStateWaitlisted, entries[0].State)
	assert.Equal(t, domain.MembershipStateConfirmed, entries[1].State)
}

func TestActivityService_AdvanceLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	now := start

	seedAt := func(startTime time.Time) int32 {
		a := f.seed(t, 2)
		a.StartTime = startTime
		require.NoError(t, f.store.Update(ctx, a, a.Version))
		return a.ID
	}
	locked := seedAt(now.Add(time.Hour))
	later := seedAt(now.Add(5 * time.Hour))
	running := seedAt(now.Add(-30 * time.Minute))
	done := seedAt(now.Add(-3 * time.Hour))

	changed, err := f.activities.AdvanceLifecycle(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 3, changed)

	want := map[int32]domain.ActivityStatus{
		locked:  domain.ActivityStatusLocked,
		later:   domain.ActivityStatusScheduled,
		running: domain.ActivityStatusInProgress,
		done:    domain.ActivityStatusCompleted,
	}
	for id, status := range want {
		a, err := f.activities.GetActivity(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, a.Status, "activity %d", id)
	}

	changed, err = f.activities.AdvanceLifecycle(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestActivityService_ArchiveFinished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	now := start.Add(72 * time.Hour)

	old := f.seed(t, 2)
	recent := f.seed(t, 2)
	recent.StartTime = now.Add(-3 * time.Hour)
	require.NoError(t, f.store.Update(ctx, recent, recent.Version))
	gone := f.seed(t, 2)
	require.NoError(t, f.activities.DeleteActivity(ctx, creator, gone.ID))

	archived, err := f.activities.ArchiveFinished(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, archived)

	a, err := f.activities.GetActivity(ctx, old.ID)
	require.NoError(t, err)
	require.NotNil(t, a.ArchivedAt)
	assert.Equal(t, domain.ActivityStatusCompleted, a.Status)

	a, err = f.activities.GetActivity(ctx, recent.ID)
	require.NoError(t, err)
	assert.Nil(t, a.ArchivedAt)

	deleted, err := f.store.GetByID(ctx, gone.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted.ArchivedAt)
	assert.Equal(t, domain.ActivityStatusCancelled, deleted.Status)
}

func TestActivityService_WithMockRepos(t *testing.T) {
	ctx := context.Background()
	newService := func(repo *MockActivityRepo, memberships *MockMembershipRepo) ActivityService {
		clock := &fakeClock{t: start.Add(-24 * time.Hour)}
		return NewActivityService(repo, memberships, NewActivityGate(0), notifier.NewHub(0),
			policy.NewLockPolicy(0, 0), Options{Clock: clock.Now})
	}
	stored := &domain.Activity{
		ID: 1, CreatorID: creator, Sport: "soccer", StartTime: start, DurationMinutes: 60,
		CapacityMin: 1, CapacityMax: 2, Status: domain.ActivityStatusScheduled, Version: 4,
		Venue: domain.Venue{Latitude: 1, Longitude: 1},
	}

	t.Run("Gives up on repeated conflicts", func(t *testing.T) {
		repo := new(MockActivityRepo)
		repo.On("GetByID", ctx, int32(1)).Return(stored, nil)
		repo.On("Update", ctx, mock.AnythingOfType("*domain.Activity"), int64(4)).Return(domain.ErrVersionConflict)

		_, err := newService(repo, new(MockMembershipRepo)).CancelActivity(ctx, creator, 1)
		assert.Equal(t, domain.KindConflict, domain.KindOf(err))
		repo.AssertNumberOfCalls(t, "Update", DefaultMaxCommitAttempts)
	})

	t.Run("Lifecycle keeps going past a failing activity", func(t *testing.T) {
		repo := new(MockActivityRepo)
		second := *stored
		second.ID = 2
		boom := domain.StorageFailure("update activity", errors.New("disk full"))
		repo.On("ListDueForTransition", ctx, start.Add(2*time.Hour)).Return([]domain.Activity{*stored, second}, nil)
		repo.On("GetByID", ctx, int32(1)).Return(stored, nil)
		repo.On("GetByID", ctx, int32(2)).Return(&second, nil)
		repo.On("Update", ctx, mock.MatchedBy(func(a *domain.Activity) bool { return a.ID == 1 }), int64(4)).Return(boom)
		repo.On("Update", ctx, mock.MatchedBy(func(a *domain.Activity) bool { return a.ID == 2 }), int64(4)).Return(nil)

		changed, err := newService(repo, new(MockMembershipRepo)).AdvanceLifecycle(ctx, start)
		assert.Equal(t, 1, changed)
		assert.ErrorIs(t, err, boom)
		repo.AssertExpectations(t)
	})

	t.Run("List failure", func(t *testing.T) {
		memberships := new(MockMembershipRepo)
		memberships.On("ListByParticipant", ctx, int32(9)).Return(nil, domain.StorageFailure("list", errors.New("down")))
		_, err := newService(new(MockActivityRepo), memberships).ListMemberships(ctx, 9)
		assert.Equal(t, domain.KindStorage, domain.KindOf(err))
	})
}
