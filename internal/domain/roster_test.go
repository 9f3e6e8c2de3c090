package domain_test

import (
	"testing"
	"time"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	start = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	early = start.Add(-24 * time.Hour)
	rules = policy.NewLockPolicy(2*time.Hour, 4*time.Hour)
)

func newRoster(capacity int32) *domain.Roster {
	return &domain.Roster{Activity: domain.Activity{
		ID:              7,
		CreatorID:       100,
		StartTime:       start,
		DurationMinutes: 90,
		CapacityMin:     1,
		CapacityMax:     capacity,
		Status:          domain.ActivityStatusScheduled,
		Version:         1,
	}}
}

// apply folds a change back into the roster the way a store would, assigning IDs.
func apply(t *testing.T, r *domain.Roster, ch *domain.RosterChange, nextID *int64) *domain.Roster {
	t.Helper()
	require.Equal(t, r.Activity.Version, ch.ExpectedVersion)
	out := &domain.Roster{Activity: ch.Activity}
	updated := map[int64]domain.MembershipEntry{}
	for _, e := range ch.Updated {
		updated[e.ID] = e
	}
	for _, e := range r.Entries {
		if u, ok := updated[e.ID]; ok {
			e = u
		}
		if e.IsActive() {
			out.Entries = append(out.Entries, e)
		}
	}
	for _, e := range ch.Inserted {
		*nextID++
		e.ID = *nextID
		out.Entries = append(out.Entries, e)
	}
	return out
}

func join(t *testing.T, r *domain.Roster, pid int32, at time.Time, nextID *int64) (*domain.Roster, *domain.RosterChange) {
	t.Helper()
	ch, err := r.Join(pid, at)
	require.NoError(t, err)
	return apply(t, r, ch, nextID), ch
}

func positions(r *domain.Roster) map[int32]int32 {
	out := map[int32]int32{}
	for _, e := range r.Waitlist() {
		out[e.ParticipantID] = e.WaitlistPosition()
	}
	return out
}

func TestRoster_Join(t *testing.T) {
	var id int64
	r := newRoster(2)

	r, ch := join(t, r, 1, early, &id)
	assert.Equal(t, domain.EventJoined, ch.Events[0].Kind)
	assert.Equal(t, int32(1), r.Activity.ConfirmedCount)
	assert.Equal(t, int64(2), r.Activity.Version)

	r, _ = join(t, r, 2, early.Add(time.Second), &id)
	r, ch = join(t, r, 3, early.Add(2*time.Second), &id)
	assert.Equal(t, domain.EventWaitlisted, ch.Events[0].Kind)
	require.NotNil(t, ch.Events[0].Position)
	assert.Equal(t, int32(1), *ch.Events[0].Position)
	assert.Equal(t, int32(2), r.Activity.ConfirmedCount)
	assert.Equal(t, int32(1), r.Activity.WaitlistCount)

	t.Run("Already joined", func(t *testing.T) {
		_, err := r.Join(3, early)
		assert.ErrorIs(t, err, domain.ErrAlreadyJoined)
	})

	t.Run("Terminal", func(t *testing.T) {
		c := newRoster(2)
		c.Activity.Status = domain.ActivityStatusCancelled
		_, err := c.Join(1, early)
		assert.ErrorIs(t, err, domain.ErrActivityTerminal)
	})

	t.Run("Inside lock window is allowed", func(t *testing.T) {
		_, err := newRoster(2).Join(1, start.Add(-30*time.Minute))
		assert.NoError(t, err)
	})

	t.Run("Started", func(t *testing.T) {
		_, err := newRoster(2).Join(1, start)
		assert.ErrorIs(t, err, domain.ErrActivityStarted)
	})

	t.Run("Late join allowed", func(t *testing.T) {
		c := newRoster(2)
		c.Activity.AllowLateJoin = true
		_, err := c.Join(1, start.Add(10*time.Minute))
		assert.NoError(t, err)
	})
}

func TestRoster_LeavePromotesHead(t *testing.T) {
	var id int64
	r := newRoster(2)
	for i, pid := range []int32{1, 2, 3, 4, 5} {
		r, _ = join(t, r, pid, early.Add(time.Duration(i)*time.Second), &id)
	}
	assert.Equal(t, map[int32]int32{3: 1, 4: 2, 5: 3}, positions(r))

	ch, err := r.Leave(1, early.Add(time.Minute), rules)
	require.NoError(t, err)
	require.Len(t, ch.Events, 2)
	assert.Equal(t, domain.EventLeft, ch.Events[0].Kind)
	assert.Equal(t, domain.EventPromoted, ch.Events[1].Kind)
	assert.Equal(t, int32(3), ch.Events[1].ParticipantID)

	promoted := ch.Promoted()
	require.Len(t, promoted, 1)
	assert.Equal(t, domain.MembershipStateConfirmed, promoted[0].State)
	assert.Nil(t, promoted[0].Position)

	left, ok := ch.Entry(1)
	require.True(t, ok)
	assert.Equal(t, domain.MembershipStateLeft, left.State)
	assert.NotNil(t, left.LeftAt)

	r = apply(t, r, ch, &id)
	assert.Equal(t, int32(2), r.Activity.ConfirmedCount)
	assert.Equal(t, int32(2), r.Activity.WaitlistCount)
	assert.Equal(t, map[int32]int32{4: 1, 5: 2}, positions(r))
}

func TestRoster_WaitlistedLeaveRenumbers(t *testing.T) {
	var id int64
	r := newRoster(1)
	for i, pid := range []int32{1, 2, 3, 4} {
		r, _ = join(t, r, pid, early.Add(time.Duration(i)*time.Second), &id)
	}

	// Waitlisted players may leave even after start.
	ch, err := r.Leave(3, start.Add(time.Minute), rules)
	require.NoError(t, err)
	require.Len(t, ch.Events, 1)
	r = apply(t, r, ch, &id)
	assert.Equal(t, map[int32]int32{2: 1, 4: 2}, positions(r))
	assert.Equal(t, int32(1), r.Activity.ConfirmedCount)
}

func TestRoster_LeaveWindow(t *testing.T) {
	var id int64
	r, _ := join(t, newRoster(2), 1, early, &id)

	_, err := r.Leave(1, start.Add(-119*time.Minute), rules)
	assert.ErrorIs(t, err, domain.ErrLeaveWindowClosed)

	_, err = r.Leave(1, start.Add(-121*time.Minute), rules)
	assert.NoError(t, err)

	_, err = r.Leave(2, early, rules)
	assert.ErrorIs(t, err, domain.ErrNotAJoinedParticipant)
}

func TestRoster_Remove(t *testing.T) {
	var id int64
	r := newRoster(1)
	r, _ = join(t, r, 1, early, &id)
	r, _ = join(t, r, 2, early.Add(time.Second), &id)

	_, err := r.Remove(1, 1, early)
	assert.ErrorIs(t, err, domain.ErrNotActivityCreator)

	// Organizer override ignores the leave window.
	ch, err := r.Remove(100, 1, start.Add(-10*time.Minute))
	require.NoError(t, err)
	removed, _ := ch.Entry(1)
	assert.Equal(t, domain.MembershipStateRemoved, removed.State)
	require.NotNil(t, removed.RemovedBy)
	assert.Equal(t, int32(100), *removed.RemovedBy)
	assert.Equal(t, domain.EventPromoted, ch.Events[1].Kind)

	r = apply(t, r, ch, &id)
	// Removed players may re-join with a new entry.
	r, ch = join(t, r, 1, start.Add(-5*time.Minute), &id)
	assert.Equal(t, domain.EventWaitlisted, ch.Events[0].Kind)
	assert.Len(t, ch.Inserted, 1)
}

func TestRoster_TerminalReleaseKeepsWaitlist(t *testing.T) {
	for _, status := range []domain.ActivityStatus{domain.ActivityStatusCancelled, domain.ActivityStatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			var id int64
			r := newRoster(2)
			for i, pid := range []int32{1, 2, 3, 4} {
				r, _ = join(t, r, pid, early.Add(time.Duration(i)*time.Second), &id)
			}
			r.Activity.Status = status
			assert.True(t, r.Activity.State().HasMinimum)

			ch, err := r.Leave(1, early.Add(time.Minute), rules)
			require.NoError(t, err)
			require.Len(t, ch.Events, 1)
			assert.Equal(t, domain.EventLeft, ch.Events[0].Kind)
			assert.Empty(t, ch.Promoted())
			r = apply(t, r, ch, &id)

			ch, err = r.Remove(100, 2, early.Add(2*time.Minute))
			require.NoError(t, err)
			require.Len(t, ch.Events, 1)
			assert.Equal(t, domain.EventRemoved, ch.Events[0].Kind)
			assert.Empty(t, ch.Promoted())
			r = apply(t, r, ch, &id)

			assert.Equal(t, int32(0), r.Activity.ConfirmedCount)
			assert.Equal(t, int32(2), r.Activity.WaitlistCount)
			assert.Equal(t, map[int32]int32{3: 1, 4: 2}, positions(r))
			assert.False(t, r.Activity.State().HasMinimum)
		})
	}
}

func TestRoster_Demote(t *testing.T) {
	var id int64
	r := newRoster(2)
	for i, pid := range []int32{1, 2, 3, 4} {
		r, _ = join(t, r, pid, early.Add(time.Duration(i)*time.Second), &id)
	}

	_, err := r.Demote(100, 3, early)
	assert.ErrorIs(t, err, domain.ErrNotConfirmedParticipant)

	ch, err := r.Demote(100, 1, early.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, ch.Events, 2)
	assert.Equal(t, domain.EventDemoted, ch.Events[0].Kind)
	assert.Equal(t, int32(2), *ch.Events[0].Position)
	assert.Equal(t, int32(3), ch.Events[1].ParticipantID)

	r = apply(t, r, ch, &id)
	assert.Equal(t, map[int32]int32{4: 1, 1: 2}, positions(r))
	assert.Equal(t, int32(2), r.Activity.ConfirmedCount)

	t.Run("Empty waitlist", func(t *testing.T) {
		c, _ := join(t, newRoster(2), 1, early, new(int64))
		_, err := c.Demote(100, 1, early)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})
}

func TestRoster_Resize(t *testing.T) {
	var id int64
	r := newRoster(2)
	for i, pid := range []int32{1, 2, 3, 4, 5} {
		r, _ = join(t, r, pid, early.Add(time.Duration(i)*time.Second), &id)
	}

	_, err := r.Resize(100, 1, 1, early, rules)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = r.Resize(100, 3, 2, early, rules)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = r.Resize(100, 1, 6, start.Add(-time.Hour), rules)
	assert.ErrorIs(t, err, domain.ErrWithinLockWindow)

	ch, err := r.Resize(100, 2, 4, early, rules)
	require.NoError(t, err)
	require.Len(t, ch.Events, 3)
	assert.Equal(t, domain.EventCapacityChanged, ch.Events[0].Kind)
	assert.Equal(t, int32(3), ch.Events[1].ParticipantID)
	assert.Equal(t, int32(4), ch.Events[2].ParticipantID)

	r = apply(t, r, ch, &id)
	assert.Equal(t, int32(4), r.Activity.ConfirmedCount)
	assert.Equal(t, map[int32]int32{5: 1}, positions(r))
}

// The worked example: capacity 2, A and B confirmed, C waitlisted, A leaves, D joins.
func TestRoster_Scenario(t *testing.T) {
	const a, b, c, d = 1, 2, 3, 4
	var id int64
	r := newRoster(2)
	r, _ = join(t, r, a, early, &id)
	r, _ = join(t, r, b, early.Add(time.Second), &id)
	r, _ = join(t, r, c, early.Add(2*time.Second), &id)
	assert.Equal(t, map[int32]int32{c: 1}, positions(r))

	ch, err := r.Leave(a, early.Add(time.Minute), rules)
	require.NoError(t, err)
	r = apply(t, r, ch, &id)
	assert.Equal(t, int32(2), r.Activity.ConfirmedCount)
	assert.Equal(t, int32(0), r.Activity.WaitlistCount)

	r, ch = join(t, r, d, early.Add(2*time.Minute), &id)
	assert.Equal(t, domain.EventWaitlisted, ch.Events[0].Kind)
	assert.Equal(t, int32(1), *ch.Events[0].Position)
	assert.Equal(t, int32(1), r.Activity.WaitlistCount)
}
