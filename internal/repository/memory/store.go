// Package memory is an in-process store used for local runs and tests. Every
// write happens inside one critical section, so a commit is all-or-nothing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/repository"
)

type Store struct {
	mu           sync.RWMutex
	activities   map[int32]domain.Activity
	entries      map[int32][]domain.MembershipEntry
	nextActivity int32
	nextEntry    int64
	now          func() time.Time
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		activities: make(map[int32]domain.Activity),
		entries:    make(map[int32][]domain.MembershipEntry),
		now:        time.Now,
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Create(ctx context.Context, a *domain.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextActivity++
	now := s.now()
	a.ID = s.nextActivity
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now
	s.activities[a.ID] = *a
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int32) (*domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, domain.ErrActivityNotFound
	}
	return &a, nil
}

func (s *Store) Update(ctx context.Context, a *domain.Activity, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.activities[a.ID]
	if !ok {
		return domain.ErrActivityNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	// Counters and capacity stay as stored.
	next := *a
	next.CapacityMin = cur.CapacityMin
	next.CapacityMax = cur.CapacityMax
	next.ConfirmedCount = cur.ConfirmedCount
	next.WaitlistCount = cur.WaitlistCount
	next.CreatedAt = cur.CreatedAt
	next.Version = expectedVersion + 1
	next.UpdatedAt = s.now()
	s.activities[a.ID] = next
	*a = next
	return nil
}

func (s *Store) ListDiscoverable(ctx context.Context, q repository.DiscoveryQuery) ([]domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.filter(func(a *domain.Activity) bool {
		if a.IsTerminal() || a.DeletedAt != nil || a.ArchivedAt != nil {
			return false
		}
		if !a.StartTime.After(q.Now) && !a.AllowLateJoin {
			return false
		}
		if q.Sport != "" && a.Sport != q.Sport {
			return false
		}
		return q.Bounds.Contains(a.Venue.Latitude, a.Venue.Longitude)
	}), nil
}

func (s *Store) ListDueForTransition(ctx context.Context, horizon time.Time) ([]domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.filter(func(a *domain.Activity) bool {
		return !a.IsTerminal() && a.DeletedAt == nil && !a.StartTime.After(horizon)
	}), nil
}

func (s *Store) ListArchivable(ctx context.Context, cutoff time.Time) ([]domain.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.filter(func(a *domain.Activity) bool {
		return a.ArchivedAt == nil && !a.EndTime().After(cutoff)
	}), nil
}

func (s *Store) LoadRoster(ctx context.Context, activityID int32) (*domain.Roster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[activityID]
	if !ok || a.DeletedAt != nil {
		return nil, domain.ErrActivityNotFound
	}
	r := &domain.Roster{Activity: a}
	for _, e := range s.entries[activityID] {
		if e.IsActive() {
			r.Entries = append(r.Entries, e)
		}
	}
	return r, nil
}

func (s *Store) CommitRoster(ctx context.Context, ch *domain.RosterChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Checked under the lock: a caller that has given up never gets a commit.
	if err := ctx.Err(); err != nil {
		return err
	}
	cur, ok := s.activities[ch.ActivityID]
	if !ok {
		return domain.ErrActivityNotFound
	}
	if cur.Version != ch.ExpectedVersion {
		return domain.ErrVersionConflict
	}

	entries := s.entries[ch.ActivityID]
	index := make(map[int64]int, len(entries))
	for i, e := range entries {
		index[e.ID] = i
	}
	for _, e := range ch.Updated {
		if _, ok := index[e.ID]; !ok {
			return domain.Conflict("commit roster", nil)
		}
	}
	for _, e := range ch.Inserted {
		for _, cur := range entries {
			if cur.ParticipantID == e.ParticipantID && cur.IsActive() && !updatedAway(ch, cur.ID) {
				return domain.Conflict("commit roster: duplicate active entry", nil)
			}
		}
	}

	next := make([]domain.MembershipEntry, len(entries), len(entries)+len(ch.Inserted))
	copy(next, entries)
	for _, e := range ch.Updated {
		next[index[e.ID]] = e
	}
	for i := range ch.Inserted {
		s.nextEntry++
		ch.Inserted[i].ID = s.nextEntry
		next = append(next, ch.Inserted[i])
	}

	s.entries[ch.ActivityID] = next
	s.activities[ch.ActivityID] = ch.Activity
	return nil
}

func (s *Store) ListByActivity(ctx context.Context, activityID int32) ([]domain.MembershipEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MembershipEntry, len(s.entries[activityID]))
	copy(out, s.entries[activityID])
	return out, nil
}

func (s *Store) ListByParticipant(ctx context.Context, participantID int32) ([]domain.MembershipEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.MembershipEntry
	for _, list := range s.entries {
		for _, e := range list {
			if e.ParticipantID == participantID {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) filter(keep func(*domain.Activity) bool) []domain.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Activity
	for _, a := range s.activities {
		if keep(&a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func updatedAway(ch *domain.RosterChange, id int64) bool {
	for _, e := range ch.Updated {
		if e.ID == id {
			return !e.IsActive()
		}
	}
	return false
}
