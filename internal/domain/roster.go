package domain

import (
	"sort"
	"time"
)

// LockRules is the subset of the modification lock policy the roster state
// machine consults.
type LockRules interface {
	Evaluate(a *Activity, now time.Time) LockDecision
	CanLeave(a *Activity, state MembershipState, now time.Time) bool
}

// Roster is the owned aggregate of one activity and its active ledger entries.
// Its methods never mutate the receiver; they return the change a store must
// commit atomically.
type Roster struct {
	Activity Activity
	Entries  []MembershipEntry
}

// RosterChange is one atomic transition of an activity aggregate. The commit
// must fail with ErrVersionConflict when the stored version differs from
// ExpectedVersion. Stores assign IDs to Inserted in place.
type RosterChange struct {
	ActivityID      int32
	ExpectedVersion int64
	Activity        Activity
	Inserted        []MembershipEntry
	Updated         []MembershipEntry
	Events          []ActivityEvent
}

// Entry returns the entry of participantID touched by this change, looking at
// inserted rows first.
func (c *RosterChange) Entry(participantID int32) (MembershipEntry, bool) {
	for _, e := range c.Inserted {
		if e.ParticipantID == participantID {
			return e, true
		}
	}
	for _, e := range c.Updated {
		if e.ParticipantID == participantID {
			return e, true
		}
	}
	return MembershipEntry{}, false
}

// Promoted returns the entries this change moved from the waitlist to confirmed.
func (c *RosterChange) Promoted() []MembershipEntry {
	var out []MembershipEntry
	for _, ev := range c.Events {
		if ev.Kind != EventPromoted {
			continue
		}
		if e, ok := c.Entry(ev.ParticipantID); ok {
			out = append(out, e)
		}
	}
	return out
}

type pendingEvent struct {
	kind          EventKind
	participantID int32
}

// ActiveEntry returns the confirmed or waitlisted entry of participantID.
func (r *Roster) ActiveEntry(participantID int32) (MembershipEntry, bool) {
	if i := r.activeIndex(participantID); i >= 0 {
		return r.Entries[i], true
	}
	return MembershipEntry{}, false
}

// Confirmed returns confirmed entries in join order.
func (r *Roster) Confirmed() []MembershipEntry {
	var out []MembershipEntry
	for _, e := range r.Entries {
		if e.State == MembershipStateConfirmed {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

// Waitlist returns waitlisted entries in promotion order.
func (r *Roster) Waitlist() []MembershipEntry {
	idx := r.waitlistOrder()
	out := make([]MembershipEntry, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.Entries[i])
	}
	return out
}

// Snapshot returns the read-only projection of the roster.
func (r *Roster) Snapshot() RosterSnapshot {
	confirmed := r.Confirmed()
	waitlist := r.Waitlist()
	if confirmed == nil {
		confirmed = []MembershipEntry{}
	}
	return RosterSnapshot{
		Activity:  r.Activity,
		State:     r.Activity.State(),
		Confirmed: confirmed,
		Waitlist:  waitlist,
	}
}

// Join admits participantID as confirmed while slots remain, otherwise at the
// tail of the waitlist.
func (r *Roster) Join(participantID int32, now time.Time) (*RosterChange, error) {
	a := &r.Activity
	if a.IsTerminal() {
		return nil, ErrActivityTerminal
	}
	if r.activeIndex(participantID) >= 0 {
		return nil, ErrAlreadyJoined
	}
	if a.HasStarted(now) && !a.AllowLateJoin {
		return nil, ErrActivityStarted
	}

	next := r.clone()
	entry := MembershipEntry{
		ActivityID:    a.ID,
		ParticipantID: participantID,
		JoinedAt:      now,
		UpdatedAt:     now,
	}
	kind := EventJoined
	if a.ConfirmedCount < a.CapacityMax {
		entry.State = MembershipStateConfirmed
	} else {
		entry.State = MembershipStateWaitlisted
		entry.Position = int32Ptr(a.WaitlistCount + 1)
		kind = EventWaitlisted
	}
	next.Entries = append(next.Entries, entry)
	next.recount()
	return r.diff(next, []pendingEvent{{kind, participantID}}, now), nil
}

// Leave releases the participant's slot or waitlist position. Confirmed
// participants are held to the leave window; waitlisted ones never are.
func (r *Roster) Leave(participantID int32, now time.Time, rules LockRules) (*RosterChange, error) {
	i := r.activeIndex(participantID)
	if i < 0 {
		return nil, ErrNotAJoinedParticipant
	}
	if !rules.CanLeave(&r.Activity, r.Entries[i].State, now) {
		return nil, ErrLeaveWindowClosed
	}
	return r.release(i, MembershipStateLeft, nil, EventLeft, now), nil
}

// Remove is the organizer override of Leave: no leave window, recorded as removed.
func (r *Roster) Remove(creatorID, participantID int32, now time.Time) (*RosterChange, error) {
	if creatorID != r.Activity.CreatorID {
		return nil, ErrNotActivityCreator
	}
	i := r.activeIndex(participantID)
	if i < 0 {
		return nil, ErrNotAJoinedParticipant
	}
	return r.release(i, MembershipStateRemoved, int32Ptr(creatorID), EventRemoved, now), nil
}

// Demote moves a confirmed participant to the tail of the waitlist and gives
// the slot to the waitlist head. A waitlist is required so that no waitlisted
// entry ever coexists with an open slot.
func (r *Roster) Demote(creatorID, participantID int32, now time.Time) (*RosterChange, error) {
	if creatorID != r.Activity.CreatorID {
		return nil, ErrNotActivityCreator
	}
	if r.Activity.IsTerminal() {
		return nil, ErrActivityTerminal
	}
	i := r.activeIndex(participantID)
	if i < 0 {
		return nil, ErrNotAJoinedParticipant
	}
	if r.Entries[i].State != MembershipStateConfirmed {
		return nil, ErrNotConfirmedParticipant
	}
	if r.Activity.WaitlistCount == 0 {
		return nil, Invalid("demotion needs a waitlisted participant to take the slot")
	}

	next := r.clone()
	e := &next.Entries[i]
	e.State = MembershipStateWaitlisted
	e.Position = int32Ptr(next.maxPosition() + 1)
	e.UpdatedAt = now
	events := []pendingEvent{{EventDemoted, participantID}}
	for _, pid := range next.fill(now) {
		events = append(events, pendingEvent{EventPromoted, pid})
	}
	next.renumber(now)
	next.recount()
	return r.diff(next, events, now), nil
}

// Resize changes the capacity bounds and promotes waitlisted participants into
// any new slots, in waitlist order.
func (r *Roster) Resize(creatorID, capacityMin, capacityMax int32, now time.Time, rules LockRules) (*RosterChange, error) {
	a := &r.Activity
	if creatorID != a.CreatorID {
		return nil, ErrNotActivityCreator
	}
	if err := rules.Evaluate(a, now).Err(ErrWithinLockWindow); err != nil {
		return nil, err
	}
	if capacityMin < 1 || capacityMin > capacityMax {
		return nil, Invalid("capacity bounds must satisfy 1 <= min <= max, got min=%d max=%d", capacityMin, capacityMax)
	}
	if capacityMax < a.ConfirmedCount {
		return nil, Invalid("capacity %d is below the %d confirmed participants", capacityMax, a.ConfirmedCount)
	}

	next := r.clone()
	next.Activity.CapacityMin = capacityMin
	next.Activity.CapacityMax = capacityMax
	events := []pendingEvent{{EventCapacityChanged, 0}}
	for _, pid := range next.fill(now) {
		events = append(events, pendingEvent{EventPromoted, pid})
	}
	next.renumber(now)
	next.recount()
	return r.diff(next, events, now), nil
}

func (r *Roster) release(i int, state MembershipState, removedBy *int32, kind EventKind, now time.Time) *RosterChange {
	next := r.clone()
	e := &next.Entries[i]
	wasConfirmed := e.State == MembershipStateConfirmed
	e.State = state
	e.LeftAt = timePtr(now)
	e.Position = nil
	e.RemovedBy = removedBy
	e.UpdatedAt = now

	events := []pendingEvent{{kind, e.ParticipantID}}
	// A finished or cancelled game never takes anyone off the waitlist.
	if wasConfirmed && !next.Activity.IsTerminal() {
		for _, pid := range next.fill(now) {
			events = append(events, pendingEvent{EventPromoted, pid})
		}
	}
	next.renumber(now)
	next.recount()
	return r.diff(next, events, now)
}

// fill promotes waitlist heads while confirmed slots are open.
func (r *Roster) fill(now time.Time) []int32 {
	var promoted []int32
	confirmed := r.countState(MembershipStateConfirmed)
	for _, i := range r.waitlistOrder() {
		if confirmed >= r.Activity.CapacityMax {
			break
		}
		e := &r.Entries[i]
		e.State = MembershipStateConfirmed
		e.Position = nil
		e.UpdatedAt = now
		promoted = append(promoted, e.ParticipantID)
		confirmed++
	}
	return promoted
}

// renumber rewrites waitlist positions as 1..n, preserving relative order.
func (r *Roster) renumber(now time.Time) {
	for n, i := range r.waitlistOrder() {
		pos := int32(n + 1)
		e := &r.Entries[i]
		if e.Position == nil || *e.Position != pos {
			e.Position = int32Ptr(pos)
			e.UpdatedAt = now
		}
	}
}

// waitlistOrder returns indexes of waitlisted entries by position, then
// earliest join, then lowest ID (unsaved entries last).
func (r *Roster) waitlistOrder() []int {
	var idx []int
	for i, e := range r.Entries {
		if e.State == MembershipStateWaitlisted {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(x, y int) bool {
		a, b := r.Entries[idx[x]], r.Entries[idx[y]]
		if a.WaitlistPosition() != b.WaitlistPosition() {
			return a.WaitlistPosition() < b.WaitlistPosition()
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		if a.ID == 0 || b.ID == 0 {
			return b.ID == 0 && a.ID != 0
		}
		return a.ID < b.ID
	})
	return idx
}

func (r *Roster) maxPosition() int32 {
	var highest int32
	for _, e := range r.Entries {
		if e.State == MembershipStateWaitlisted && e.WaitlistPosition() > highest {
			highest = e.WaitlistPosition()
		}
	}
	return highest
}

func (r *Roster) countState(s MembershipState) int32 {
	var n int32
	for _, e := range r.Entries {
		if e.State == s {
			n++
		}
	}
	return n
}

func (r *Roster) recount() {
	r.Activity.ConfirmedCount = r.countState(MembershipStateConfirmed)
	r.Activity.WaitlistCount = r.countState(MembershipStateWaitlisted)
}

func (r *Roster) activeIndex(participantID int32) int {
	for i, e := range r.Entries {
		if e.ParticipantID == participantID && e.IsActive() {
			return i
		}
	}
	return -1
}

func (r *Roster) clone() *Roster {
	entries := make([]MembershipEntry, len(r.Entries))
	copy(entries, r.Entries)
	return &Roster{Activity: r.Activity, Entries: entries}
}

func (r *Roster) diff(next *Roster, pending []pendingEvent, now time.Time) *RosterChange {
	next.Activity.Version = r.Activity.Version + 1
	next.Activity.UpdatedAt = now

	ch := &RosterChange{
		ActivityID:      r.Activity.ID,
		ExpectedVersion: r.Activity.Version,
		Activity:        next.Activity,
	}
	for i, e := range next.Entries {
		if i >= len(r.Entries) {
			ch.Inserted = append(ch.Inserted, e)
			continue
		}
		if !sameEntry(r.Entries[i], e) {
			ch.Updated = append(ch.Updated, e)
		}
	}
	for _, p := range pending {
		var pos *int32
		if p.kind == EventWaitlisted || p.kind == EventDemoted {
			if e, ok := next.ActiveEntry(p.participantID); ok {
				pos = e.Position
			}
		}
		ch.Events = append(ch.Events, NewActivityEvent(&next.Activity, p.kind, p.participantID, pos, now))
	}
	return ch
}

func sameEntry(a, b MembershipEntry) bool {
	return a.State == b.State &&
		equalInt32(a.Position, b.Position) &&
		equalInt32(a.RemovedBy, b.RemovedBy) &&
		equalTime(a.LeftAt, b.LeftAt)
}

func equalInt32(a, b *int32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
