package domain

import "time"

type MembershipState string

const (
	MembershipStateConfirmed  MembershipState = "confirmed"
	MembershipStateWaitlisted MembershipState = "waitlisted"
	MembershipStateLeft       MembershipState = "left"
	MembershipStateRemoved    MembershipState = "removed"
)

// Active reports whether the entry still occupies a slot or a waitlist position.
func (s MembershipState) Active() bool {
	return s == MembershipStateConfirmed || s == MembershipStateWaitlisted
}

// MembershipEntry is one row of the membership ledger. Entries are never
// deleted; a participant re-joining gets a new entry.
type MembershipEntry struct {
	ID            int64           `json:"id"`
	ActivityID    int32           `json:"activity_id"`
	ParticipantID int32           `json:"participant_id"`
	State         MembershipState `json:"state"`
	JoinedAt      time.Time       `json:"joined_at"`
	LeftAt        *time.Time      `json:"left_at,omitempty"`
	Position      *int32          `json:"position,omitempty"` // waitlist order, nil unless waitlisted
	RemovedBy     *int32          `json:"removed_by,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (e *MembershipEntry) IsActive() bool {
	return e.State.Active()
}

// WaitlistPosition returns the position or 0 when the entry is not waitlisted.
func (e *MembershipEntry) WaitlistPosition() int32 {
	if e.Position == nil {
		return 0
	}
	return *e.Position
}

// JoinOutcome is the result of a successful join request.
type JoinOutcome struct {
	Entry    MembershipEntry `json:"entry"`
	Status   MembershipState `json:"status"`
	Position int32           `json:"position,omitempty"`
	State    ActivityState   `json:"state"`
}

// LeaveOutcome is the result of a leave, removal or demotion. Promoted holds the
// entries moved from the waitlist into a confirmed slot by the same commit.
type LeaveOutcome struct {
	Entry    MembershipEntry   `json:"entry"`
	Promoted []MembershipEntry `json:"promoted,omitempty"`
	State    ActivityState     `json:"state"`
}

// CapacityOutcome is the result of a capacity change.
type CapacityOutcome struct {
	Promoted []MembershipEntry `json:"promoted,omitempty"`
	State    ActivityState     `json:"state"`
}

// RosterSnapshot is the full read-only view of one activity: its counters plus
// the confirmed list in join order and the waitlist in promotion order.
type RosterSnapshot struct {
	Activity  Activity          `json:"activity"`
	State     ActivityState     `json:"state"`
	Confirmed []MembershipEntry `json:"confirmed"`
	Waitlist  []MembershipEntry `json:"waitlist"`
}

func int32Ptr(v int32) *int32 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
