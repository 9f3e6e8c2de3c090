package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventJoined            EventKind = "joined"
	EventWaitlisted        EventKind = "waitlisted"
	EventLeft              EventKind = "left"
	EventRemoved           EventKind = "removed"
	EventPromoted          EventKind = "promoted"
	EventDemoted           EventKind = "demoted"
	EventCapacityChanged   EventKind = "capacity_changed"
	EventActivityUpdated   EventKind = "activity_updated"
	EventStatusChanged     EventKind = "status_changed"
	EventActivityCancelled EventKind = "activity_cancelled"
)

// ActivityEvent describes one committed transition. Version is the activity
// version produced by the commit; events of the same commit share it and keep
// their slice order.
type ActivityEvent struct {
	ID             string         `json:"id"`
	ActivityID     int32          `json:"activity_id"`
	Version        int64          `json:"version"`
	Kind           EventKind      `json:"kind"`
	ParticipantID  int32          `json:"participant_id,omitempty"`
	Position       *int32         `json:"position,omitempty"`
	Status         ActivityStatus `json:"status"`
	ConfirmedCount int32          `json:"confirmed_count"`
	WaitlistCount  int32          `json:"waitlist_count"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// NewActivityEvent stamps an event with the post-commit counters of a.
func NewActivityEvent(a *Activity, kind EventKind, participantID int32, position *int32, at time.Time) ActivityEvent {
	return ActivityEvent{
		ID:             uuid.NewString(),
		ActivityID:     a.ID,
		Version:        a.Version,
		Kind:           kind,
		ParticipantID:  participantID,
		Position:       position,
		Status:         a.Status,
		ConfirmedCount: a.ConfirmedCount,
		WaitlistCount:  a.WaitlistCount,
		OccurredAt:     at,
	}
}
