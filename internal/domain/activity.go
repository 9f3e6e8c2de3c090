package domain

import "time"

type ActivityStatus string

const (
	ActivityStatusScheduled  ActivityStatus = "scheduled"
	ActivityStatusLocked     ActivityStatus = "locked"
	ActivityStatusInProgress ActivityStatus = "in_progress"
	ActivityStatusCompleted  ActivityStatus = "completed"
	ActivityStatusCancelled  ActivityStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityStatusScheduled, ActivityStatusLocked, ActivityStatusInProgress,
		ActivityStatusCompleted, ActivityStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further membership or schedule changes are possible.
func (s ActivityStatus) Terminal() bool {
	return s == ActivityStatusCompleted || s == ActivityStatusCancelled
}

type Venue struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Activity is a capacity-limited, time-bound game. ConfirmedCount and
// WaitlistCount mirror the active ledger entries and are only written by the
// coordinator.
type Activity struct {
	ID              int32          `json:"id"`
	CreatorID       int32          `json:"creator_id"`
	Sport           string         `json:"sport"`
	Title           string         `json:"title"`
	StartTime       time.Time      `json:"start_time"`
	DurationMinutes int32          `json:"duration_minutes"`
	CapacityMin     int32          `json:"capacity_min"`
	CapacityMax     int32          `json:"capacity_max"`
	Status          ActivityStatus `json:"status"`
	AllowLateJoin   bool           `json:"allow_late_join"`
	Venue           Venue          `json:"venue"`
	ConfirmedCount  int32          `json:"confirmed_count"`
	WaitlistCount   int32          `json:"waitlist_count"`
	Version         int64          `json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       *time.Time     `json:"deleted_at,omitempty"`
	ArchivedAt      *time.Time     `json:"archived_at,omitempty"`
}

// SpotsRemaining returns the number of open confirmed slots, never negative.
func (a *Activity) SpotsRemaining() int32 {
	if a.ConfirmedCount >= a.CapacityMax {
		return 0
	}
	return a.CapacityMax - a.ConfirmedCount
}

func (a *Activity) IsFull() bool {
	return a.ConfirmedCount >= a.CapacityMax
}

func (a *Activity) IsTerminal() bool {
	return a.Status.Terminal()
}

// HasMinimum reports whether enough participants are confirmed for the game to go ahead.
func (a *Activity) HasMinimum() bool {
	return a.ConfirmedCount >= a.CapacityMin
}

func (a *Activity) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// HasStarted reports whether now is at or past the start time, or the status says so.
func (a *Activity) HasStarted(now time.Time) bool {
	return a.Status == ActivityStatusInProgress || !now.Before(a.StartTime)
}

// State is the read-only projection observers receive.
func (a *Activity) State() ActivityState {
	return ActivityState{
		ActivityID:     a.ID,
		Status:         a.Status,
		CapacityMin:    a.CapacityMin,
		CapacityMax:    a.CapacityMax,
		ConfirmedCount: a.ConfirmedCount,
		WaitlistCount:  a.WaitlistCount,
		SpotsRemaining: a.SpotsRemaining(),
		HasMinimum:     a.HasMinimum(),
		Version:        a.Version,
	}
}

// ActivityState is the snapshot a reconnecting observer re-fetches.
type ActivityState struct {
	ActivityID     int32          `json:"activity_id"`
	Status         ActivityStatus `json:"status"`
	CapacityMin    int32          `json:"capacity_min"`
	CapacityMax    int32          `json:"capacity_max"`
	ConfirmedCount int32          `json:"confirmed_count"`
	WaitlistCount  int32          `json:"waitlist_count"`
	SpotsRemaining int32          `json:"spots_remaining"`
	HasMinimum     bool           `json:"has_minimum"`
	Version        int64          `json:"version"`
}

// ActivityPatch carries the organizer-editable fields of an activity. Nil
// fields are left unchanged. Capacity is changed through the coordinator.
type ActivityPatch struct {
	Title           *string    `json:"title,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	DurationMinutes *int32     `json:"duration_minutes,omitempty"`
	AllowLateJoin   *bool      `json:"allow_late_join,omitempty"`
	Venue           *Venue     `json:"venue,omitempty"`
}

func (p ActivityPatch) Empty() bool {
	return p.Title == nil && p.StartTime == nil && p.DurationMinutes == nil && p.AllowLateJoin == nil && p.Venue == nil
}

// Apply copies the set fields onto a.
func (p ActivityPatch) Apply(a *Activity) {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.StartTime != nil {
		a.StartTime = *p.StartTime
	}
	if p.DurationMinutes != nil {
		a.DurationMinutes = *p.DurationMinutes
	}
	if p.AllowLateJoin != nil {
		a.AllowLateJoin = *p.AllowLateJoin
	}
	if p.Venue != nil {
		a.Venue = *p.Venue
	}
}

// Validate checks the fields an organizer controls.
func (a *Activity) Validate(now time.Time) error {
	switch {
	case a.Sport == "":
		return Invalid("sport is required")
	case a.CapacityMin < 1 || a.CapacityMin > a.CapacityMax:
		return Invalid("capacity bounds must satisfy 1 <= min <= max, got min=%d max=%d", a.CapacityMin, a.CapacityMax)
	case a.DurationMinutes <= 0:
		return Invalid("duration must be positive, got %d minutes", a.DurationMinutes)
	case !a.StartTime.After(now):
		return Invalid("start time must be in the future")
	case !(Location{Latitude: a.Venue.Latitude, Longitude: a.Venue.Longitude}).Valid():
		return Invalid("venue coordinates are out of range")
	}
	return nil
}
