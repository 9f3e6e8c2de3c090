package policy

import (
	"time"

	"pickup-backend/internal/domain"
)

const (
	DefaultModifyWindow = 2 * time.Hour
	DefaultDeleteWindow = 4 * time.Hour
)

// LockPolicy decides whether an activity may still be changed. It is a pure
// function of the activity and the instant passed in.
type LockPolicy struct {
	ModifyWindow time.Duration
	DeleteWindow time.Duration
}

// NewLockPolicy returns a policy, substituting defaults for non-positive windows.
func NewLockPolicy(modifyWindow, deleteWindow time.Duration) LockPolicy {
	if modifyWindow <= 0 {
		modifyWindow = DefaultModifyWindow
	}
	if deleteWindow <= 0 {
		deleteWindow = DefaultDeleteWindow
	}
	return LockPolicy{ModifyWindow: modifyWindow, DeleteWindow: deleteWindow}
}

// Evaluate decides whether the schedule or capacity of a may be edited at now.
func (p LockPolicy) Evaluate(a *domain.Activity, now time.Time) domain.LockDecision {
	return p.decide(a, now, p.ModifyWindow)
}

// EvaluateDelete applies the stricter deletion threshold.
func (p LockPolicy) EvaluateDelete(a *domain.Activity, now time.Time) domain.LockDecision {
	return p.decide(a, now, p.DeleteWindow)
}

// CanLeave reports whether a participant in the given state may leave at now.
// Waitlisted participants may always leave.
func (p LockPolicy) CanLeave(a *domain.Activity, state domain.MembershipState, now time.Time) bool {
	if state != domain.MembershipStateConfirmed {
		return true
	}
	return now.Before(a.StartTime.Add(-p.ModifyWindow))
}

// LifecycleStatus returns the status a should carry at now. Terminal statuses
// are sticky.
func (p LockPolicy) LifecycleStatus(a *domain.Activity, now time.Time) domain.ActivityStatus {
	if a.IsTerminal() {
		return a.Status
	}
	switch {
	case !now.Before(a.EndTime()):
		return domain.ActivityStatusCompleted
	case !now.Before(a.StartTime):
		return domain.ActivityStatusInProgress
	case !now.Before(a.StartTime.Add(-p.ModifyWindow)):
		return domain.ActivityStatusLocked
	}
	return domain.ActivityStatusScheduled
}

func (p LockPolicy) decide(a *domain.Activity, now time.Time, window time.Duration) domain.LockDecision {
	lockedAt := a.StartTime.Add(-window)
	if a.IsTerminal() {
		return domain.LockDecision{Reason: domain.LockReasonActivityTerminal, LockedAt: lockedAt}
	}
	if a.Status == domain.ActivityStatusLocked || a.Status == domain.ActivityStatusInProgress || !now.Before(lockedAt) {
		return domain.LockDecision{Reason: domain.LockReasonWithinLockWindow, LockedAt: lockedAt}
	}
	return domain.LockDecision{CanModify: true, Reason: domain.LockReasonOK, LockedAt: lockedAt}
}
