package domain

import "time"

type LockReason string

const (
	LockReasonOK               LockReason = "ok"
	LockReasonWithinLockWindow LockReason = "within_lock_window"
	LockReasonActivityTerminal LockReason = "activity_terminal"
)

// LockDecision says whether an activity may be mutated right now. It is
// recomputed on every request and never stored.
type LockDecision struct {
	CanModify bool       `json:"can_modify"`
	Reason    LockReason `json:"reason"`
	LockedAt  time.Time  `json:"locked_at"`
}

// Err converts a negative decision into the rejection for the given window.
// windowErr is returned for within_lock_window decisions.
func (d LockDecision) Err(windowErr error) error {
	switch d.Reason {
	case LockReasonActivityTerminal:
		return ErrActivityTerminal
	case LockReasonWithinLockWindow:
		return windowErr
	}
	return nil
}

// LockStatus reports both thresholds for display.
type LockStatus struct {
	ActivityID int32        `json:"activity_id"`
	Modify     LockDecision `json:"modify"`
	Delete     LockDecision `json:"delete"`
}
