package domain

import "fmt"

// ValidateStateTransition checks a Job status transition against the
// allowed lifecycle shape:
//
//	queued → running → {completed, failed, cancelled}
//	failed → queued   iff attempt < MAX_ATTEMPTS and the failure was retryable
//	queued → cancelled
//
// The retryable/attempt-cap precondition on failed→queued is enforced by
// the scheduler before it calls transition; ValidateStateTransition only
// checks shape, not the retry policy.
func ValidateStateTransition(from, to Status) error {
	allowed := map[Status][]Status{
		StatusQueued: {
			StatusRunning,
			StatusCancelled,
		},
		StatusRunning: {
			StatusCompleted,
			StatusFailed,
			StatusCancelled,
		},
		StatusFailed: {
			StatusQueued, // retry re-admission
		},
		StatusCompleted: {},
		StatusCancelled: {},
	}

	next, ok := allowed[from]
	if !ok {
		return fmt.Errorf("domain: unknown source status %q", from)
	}
	for _, s := range next {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("domain: illegal transition from %q to %q", from, to)
}

// IsTerminal reports whether status has no further transitions.
func IsTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// CanCancel reports whether a job in status can be cancelled.
func CanCancel(status Status) bool {
	return status == StatusQueued || status == StatusRunning
}
