// ABOUTME: PollSession value and its lifecycle states
// ABOUTME: Idle -> Active -> Succeeded | TimedOut | Failed | Cancelled

package dispatch

import "time"

// Status is the lifecycle state of a PollSession.
type Status int

const (
	StatusIdle Status = iota
	StatusActive
	StatusSucceeded
	StatusTimedOut
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusActive:
		return "active"
	case StatusSucceeded:
		return "succeeded"
	case StatusTimedOut:
		return "timed_out"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session has ended.
func (s Status) Terminal() bool {
	return s >= StatusSucceeded
}

// PollSession is one bounded polling cycle for a submitted query.
type PollSession struct {
	ID           uint64
	AttemptsMade int
	AttemptLimit int
	Interval     time.Duration
	Status       Status
	StartedAt    time.Time
	EndedAt      time.Time
}
