package wait

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimedOut matches every *TimeoutError.
	ErrTimedOut = errors.New("wait timed out")

	// ErrFatal matches every *FatalError.
	ErrFatal = errors.New("wait aborted by fatal error")

	// ErrNotFound is returned by a Finder when no element matches the selector.
	ErrNotFound = errors.New("element not found")

	// ErrStale is returned by element accessors when the element was detached
	// from the document after it was found.
	ErrStale = errors.New("element is stale")

	// ErrIntervalNotPositive indicates a non-positive poll interval.
	ErrIntervalNotPositive = errors.New("interval must be positive")

	// ErrTimeoutNotPositive indicates a non-positive timeout.
	ErrTimeoutNotPositive = errors.New("timeout must be positive")
)

// TimeoutError reports a condition that was never satisfied before the
// deadline. LastErr holds the most recent tolerated error, if any.
type TimeoutError struct {
	Condition string
	Target    string
	Timeout   time.Duration
	LastErr   error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, describe(e.Condition, e.Target))
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

// Is reports whether target is ErrTimedOut.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimedOut }

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// FatalError reports a non-tolerated error raised by the evaluator mid-poll.
type FatalError struct {
	Condition string
	Target    string
	Err       error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("waiting for %s: %v", describe(e.Condition, e.Target), e.Err)
}

// Is reports whether target is ErrFatal.
func (e *FatalError) Is(target error) bool { return target == ErrFatal }

func (e *FatalError) Unwrap() error { return e.Err }

func describe(condition, target string) string {
	switch {
	case condition == "" && target == "":
		return "condition"
	case target == "":
		return condition
	case condition == "":
		return target
	default:
		return condition + "(" + target + ")"
	}
}
