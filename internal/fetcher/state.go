package fetcher

import (
	"errors"

	"github.com/minelauncher/mcfetch/internal/utils"
)

type state int

const (
	stateResolving state = iota
	stateAttempting
	stateVerifying
	stateNextURL
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateResolving:
		return "resolving"
	case stateAttempting:
		return "attempting"
	case stateVerifying:
		return "verifying"
	case stateNextURL:
		return "next-url"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// outcome is what one attempt or verification produced.
type outcome struct {
	err      error
	attempt  int // 1-based attempt number on the current URL
	attempts int // allowed attempts per URL
	resumed  bool
}

// transition is the retry policy: given an outcome, the next state and
// whether the partial file must be discarded before moving on.
func transition(o outcome) (next state, discard bool) {
	if o.err == nil {
		return stateVerifying, false
	}
	if utils.IsCancelled(o.err) {
		return stateFailed, false
	}
	if errors.Is(o.err, utils.ErrRangeNotSatisfiable) {
		if o.attempt < o.attempts {
			return stateAttempting, true
		}
		return stateNextURL, true
	}
	var ie *utils.IntegrityError
	if errors.As(o.err, &ie) {
		if o.resumed {
			// A stale partial may have poisoned the result; retry once clean.
			return stateAttempting, true
		}
		return stateNextURL, true
	}
	var te *utils.TransferError
	if errors.As(o.err, &te) && !retryable(te) {
		return stateNextURL, false
	}
	if o.attempt < o.attempts {
		return stateAttempting, false
	}
	return stateNextURL, false
}

// retryable rejects statuses that a second request will not fix.
func retryable(te *utils.TransferError) bool {
	switch te.StatusCode {
	case 400, 401, 403, 404, 405, 410:
		return false
	}
	return true
}
