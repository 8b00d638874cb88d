package match

import (
	"errors"
	"fmt"

	"github.com/mlutz/spieltag/go/internal/models"
)

// ErrMatchNotFound is returned when a match id resolves to nothing in the
// local store.
var ErrMatchNotFound = errors.New("match not found")

// ErrUnknownEventType is returned when an append carries an event type the
// engine does not know.
var ErrUnknownEventType = errors.New("unknown event type")

// ErrCaptureAlreadyResolved is returned when a goal capture window is
// confirmed or cancelled after it already committed.
var ErrCaptureAlreadyResolved = errors.New("capture window already resolved")

// ErrNoOpenCapture is returned when a match has no open capture window to
// confirm or cancel.
var ErrNoOpenCapture = errors.New("no open capture window for match")

// ErrAnotherMatchRunning is returned when a transition would put a second
// match of the same tournament into RUNNING. Holds on every path into
// RUNNING, including resume.
var ErrAnotherMatchRunning = errors.New("another match is already running in this tournament")

// InvalidTransitionError reports an illegal status transition or timer call.
// The attempted operation has no effect.
type InvalidTransitionError struct {
	From models.MatchStatus
	To   models.MatchStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func newInvalidTransition(from, to models.MatchStatus) error {
	return &InvalidTransitionError{From: from, To: to}
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
