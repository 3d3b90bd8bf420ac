package dbg

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is wrapped by every controller-side wait that gives up.
// A timeout leaves the session usable, but the VM goroutine may still be
// blocked inside the hook until a resume is issued or the hook observes
// StateRunning.
var ErrTimeout = errors.New("timed out")

// ErrCommandQueueFull is returned when the command channel cannot accept
// another command. The hook drains commands only while the VM goroutine is
// inside a hook invocation, so a long backlog means the VM never reached
// a debug event.
var ErrCommandQueueFull = errors.New("command queue full")

// MismatchError reports a response of the wrong variant for the pending
// request. This is an invariant violation of the rendezvous protocol and is
// always surfaced, never ignored.
type MismatchError struct {
	Got  RespKind
	Want RespKind
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("protocol mismatch: got %s response, expected %s", e.Got, e.Want)
}

// NoLocalsError reports that a locals query found nothing. Level is nil
// when the query spanned all levels.
type NoLocalsError struct {
	Level *uint
}

func (e *NoLocalsError) Error() string {
	if e.Level != nil {
		return fmt.Sprintf("no locals at level %d", *e.Level)
	}
	return "no locals at all levels"
}

func timeoutErr(op string, after time.Duration) error {
	return fmt.Errorf("%s: %w after %s", op, ErrTimeout, after)
}
