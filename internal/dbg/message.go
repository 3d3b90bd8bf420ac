package dbg

import "github.com/Shaggythecat/suba-yoku-dbg/internal/vm"

type cmdKind int

const (
	cmdStep cmdKind = iota
	cmdBacktrace
	cmdLocals
)

// command is a controller request consumed by the hook. Exactly one command
// is taken per poll iteration; delivery is FIFO, single producer, single
// consumer.
type command struct {
	kind  cmdKind
	level *uint // cmdLocals: nil = all levels
	depth uint  // cmdLocals: container expansion depth
}

// RespKind discriminates hook replies.
type RespKind int

const (
	RespEvent RespKind = iota
	RespBacktrace
	RespLocals
)

func (k RespKind) String() string {
	switch k {
	case RespEvent:
		return "event"
	case RespBacktrace:
		return "backtrace"
	case RespLocals:
		return "locals"
	}
	return "unknown"
}

// Response is a hook reply delivered over the rendezvous channel. Exactly
// one response crosses per send/receive pair; the hook cannot produce a
// second until the controller consumed the first.
type Response struct {
	Kind   RespKind
	Event  vm.HookEvent       // RespEvent
	Frames []vm.StackFrame    // RespBacktrace, innermost first
	Locals []vm.LocalAtLevel  // RespLocals
	Found  bool               // RespLocals: false when nothing was found
}
