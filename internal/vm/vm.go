package vm

import "fmt"

// EventKind is the class of debug event a VM raises.
type EventKind int

const (
	EventLine EventKind = iota
	EventCall
	EventReturn
)

// DebugEvent is one execution notification: a line was reached, a function
// was entered, or a function returned. Line 0 means the line is unknown;
// Func is empty for line events.
type DebugEvent struct {
	Kind EventKind
	Func string
	Line int
}

// HookEvent pairs a debug event with the source name it occurred in.
// Source is empty when the VM cannot attribute the event to a source.
type HookEvent struct {
	Event  DebugEvent
	Source string
}

func (e HookEvent) String() string {
	src := e.Source
	if src == "" {
		src = "??"
	}
	ln := "??"
	if e.Event.Line > 0 {
		ln = fmt.Sprintf("%d", e.Event.Line)
	}
	switch e.Event.Kind {
	case EventLine:
		return fmt.Sprintf("line: %s:%s", src, ln)
	case EventCall:
		return fmt.Sprintf("call: %s:%s (%s)", src, e.Event.Func, ln)
	case EventReturn:
		return fmt.Sprintf("ret:  %s:%s (%s)", src, e.Event.Func, ln)
	}
	return fmt.Sprintf("event: %s:%s", src, ln)
}

// StackFrame describes one active call frame. Source may be empty and Line
// may be 0 when the VM cannot provide them.
type StackFrame struct {
	Func   string
	Source string
	Line   int
}

func (f StackFrame) String() string {
	src := f.Source
	if src == "" {
		src = "??"
	}
	ln := "??"
	if f.Line > 0 {
		ln = fmt.Sprintf("%d", f.Line)
	}
	fn := f.Func
	if fn == "" {
		fn = "??"
	}
	return fmt.Sprintf("%s (%s:%s)", fn, src, ln)
}

// Capture names a local variable to close over when compiling ad-hoc script
// text: the value of Name at call-stack Level is made visible to the chunk
// under the binding name As.
type Capture struct {
	Name  string
	As    string
	Level uint
}

// DebugHook is the callback a Machine invokes synchronously, on its own
// execution goroutine, at every debug event. The StackAccess handle is only
// valid for the duration of the call.
type DebugHook func(e HookEvent, stack StackAccess)

// StackAccess exposes frame and local inspection of the paused VM.
// Both methods fail when the requested level or slot does not exist, which
// is how callers detect the end of the stack or of a frame's locals.
type StackAccess interface {
	// StackInfo returns frame info at the given 1-based level
	// (1 = innermost).
	StackInfo(level uint) (StackFrame, error)

	// LocalAt returns the named local in slot (0-based) at the given level,
	// expanding container values to the given depth.
	LocalAt(level, slot uint, depth uint) (LocalVar, error)
}

// Machine is the adapter a concrete VM must provide. The debugger core
// never touches VM internals directly; everything goes through this
// interface.
type Machine interface {
	StackAccess

	// SetDebugHook installs the hook; it replaces any previous hook.
	SetDebugHook(hook DebugHook)

	// RemoveDebugHook uninstalls the hook so the VM stops raising events.
	RemoveDebugHook()

	// Execute compiles and runs script text synchronously on the calling
	// goroutine. Only safe while the VM goroutine is halted or idle.
	Execute(script string, captures []Capture) (Value, error)

	// ExecuteDeferred schedules script text to run on the VM's own
	// goroutine, under the installed debug hook. The returned function
	// blocks until the run completes.
	ExecuteDeferred(script string, captures []Capture) (func() (Value, error), error)
}
