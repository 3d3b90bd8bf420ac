// Package dbg implements the cooperative debugger core: the shared
// execution-state flag, the command/response channel pair, the debug hook
// that runs on the VM goroutine, and the controller-side facade.
package dbg

// ExecState is the run/pause flag shared by the controller and the VM
// goroutine. It is stored in a single atomic word inside the Debugger;
// both sides read it without blocking.
type ExecState int32

const (
	// StateRunning lets the VM execute freely; the hook releases each
	// invocation as soon as it observes this state.
	StateRunning ExecState = iota

	// StateHalted blocks the VM goroutine inside every hook invocation,
	// offering inspection until the controller resumes or steps.
	StateHalted
)

func (s ExecState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	}
	return "unknown"
}
