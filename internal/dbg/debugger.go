package dbg

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

// Default protocol timings. The receive timeout bounds every controller-side
// wait; the poll interval bounds how long the hook takes to notice a resume
// and is the only place responsiveness is traded for VM-thread CPU.
const (
	DefaultRecvTimeout  = 10 * time.Second
	DefaultPollInterval = 50 * time.Millisecond

	// Command buffering. The command channel is not a rendezvous: a step
	// can be posted before the hook reaches its polling loop.
	commandBuffer = 64
)

// Debugger is the controller-side facade over a paused VM. All methods must
// be called from the controller goroutine; the installed hook runs on the
// VM goroutine and communicates only through the execution-state word and
// the two channels created at attach time.
type Debugger struct {
	state atomic.Int32
	cmds  chan command
	resps chan Response

	done     chan struct{}
	doneOnce sync.Once

	machine     vm.Machine
	breakpoints *BreakpointStore

	recvTimeout  time.Duration
	pollInterval time.Duration
}

// Option adjusts protocol timings, mainly for tests.
type Option func(*Debugger)

func WithRecvTimeout(d time.Duration) Option {
	return func(dbg *Debugger) { dbg.recvTimeout = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(dbg *Debugger) { dbg.pollInterval = d }
}

// Attach installs the debug hook into the machine and returns the facade.
// The initial state is Halted: the next debug event the VM raises will
// block inside the hook and emit an Event response.
func Attach(m vm.Machine, opts ...Option) *Debugger {
	d := &Debugger{
		cmds:         make(chan command, commandBuffer),
		resps:        make(chan Response), // rendezvous
		done:         make(chan struct{}),
		machine:      m,
		breakpoints:  NewBreakpointStore(),
		recvTimeout:  DefaultRecvTimeout,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.state.Store(int32(StateHalted))
	m.SetDebugHook(d.hook)
	return d
}

// Detach removes the hook and releases the VM goroutine. A hook invocation
// blocked mid-send, or one that has not reached its send yet, unblocks when
// the done channel closes. After Detach the facade must not be used.
func (d *Debugger) Detach() {
	d.machine.RemoveDebugHook()
	d.state.Store(int32(StateRunning))
	d.doneOnce.Do(func() { close(d.done) })
}

// hook runs on the VM goroutine at every debug event. If the state reads
// Halted it first emits the event over the rendezvous channel, blocking the
// VM until the controller receives it; then it polls for commands until a
// step releases it or the state turns Running.
func (d *Debugger) hook(e vm.HookEvent, stack vm.StackAccess) {
	if d.exec() == StateRunning && d.breakpoints.Match(e) {
		d.state.Store(int32(StateHalted))
	}

	if d.exec() == StateHalted {
		if !d.send(Response{Kind: RespEvent, Event: e}) {
			return
		}
	}

	for {
		select {
		case cmd := <-d.cmds:
			switch cmd.kind {
			case cmdStep:
				return
			case cmdBacktrace:
				if !d.send(Response{Kind: RespBacktrace, Frames: walkStack(stack)}) {
					return
				}
			case cmdLocals:
				locals := collectLocals(stack, cmd.level, cmd.depth)
				if !d.send(Response{Kind: RespLocals, Locals: locals, Found: len(locals) > 0}) {
					return
				}
			}
		default:
		}

		if d.exec() == StateRunning {
			return
		}
		time.Sleep(d.pollInterval)
	}
}

// walkStack collects frames innermost first, stopping at the first level
// the VM reports as absent.
func walkStack(stack vm.StackAccess) []vm.StackFrame {
	var frames []vm.StackFrame
	for lvl := uint(1); ; lvl++ {
		info, err := stack.StackInfo(lvl)
		if err != nil {
			return frames
		}
		frames = append(frames, info)
	}
}

// collectLocals enumerates variable slots 0,1,2,... at the requested level,
// or, when level is nil, at every level from 1 up to the first level with
// no locals at all.
func collectLocals(stack vm.StackAccess, level *uint, depth uint) []vm.LocalAtLevel {
	var out []vm.LocalAtLevel

	lvl := uint(1)
	if level != nil {
		lvl = *level
	}

	for {
		loc, err := stack.LocalAt(lvl, 0, depth)
		if err != nil {
			break
		}
		out = append(out, vm.LocalAtLevel{Var: loc, Level: lvl})

		for slot := uint(1); ; slot++ {
			loc, err := stack.LocalAt(lvl, slot, depth)
			if err != nil {
				break
			}
			out = append(out, vm.LocalAtLevel{Var: loc, Level: lvl})
		}

		if level != nil {
			break
		}
		lvl++
	}
	return out
}

func (d *Debugger) exec() ExecState {
	return ExecState(d.state.Load())
}

// ExecState returns the current execution state without blocking.
func (d *Debugger) ExecState() ExecState {
	return d.exec()
}

// Breakpoints returns the store consulted by the hook while running.
func (d *Debugger) Breakpoints() *BreakpointStore {
	return d.breakpoints
}

// Resume lets the VM run freely. Fire and forget: the hook notices within
// one poll interval.
func (d *Debugger) Resume() {
	d.state.Store(int32(StateRunning))
}

// Halt blocks the VM on its next debug event. When the VM was running and
// noRecv is false, Halt waits for the event the newly blocked hook
// invocation emits, confirming the VM actually reached a haltable point.
func (d *Debugger) Halt(noRecv bool) (*vm.HookEvent, error) {
	prev := ExecState(d.state.Swap(int32(StateHalted)))
	if prev != StateRunning || noRecv {
		return nil, nil
	}
	resp, err := d.recv("halt")
	if err != nil {
		return nil, err
	}
	if resp.Kind != RespEvent {
		return nil, &MismatchError{Got: resp.Kind, Want: RespEvent}
	}
	ev := resp.Event
	return &ev, nil
}

// Step releases the currently blocked hook invocation for exactly one more
// debug event. The state stays Halted, so the next invocation blocks again
// and emits the event this call returns.
func (d *Debugger) Step() (vm.HookEvent, error) {
	if err := d.post(command{kind: cmdStep}); err != nil {
		return vm.HookEvent{}, err
	}
	resp, err := d.recv("step")
	if err != nil {
		return vm.HookEvent{}, err
	}
	if resp.Kind != RespEvent {
		return vm.HookEvent{}, &MismatchError{Got: resp.Kind, Want: RespEvent}
	}
	return resp.Event, nil
}

// GetBacktrace returns the active call frames, innermost first.
func (d *Debugger) GetBacktrace() ([]vm.StackFrame, error) {
	if err := d.post(command{kind: cmdBacktrace}); err != nil {
		return nil, err
	}
	resp, err := d.recv("backtrace")
	if err != nil {
		return nil, err
	}
	if resp.Kind != RespBacktrace {
		return nil, &MismatchError{Got: resp.Kind, Want: RespBacktrace}
	}
	return resp.Frames, nil
}

// GetLocals returns local variables with container values expanded to the
// given depth. A nil level gathers locals from every level. Finding nothing
// is an error, never an empty success.
func (d *Debugger) GetLocals(level *uint, depth uint) ([]vm.LocalAtLevel, error) {
	if err := d.post(command{kind: cmdLocals, level: level, depth: depth}); err != nil {
		return nil, err
	}
	resp, err := d.recv("locals")
	if err != nil {
		return nil, err
	}
	if resp.Kind != RespLocals {
		return nil, &MismatchError{Got: resp.Kind, Want: RespLocals}
	}
	if !resp.Found {
		return nil, &NoLocalsError{Level: level}
	}
	return resp.Locals, nil
}

// Receiver exposes the raw response channel, for callers that need to wait
// for an event without issuing a request, such as waiting for the first
// natural halt after attach or for a breakpoint hit.
func (d *Debugger) Receiver() <-chan Response {
	return d.resps
}

// Machine returns the attached VM adapter.
func (d *Debugger) Machine() vm.Machine {
	return d.machine
}

// send delivers a response over the rendezvous channel unless the debugger
// has been detached. Returns false on detach so the hook can bail out.
func (d *Debugger) send(resp Response) bool {
	select {
	case d.resps <- resp:
		return true
	case <-d.done:
		return false
	}
}

func (d *Debugger) post(cmd command) error {
	select {
	case d.cmds <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

func (d *Debugger) recv(op string) (Response, error) {
	select {
	case resp := <-d.resps:
		return resp, nil
	case <-time.After(d.recvTimeout):
		return Response{}, timeoutErr(op, d.recvTimeout)
	}
}
