package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/config"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/dbg"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/eval"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

type stubMachine struct{}

func (stubMachine) SetDebugHook(vm.DebugHook) {}
func (stubMachine) RemoveDebugHook()          {}
func (stubMachine) StackInfo(uint) (vm.StackFrame, error) {
	return vm.StackFrame{}, errors.New("no stack")
}
func (stubMachine) LocalAt(uint, uint, uint) (vm.LocalVar, error) {
	return vm.LocalVar{}, errors.New("no locals")
}
func (stubMachine) Execute(string, []vm.Capture) (vm.Value, error) {
	return vm.Int(7), nil
}
func (stubMachine) ExecuteDeferred(string, []vm.Capture) (func() (vm.Value, error), error) {
	return nil, errors.New("not running")
}

func testEndpoint(t *testing.T) *Endpoint {
	t.Helper()
	d := dbg.Attach(stubMachine{}, dbg.WithRecvTimeout(50*time.Millisecond))
	t.Cleanup(d.Detach)
	return NewEndpoint(config.DefaultConfig(), d, eval.NewEvaluator(d.Machine()))
}

func TestHandleBreakpointOps(t *testing.T) {
	e := testEndpoint(t)

	reply := e.handle(Command{Op: "break_add", Spec: "file:main.nut:update"})
	if reply.Error != "" {
		t.Fatalf("break_add: %s", reply.Error)
	}
	if reply.Value != "1" {
		t.Errorf("breakpoint id = %q, want 1", reply.Value)
	}

	reply = e.handle(Command{Op: "break_list"})
	if !strings.Contains(reply.Value, "file:main.nut") {
		t.Errorf("break_list = %q", reply.Value)
	}

	reply = e.handle(Command{Op: "break_disable", Num: "1"})
	if reply.Error != "" || !strings.Contains(reply.Value, "[ ]") {
		t.Errorf("break_disable reply = %+v", reply)
	}

	reply = e.handle(Command{Op: "break_clear", Num: "nope"})
	if reply.Error == "" {
		t.Error("bad breakpoint number should fail")
	}
}

func TestHandleStateAndEval(t *testing.T) {
	e := testEndpoint(t)

	reply := e.handle(Command{Op: "state"})
	if reply.State != "halted" {
		t.Errorf("state = %q", reply.State)
	}

	reply = e.handle(Command{Op: "eval", Script: "return 7"})
	if reply.Error != "" || reply.Value != "7" {
		t.Errorf("eval reply = %+v", reply)
	}

	reply = e.handle(Command{Op: "bogus"})
	if reply.Error == "" {
		t.Error("unknown op should fail")
	}
}

// loopMachine drives the installed hook on its own goroutine with a fixed
// line event and serves a stack fixture, so inspection commands can be
// exercised through a real connection.
type loopMachine struct {
	mu      sync.Mutex
	hook    vm.DebugHook
	frames  []vm.StackFrame
	stopped chan struct{}
}

func newLoopMachine() *loopMachine {
	return &loopMachine{stopped: make(chan struct{})}
}

func (m *loopMachine) SetDebugHook(h vm.DebugHook) {
	m.mu.Lock()
	m.hook = h
	m.mu.Unlock()
}

func (m *loopMachine) RemoveDebugHook() {
	m.mu.Lock()
	m.hook = nil
	m.mu.Unlock()
}

func (m *loopMachine) run() {
	go func() {
		defer close(m.stopped)
		for {
			m.mu.Lock()
			h := m.hook
			m.mu.Unlock()
			if h == nil {
				return
			}
			h(vm.HookEvent{Event: vm.DebugEvent{Kind: vm.EventLine, Line: 1}, Source: "t.nut"}, m)
		}
	}()
}

func (m *loopMachine) StackInfo(level uint) (vm.StackFrame, error) {
	if level == 0 || int(level) > len(m.frames) {
		return vm.StackFrame{}, errors.New("no frame")
	}
	return m.frames[level-1], nil
}

func (m *loopMachine) LocalAt(uint, uint, uint) (vm.LocalVar, error) {
	return vm.LocalVar{}, errors.New("no locals")
}

func (m *loopMachine) Execute(string, []vm.Capture) (vm.Value, error) {
	return vm.Null(), errors.New("not supported")
}

func (m *loopMachine) ExecuteDeferred(string, []vm.Capture) (func() (vm.Value, error), error) {
	return nil, errors.New("not supported")
}

func TestBacktraceOverLiveConnection(t *testing.T) {
	m := newLoopMachine()
	m.frames = []vm.StackFrame{
		{Func: "inner", Source: "t.nut", Line: 3},
		{Func: "main", Source: "t.nut", Line: 1},
	}
	d := dbg.Attach(m, dbg.WithPollInterval(2*time.Millisecond), dbg.WithRecvTimeout(time.Second))
	defer func() {
		d.Detach()
		<-m.stopped
	}()
	e := NewEndpoint(config.DefaultConfig(), d, eval.NewEvaluator(m))
	m.run()

	srv := httptest.NewServer(http.HandlerFunc(e.handleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The hook blocks at its first event, which arrives as a spontaneous
	// message before any command is issued.
	var hello Reply
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read halt event: %v", err)
	}
	if hello.Op != "" || hello.Event == "" {
		t.Fatalf("expected the halt event first, got %+v", hello)
	}

	// Every inspection command must get its own paired reply; the event
	// forwarding must never consume one.
	for i := 0; i < 20; i++ {
		if err := conn.WriteJSON(Command{Op: "backtrace"}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		var reply Reply
		if err := conn.ReadJSON(&reply); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if reply.Error != "" {
			t.Fatalf("backtrace %d failed: %s", i, reply.Error)
		}
		if len(reply.Frames) != 2 || reply.Frames[0] != "inner (t.nut:3)" {
			t.Fatalf("backtrace %d frames = %v", i, reply.Frames)
		}
	}
}

func TestSecondControllerRefused(t *testing.T) {
	e := testEndpoint(t)

	if !e.attach("first") {
		t.Fatal("first controller should attach")
	}
	if e.attach("second") {
		t.Error("second controller should be refused")
	}
	e.detach("first")
	if !e.attach("third") {
		t.Error("slot should free up after detach")
	}
}
