package frontend

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/dbg"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/eval"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

type idleMachine struct{}

func (idleMachine) SetDebugHook(vm.DebugHook) {}
func (idleMachine) RemoveDebugHook()          {}
func (idleMachine) StackInfo(uint) (vm.StackFrame, error) {
	return vm.StackFrame{}, errors.New("no stack")
}
func (idleMachine) LocalAt(uint, uint, uint) (vm.LocalVar, error) {
	return vm.LocalVar{}, errors.New("no locals")
}
func (idleMachine) Execute(script string, _ []vm.Capture) (vm.Value, error) {
	return vm.Int(int64(len(script))), nil
}
func (idleMachine) ExecuteDeferred(string, []vm.Capture) (func() (vm.Value, error), error) {
	return nil, errors.New("not running")
}

func runSession(t *testing.T, input string) string {
	t.Helper()
	d := dbg.Attach(idleMachine{}, dbg.WithRecvTimeout(50*time.Millisecond))
	defer d.Detach()

	buffers := eval.NewBuffers()
	ev := eval.NewEvaluator(d.Machine())
	var out strings.Builder
	f := New(d, ev, buffers, nil, strings.NewReader(input), &out)
	if err := f.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func TestBreakpointCommands(t *testing.T) {
	out := runSession(t, "break file:main.nut:update\nbl\nbd 1\nbc\nexit\n")
	if !strings.Contains(out, "breakpoint 1 set") {
		t.Errorf("missing add confirmation in %q", out)
	}
	if !strings.Contains(out, "file:main.nut") || !strings.Contains(out, "fn:update") {
		t.Errorf("bl did not list the breakpoint: %q", out)
	}
}

func TestBufferCommands(t *testing.T) {
	out := runSession(t, "buffer new return 1 + 1\nbuffer list\nbuffer print 1\nexit\n")
	if !strings.Contains(out, "buffer 1 created") {
		t.Errorf("missing create confirmation in %q", out)
	}
	if !strings.Contains(out, "return 1 + 1") {
		t.Errorf("buffer content lost: %q", out)
	}
}

func TestEvalInline(t *testing.T) {
	out := runSession(t, "eval return 42\nexit\n")
	// idleMachine returns the script length
	if !strings.Contains(out, "= 9") {
		t.Errorf("eval result missing in %q", out)
	}
}

func TestEmptyLineRepeatsLastCommand(t *testing.T) {
	out := runSession(t, "buffer new x\n\nexit\n")
	if !strings.Contains(out, "buffer 1 created") || !strings.Contains(out, "buffer 2 created") {
		t.Errorf("empty line did not repeat: %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	out := runSession(t, "frobnicate\nexit\n")
	if !strings.Contains(out, "unknown command") {
		t.Errorf("missing complaint in %q", out)
	}
}

func TestExamineQueryArguments(t *testing.T) {
	q, path, depth, err := examineQuery([]string{"obj.y", "2", "--depth=3"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if path != "obj.y" || depth != 3 {
		t.Errorf("path = %q depth = %d", path, depth)
	}
	if q.Level == nil || *q.Level != 2 {
		t.Errorf("level argument not applied: %+v", q)
	}

	// An explicit level argument wins over the level in the path.
	q, _, _, err = examineQuery([]string{"1.obj.y", "2"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Level == nil || *q.Level != 2 {
		t.Errorf("level argument should override the path level: %+v", q)
	}

	for _, bad := range [][]string{
		{},
		{"obj", "nope"},
		{"obj", "1", "2"},
		{"obj", "--depth=x"},
	} {
		if _, _, _, err := examineQuery(bad); err == nil {
			t.Errorf("examineQuery(%v) should fail", bad)
		}
	}
}

type deferredMachine struct {
	idleMachine
	release chan struct{}
}

func (m *deferredMachine) ExecuteDeferred(string, []vm.Capture) (func() (vm.Value, error), error) {
	return func() (vm.Value, error) {
		<-m.release
		return vm.Int(42), nil
	}, nil
}

func TestDeferredEvalPrintsResult(t *testing.T) {
	m := &deferredMachine{release: make(chan struct{})}
	d := dbg.Attach(m, dbg.WithRecvTimeout(50*time.Millisecond))
	defer d.Detach()

	var out syncBuffer
	f := New(d, eval.NewEvaluator(m), eval.NewBuffers(), nil, strings.NewReader("eval --debug return x\nexit\n"), &out)
	close(m.release)
	if err := f.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	deadline := time.After(time.Second)
	for !strings.Contains(out.String(), "= 42") {
		select {
		case <-deadline:
			t.Fatalf("deferred result never printed: %q", out.String())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestFormatBacktrace(t *testing.T) {
	got := FormatBacktrace([]vm.StackFrame{
		{Func: "inner", Source: "a.nut", Line: 12},
		{Func: "main", Source: "a.nut", Line: 3},
	})
	want := "001: inner (a.nut:12)\n002: main (a.nut:3)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatLocalsGroupsByLevel(t *testing.T) {
	got := FormatLocals([]vm.LocalAtLevel{
		{Level: 2, Var: vm.LocalVar{Name: "y", Val: vm.Int(2)}},
		{Level: 1, Var: vm.LocalVar{Name: "x", Val: vm.Int(1)}},
		{Level: 2, Var: vm.LocalVar{Name: "z", Val: vm.String("hi")}},
	})
	if !strings.Contains(got, "Level 1 locals:\n  x = 1") {
		t.Errorf("level 1 missing: %q", got)
	}
	if !strings.Contains(got, "Level 2 locals:\n  y = 2\n  z = \"hi\"") {
		t.Errorf("level 2 grouping wrong: %q", got)
	}
	if strings.Count(got, "Level 2 locals:") != 1 {
		t.Errorf("level 2 printed more than once: %q", got)
	}
}
