// Package luavm adapts a gopher-lua state to the debugger's machine
// interface. gopher-lua has no native debug hook, so scripts are
// instrumented before loading: every statement line gets a sentinel call
// that raises a line event through the installed hook.
package luavm

import (
	"fmt"
	"math"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

type workItem struct {
	fn     func() (vm.Value, error)
	result chan workResult
}

type workResult struct {
	val vm.Value
	err error
}

// Machine runs Lua on a dedicated executor goroutine. All chunk execution
// goes through the executor; the lua.LState is never driven from two
// goroutines at once. Stack inspection from other goroutines is only valid
// while the executor is blocked inside the debug hook.
type Machine struct {
	state *lua.LState

	hookMu sync.Mutex
	hook   vm.DebugHook

	work      chan workItem
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a machine with the base libraries opened and the line
// sentinel registered, and starts its executor goroutine.
func New() *Machine {
	L := lua.NewState()
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	lua.OpenOs(L)

	m := &Machine{
		state: L,
		work:  make(chan workItem, 16),
		done:  make(chan struct{}),
	}
	L.SetGlobal(sentinelName, L.NewFunction(m.sentinel))
	m.startExecutor()
	return m
}

func (m *Machine) startExecutor() {
	go func() {
		for {
			select {
			case <-m.done:
				return
			case work := <-m.work:
				val, err := work.fn()
				work.result <- workResult{val: val, err: err}
			}
		}
	}()
}

// Close stops the executor and releases the Lua state. The machine must
// not be used afterwards.
func (m *Machine) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.state.Close()
	})
}

// SetDebugHook installs the hook called by the sentinel.
func (m *Machine) SetDebugHook(hook vm.DebugHook) {
	m.hookMu.Lock()
	m.hook = hook
	m.hookMu.Unlock()
}

func (m *Machine) RemoveDebugHook() {
	m.hookMu.Lock()
	m.hook = nil
	m.hookMu.Unlock()
}

func (m *Machine) currentHook() vm.DebugHook {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	return m.hook
}

// sentinel is the Go function behind the injected line calls. It runs on
// the executor goroutine, inside the running chunk, so stack level 1 is the
// innermost script frame.
func (m *Machine) sentinel(L *lua.LState) int {
	line := L.CheckInt(1)
	hook := m.currentHook()
	if hook == nil {
		return 0
	}

	src, fn := "", ""
	if dbg, ok := L.GetStack(1); ok {
		if _, err := L.GetInfo("nSl", dbg, lua.LNil); err == nil {
			src = chunkName(dbg.Source)
			fn = dbg.Name
		}
	}
	hook(vm.HookEvent{
		Event:  vm.DebugEvent{Kind: vm.EventLine, Func: fn, Line: line},
		Source: src,
	}, m)
	return 0
}

// RunScript instruments the source, loads it under the given chunk name,
// and schedules it on the executor. The returned waiter blocks until the
// script finishes.
func (m *Machine) RunScript(name, src string) (func() (vm.Value, error), error) {
	instrumented := Instrument(src)
	return m.schedule(func() (vm.Value, error) {
		return m.runChunk(name, instrumented)
	})
}

// Execute compiles and runs script text on the calling goroutine. Only
// safe while the executor is halted inside the hook or idle.
func (m *Machine) Execute(script string, captures []vm.Capture) (vm.Value, error) {
	if err := m.bindCaptures(captures); err != nil {
		return vm.Value{}, err
	}
	return m.runChunk("eval", script)
}

// ExecuteDeferred schedules instrumented script text on the executor so the
// debug hook fires while it runs.
func (m *Machine) ExecuteDeferred(script string, captures []vm.Capture) (func() (vm.Value, error), error) {
	if err := m.bindCaptures(captures); err != nil {
		return nil, err
	}
	instrumented := Instrument(script)
	return m.schedule(func() (vm.Value, error) {
		return m.runChunk("eval", instrumented)
	})
}

func (m *Machine) schedule(fn func() (vm.Value, error)) (func() (vm.Value, error), error) {
	result := make(chan workResult, 1)
	select {
	case m.work <- workItem{fn: fn, result: result}:
	case <-m.done:
		return nil, fmt.Errorf("machine is closed")
	}
	return func() (vm.Value, error) {
		res := <-result
		return res.val, res.err
	}, nil
}

// runChunk loads and calls a chunk, keeping its single return value.
func (m *Machine) runChunk(name, src string) (vm.Value, error) {
	L := m.state
	fn, err := L.Load(strings.NewReader(src), name)
	if err != nil {
		return vm.Value{}, fmt.Errorf("loading %s: %w", name, err)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return vm.Value{}, fmt.Errorf("running %s: %w", name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return toValue(ret, 1), nil
}

// bindCaptures looks each captured local up on the live stack and exposes
// it as a global under its binding name.
func (m *Machine) bindCaptures(captures []vm.Capture) error {
	for _, c := range captures {
		lv, err := m.rawLocal(c.Level, c.Name)
		if err != nil {
			return err
		}
		m.state.SetGlobal(c.As, lv)
	}
	return nil
}

func (m *Machine) rawLocal(level uint, name string) (lua.LValue, error) {
	dbg, ok := m.state.GetStack(int(level))
	if !ok {
		return nil, fmt.Errorf("no stack frame at level %d", level)
	}
	for slot := 1; ; slot++ {
		n, lv := m.state.GetLocal(dbg, slot)
		if n == "" {
			return nil, fmt.Errorf("no local %q at level %d", name, level)
		}
		if n == name {
			return lv, nil
		}
	}
}

// StackInfo reports the frame at the given level, 1 being the innermost
// script frame while the hook has the VM halted.
func (m *Machine) StackInfo(level uint) (vm.StackFrame, error) {
	dbg, ok := m.state.GetStack(int(level))
	if !ok {
		return vm.StackFrame{}, fmt.Errorf("no stack frame at level %d", level)
	}
	if _, err := m.state.GetInfo("nSl", dbg, lua.LNil); err != nil {
		return vm.StackFrame{}, fmt.Errorf("frame info at level %d: %w", level, err)
	}
	fn := dbg.Name
	if fn == "" {
		if dbg.What == "main" {
			fn = "main"
		} else {
			fn = "?"
		}
	}
	return vm.StackFrame{
		Func:   fn,
		Source: chunkName(dbg.Source),
		Line:   dbg.CurrentLine,
	}, nil
}

// LocalAt returns the local in the 0-based slot at the given level.
// Compiler-internal locals mark the end of the enumerable slots.
func (m *Machine) LocalAt(level, slot uint, depth uint) (vm.LocalVar, error) {
	dbg, ok := m.state.GetStack(int(level))
	if !ok {
		return vm.LocalVar{}, fmt.Errorf("no stack frame at level %d", level)
	}
	name, lv := m.state.GetLocal(dbg, int(slot)+1)
	if name == "" || strings.HasPrefix(name, "(") {
		return vm.LocalVar{}, fmt.Errorf("no local in slot %d at level %d", slot, level)
	}
	return vm.LocalVar{Name: name, Val: toValue(lv, depth)}, nil
}

// chunkName strips the decoration gopher-lua adds to chunk sources.
func chunkName(source string) string {
	source = strings.TrimPrefix(source, "@")
	source = strings.TrimPrefix(source, "=")
	return source
}

// toValue converts a Lua value, expanding tables to the given depth. An
// exhausted depth yields an unexpanded container so the caller can tell
// there is more underneath.
func toValue(lv lua.LValue, depth uint) vm.Value {
	switch v := lv.(type) {
	case *lua.LNilType:
		return vm.Null()
	case lua.LBool:
		return vm.Bool(bool(v))
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return vm.Int(int64(f))
		}
		return vm.Float(f)
	case lua.LString:
		return vm.String(string(v))
	case *lua.LTable:
		return tableValue(v, depth)
	default:
		return vm.Other(lv.Type().String())
	}
}

// tableValue maps a Lua table onto the debugger's data model. Tables with
// only positive integer keys come back as arrays, everything else as a
// table body in iteration order.
func tableValue(t *lua.LTable, depth uint) vm.Value {
	arrayLen := 0
	pureArray := true
	t.ForEach(func(key, _ lua.LValue) {
		if n, ok := key.(lua.LNumber); ok && float64(n) == math.Trunc(float64(n)) && n >= 1 {
			if int(n) > arrayLen {
				arrayLen = int(n)
			}
			return
		}
		pureArray = false
	})

	if pureArray && arrayLen > 0 {
		if depth == 0 {
			return vm.Value{Kind: vm.KindArray}
		}
		items := make([]vm.Value, arrayLen)
		for i := 1; i <= arrayLen; i++ {
			items[i-1] = toValue(t.RawGetInt(i), depth-1)
		}
		return vm.Array(items)
	}

	if depth == 0 {
		return vm.Value{Kind: vm.KindTable}
	}
	var entries []vm.Entry
	t.ForEach(func(key, value lua.LValue) {
		entries = append(entries, vm.Entry{
			Key: toValue(key, 0),
			Val: toValue(value, depth-1),
		})
	})
	return vm.Table(entries)
}
