package eval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

// ErrEvalInProgress rejects a new evaluation while a deferred one has not
// finished. Rejection is immediate; nothing queues behind a running eval.
var ErrEvalInProgress = errors.New("evaluation already in progress")

// ParseCaptures strips an optional leading capture list of the form
// |1.this, 2.x| from script text. Each item is level.name; a captured
// "this" is bound as this_<level> so captures from several levels can
// coexist in one chunk.
func ParseCaptures(input string) ([]vm.Capture, string, error) {
	input = strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(input, "|") {
		return nil, input, nil
	}
	end := strings.Index(input[1:], "|")
	if end < 0 {
		return nil, "", errors.New("capture list is not closed")
	}
	list := input[1 : end+1]
	script := input[end+2:]

	var captures []vm.Capture
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		dot := strings.Index(item, ".")
		if dot <= 0 || dot == len(item)-1 {
			return nil, "", fmt.Errorf("capture %q is not level.name", item)
		}
		lvl, err := strconv.ParseUint(item[:dot], 10, 32)
		if err != nil {
			return nil, "", fmt.Errorf("capture %q has a bad level: %w", item, err)
		}
		name := item[dot+1:]
		as := name
		if name == "this" {
			as = fmt.Sprintf("this_%d", lvl)
		}
		captures = append(captures, vm.Capture{Name: name, As: as, Level: uint(lvl)})
	}
	return captures, script, nil
}

// Evaluator runs script text against a machine, one evaluation at a time.
type Evaluator struct {
	machine vm.Machine

	mu   sync.Mutex
	busy bool
}

func NewEvaluator(m vm.Machine) *Evaluator {
	return &Evaluator{machine: m}
}

// Busy reports whether a deferred evaluation is still outstanding.
func (e *Evaluator) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

func (e *Evaluator) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrEvalInProgress
	}
	e.busy = true
	return nil
}

func (e *Evaluator) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// Evaluate parses captures out of the input and runs the remaining script
// synchronously. Only safe while the VM goroutine is halted or idle.
func (e *Evaluator) Evaluate(input string) (vm.Value, error) {
	if err := e.acquire(); err != nil {
		return vm.Value{}, err
	}
	defer e.release()

	captures, script, err := ParseCaptures(input)
	if err != nil {
		return vm.Value{}, err
	}
	return e.machine.Execute(script, captures)
}

// EvaluateDeferred schedules the script to run on the VM goroutine, under
// the debug hook, and returns a waiter for its result. The evaluator stays
// busy until the waiter is called and returns.
func (e *Evaluator) EvaluateDeferred(input string) (func() (vm.Value, error), error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}

	captures, script, err := ParseCaptures(input)
	if err != nil {
		e.release()
		return nil, err
	}

	wait, err := e.machine.ExecuteDeferred(script, captures)
	if err != nil {
		e.release()
		return nil, err
	}
	return func() (vm.Value, error) {
		defer e.release()
		return wait()
	}, nil
}
