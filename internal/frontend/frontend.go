// Package frontend is the interactive console of the debugger: a line
// oriented REPL that maps commands onto the debugger facade, the script
// buffers, and the session store.
package frontend

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/config"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/dbg"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/eval"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/inspect"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/session"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

// Frontend drives one debugging session from a line stream. All facade
// calls happen on the Run goroutine; the input reader and the deferred
// eval waiter are the only helper goroutines, and neither touches the
// facade, so spontaneous events can be printed while at the prompt.
type Frontend struct {
	dbg     *dbg.Debugger
	eval    *eval.Evaluator
	buffers *eval.Buffers
	cfg     *config.Config

	in    io.Reader
	out   io.Writer
	outMu sync.Mutex
	last  string
}

func New(d *dbg.Debugger, ev *eval.Evaluator, buffers *eval.Buffers, cfg *config.Config, in io.Reader, out io.Writer) *Frontend {
	return &Frontend{dbg: d, eval: ev, buffers: buffers, cfg: cfg, in: in, out: out}
}

// Run reads commands until exit or end of input. An empty line repeats the
// last command, the original console's most used convenience.
func (f *Frontend) Run() error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(f.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	f.printf("sqdbg ready, VM halted. Type step to begin.")
	f.prompt()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				line = f.last
			}
			if line == "" {
				f.prompt()
				continue
			}
			f.last = line
			if quit := f.dispatch(line, lines); quit {
				return nil
			}
			f.prompt()

		case resp := <-f.dbg.Receiver():
			if resp.Kind == dbg.RespEvent {
				f.printf("! %s", resp.Event)
				f.prompt()
			}
		}
	}
}

// dispatch runs one command line. Returns true on exit.
func (f *Frontend) dispatch(line string, lines <-chan string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit", "q":
		return true
	case "step", "s":
		f.cmdStep()
	case "continue", "c":
		f.dbg.Resume()
		f.printf("running")
	case "halt", "h":
		f.cmdHalt()
	case "backtrace", "bt":
		f.cmdBacktrace()
	case "locals", "loc":
		f.cmdLocals(args)
	case "examine", "x":
		f.cmdExamine(args)
	case "break", "b":
		f.cmdBreakAdd(args)
	case "be":
		f.cmdBreakEnable(args, true)
	case "bd":
		f.cmdBreakEnable(args, false)
	case "bc":
		f.cmdBreakClear(args)
	case "bl":
		f.printf("%s", f.dbg.Breakpoints())
	case "eval":
		f.cmdEval(args)
	case "buffer", "buf":
		f.cmdBuffer(args)
	case "trace", "t":
		f.cmdTrace(lines)
	case "save":
		f.cmdSave(args)
	case "load":
		f.cmdLoad(args)
	case "help", "?":
		f.printHelp()
	default:
		f.printf("unknown command %q, try help", cmd)
	}
	return false
}

func (f *Frontend) cmdStep() {
	ev, err := f.dbg.Step()
	if err != nil {
		f.printf("step failed: %v", err)
		return
	}
	f.printf("%s", ev)
}

func (f *Frontend) cmdHalt() {
	ev, err := f.dbg.Halt(false)
	if err != nil {
		f.printf("halt failed: %v", err)
		return
	}
	if ev == nil {
		f.printf("already halted")
		return
	}
	f.printf("halted at %s", *ev)
}

func (f *Frontend) cmdBacktrace() {
	frames, err := f.dbg.GetBacktrace()
	if err != nil {
		f.printf("backtrace failed: %v", err)
		return
	}
	f.printf("%s", FormatBacktrace(frames))
}

// cmdLocals handles `locals [level] [depth]`.
func (f *Frontend) cmdLocals(args []string) {
	var level *uint
	depth := uint(1)
	if len(args) > 0 {
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			f.printf("bad level %q", args[0])
			return
		}
		lvl := uint(n)
		level = &lvl
	}
	if len(args) > 1 {
		n, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			f.printf("bad depth %q", args[1])
			return
		}
		depth = uint(n)
	}

	locals, err := f.dbg.GetLocals(level, depth)
	if err != nil {
		f.printf("locals failed: %v", err)
		return
	}
	f.printf("%s", FormatLocals(locals))
}

// cmdExamine handles `examine <path> [level] [--depth=N]`.
func (f *Frontend) cmdExamine(args []string) {
	q, path, depth, err := examineQuery(args)
	if err != nil {
		f.printf("%v", err)
		return
	}
	v, err := inspect.Resolve(f.dbg, q, depth)
	if err != nil {
		f.printf("examine failed: %v", err)
		return
	}
	f.printf("%s = %s", path, v)
}

// examineQuery parses examine arguments: the path, an optional stack level
// that overrides any level embedded in the path, and a --depth flag.
func examineQuery(args []string) (inspect.Query, string, uint, error) {
	depth := uint(1)
	var positional []string
	for _, a := range args {
		if v, ok := strings.CutPrefix(a, "--depth="); ok {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return inspect.Query{}, "", 0, fmt.Errorf("bad depth %q", v)
			}
			depth = uint(n)
			continue
		}
		positional = append(positional, a)
	}
	if len(positional) == 0 || len(positional) > 2 {
		return inspect.Query{}, "", 0, fmt.Errorf("usage: examine <path> [level] [--depth=N]")
	}

	path := positional[0]
	q, err := inspect.ParsePath(path)
	if err != nil {
		return inspect.Query{}, "", 0, err
	}
	if len(positional) == 2 {
		n, err := strconv.ParseUint(positional[1], 10, 32)
		if err != nil {
			return inspect.Query{}, "", 0, fmt.Errorf("bad level %q", positional[1])
		}
		lvl := uint(n)
		q.Level = &lvl
	}
	return q, path, depth, nil
}

func (f *Frontend) cmdBreakAdd(args []string) {
	if len(args) == 0 {
		f.printf("usage: break [file:<src>]:[function]:[line]")
		return
	}
	bp, err := dbg.ParseBreakpoint(args[0])
	if err != nil {
		f.printf("%v", err)
		return
	}
	id := f.dbg.Breakpoints().Add(bp)
	f.printf("breakpoint %d set", id)
}

func (f *Frontend) cmdBreakEnable(args []string, enabled bool) {
	num, err := optionalID(args)
	if err != nil {
		f.printf("%v", err)
		return
	}
	f.dbg.Breakpoints().Enable(num, enabled)
	f.printf("%s", f.dbg.Breakpoints())
}

func (f *Frontend) cmdBreakClear(args []string) {
	num, err := optionalID(args)
	if err != nil {
		f.printf("%v", err)
		return
	}
	f.dbg.Breakpoints().Remove(num)
	f.printf("%s", f.dbg.Breakpoints())
}

func optionalID(args []string) (*uint32, error) {
	if len(args) == 0 {
		return nil, nil
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad breakpoint number %q", args[0])
	}
	id := uint32(n)
	return &id, nil
}

// cmdEval handles `eval [--debug] <buffer|script text>`.
func (f *Frontend) cmdEval(args []string) {
	debug := false
	if len(args) > 0 && args[0] == "--debug" {
		debug = true
		args = args[1:]
	}
	if len(args) == 0 {
		f.printf("usage: eval [--debug] <buffer number | script text>")
		return
	}

	script := strings.Join(args, " ")
	if id, err := strconv.ParseUint(args[0], 10, 32); err == nil && len(args) == 1 {
		content, err := f.buffers.Get(uint(id))
		if err != nil {
			f.printf("%v", err)
			return
		}
		script = content
	}

	if !debug {
		v, err := f.eval.Evaluate(script)
		if err != nil {
			f.printf("eval failed: %v", err)
			return
		}
		f.printf("= %s", v)
		return
	}

	wait, err := f.eval.EvaluateDeferred(script)
	if err != nil {
		f.printf("eval failed: %v", err)
		return
	}
	f.printf("eval queued on the VM, step through it; result prints when done")
	go func() {
		v, err := wait()
		if err != nil {
			f.printf("eval failed: %v", err)
			return
		}
		f.printf("= %s", v)
	}()
}

func (f *Frontend) cmdBuffer(args []string) {
	if len(args) == 0 {
		f.printf("usage: buffer new|delete|edit|print|list")
		return
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "new", "n":
		f.bufferNew(rest)
	case "delete", "d":
		f.withBufferID(rest, func(id uint) {
			if err := f.buffers.Delete(id); err != nil {
				f.printf("%v", err)
				return
			}
			f.printf("buffer %d deleted", id)
		})
	case "edit", "e":
		f.withBufferID(rest, f.bufferEdit)
	case "print", "p":
		f.withBufferID(rest, func(id uint) {
			content, err := f.buffers.Get(id)
			if err != nil {
				f.printf("%v", err)
				return
			}
			f.printf("buffer %d:\n%s", id, content)
		})
	case "list", "ls":
		for _, info := range f.buffers.List() {
			f.printf("%03d: %s", info.ID, firstLine(info.Content))
		}
	default:
		f.printf("unknown buffer command %q", sub)
	}
}

func (f *Frontend) bufferNew(args []string) {
	content := strings.Join(args, " ")
	if content == "" {
		edited, err := editText("")
		if err != nil {
			f.printf("%v", err)
			return
		}
		content = edited
	}
	id := f.buffers.Add(content)
	f.printf("buffer %d created", id)
}

func (f *Frontend) bufferEdit(id uint) {
	content, err := f.buffers.Get(id)
	if err != nil {
		f.printf("%v", err)
		return
	}
	edited, err := editText(content)
	if err != nil {
		f.printf("%v", err)
		return
	}
	if err := f.buffers.Set(id, edited); err != nil {
		f.printf("%v", err)
		return
	}
	f.printf("buffer %d updated", id)
}

func (f *Frontend) withBufferID(args []string, fn func(uint)) {
	if len(args) == 0 {
		f.printf("buffer number required")
		return
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		f.printf("bad buffer number %q", args[0])
		return
	}
	fn(uint(n))
}

// cmdTrace steps continuously, printing each event, until the user sends
// another line.
func (f *Frontend) cmdTrace(lines <-chan string) {
	f.printf("tracing, press enter to stop")
	for {
		select {
		case <-lines:
			f.printf("trace stopped")
			return
		default:
		}
		ev, err := f.dbg.Step()
		if err != nil {
			f.printf("trace stopped: %v", err)
			return
		}
		f.printf("%s", ev)
	}
}

func (f *Frontend) statePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if f.cfg != nil && f.cfg.Session.StateFile != "" {
		return f.cfg.Session.StateFile
	}
	return session.DefaultFile
}

func (f *Frontend) cmdSave(args []string) {
	path := f.statePath(args)
	err := session.Save(path, session.State{
		Buffers:     f.buffers,
		Breakpoints: f.dbg.Breakpoints(),
	})
	if err != nil {
		f.printf("%v", err)
		return
	}
	f.printf("state saved to %s", path)
}

func (f *Frontend) cmdLoad(args []string) {
	path := f.statePath(args)
	if err := session.Load(path, f.buffers, f.dbg.Breakpoints()); err != nil {
		f.printf("%v", err)
		return
	}
	f.printf("state loaded from %s", path)
}

func (f *Frontend) printHelp() {
	f.printf(strings.Join([]string{
		"step/s                    run to the next debug event",
		"continue/c                let the VM run freely",
		"halt/h                    stop a running VM",
		"backtrace/bt              print the call stack",
		"locals/loc [lvl] [depth]  print local variables",
		"examine/x <path> [lvl] [--depth=N]  resolve a dotted variable path",
		"break/b <spec>            add a breakpoint ([file:<src>]:[fn]:[line])",
		"be/bd/bc [num]            enable, disable, clear breakpoints",
		"bl                        list breakpoints",
		"eval [--debug] <buf|text> run script text or a buffer",
		"buffer new|delete|edit|print|list",
		"trace/t                   step until interrupted",
		"save/load [file]          persist or restore buffers and breakpoints",
		"exit                      quit",
	}, "\n"))
}

// printf is safe for concurrent use: the deferred eval waiter prints its
// result from its own goroutine while the Run loop owns the prompt.
func (f *Frontend) printf(format string, args ...interface{}) {
	f.outMu.Lock()
	fmt.Fprintf(f.out, format+"\n", args...)
	f.outMu.Unlock()
}

func (f *Frontend) prompt() {
	f.outMu.Lock()
	fmt.Fprint(f.out, "(sqdbg) ")
	f.outMu.Unlock()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// editText runs $EDITOR over a temp file seeded with the given content.
func editText(content string) (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	tmp, err := os.CreateTemp("", "sqdbg-buffer-*.nut")
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", err
	}
	tmp.Close()

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor: %w", err)
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(edited), nil
}

// FormatBacktrace renders frames numbered from the innermost.
func FormatBacktrace(frames []vm.StackFrame) string {
	lines := make([]string, len(frames))
	for i, fr := range frames {
		lines[i] = fmt.Sprintf("%03d: %s", i+1, fr)
	}
	return strings.Join(lines, "\n")
}

// FormatLocals renders locals grouped by level, levels ascending.
func FormatLocals(locals []vm.LocalAtLevel) string {
	byLevel := make(map[uint][]vm.LocalVar)
	var levels []uint
	for _, l := range locals {
		if _, seen := byLevel[l.Level]; !seen {
			levels = append(levels, l.Level)
		}
		byLevel[l.Level] = append(byLevel[l.Level], l.Var)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	var b strings.Builder
	for i, lvl := range levels {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Level %d locals:", lvl)
		for _, v := range byLevel[lvl] {
			fmt.Fprintf(&b, "\n  %s = %s", v.Name, v.Val)
		}
	}
	return b.String()
}
