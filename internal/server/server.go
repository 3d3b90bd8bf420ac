// Package server exposes the debugger to one remote controller over a
// WebSocket. Commands arrive as JSON messages, responses and spontaneous
// debug events go back the same way.
package server

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/config"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/dbg"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/eval"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/inspect"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Command is one JSON request from the remote controller.
type Command struct {
	Op     string `json:"op"`
	Level  *uint  `json:"level,omitempty"`
	Depth  uint   `json:"depth,omitempty"`
	Spec   string `json:"spec,omitempty"` // breakpoint spec
	Num    string `json:"num,omitempty"`  // breakpoint number, empty = all
	Path   string `json:"path,omitempty"` // examine path
	Script string `json:"script,omitempty"`
}

// Reply is one JSON message to the remote controller. Event replies carry
// no Op and arrive without a matching command.
type Reply struct {
	Op     string   `json:"op,omitempty"`
	Event  string   `json:"event,omitempty"`
	Frames []string `json:"frames,omitempty"`
	Locals []string `json:"locals,omitempty"`
	Value  string   `json:"value,omitempty"`
	State  string   `json:"state,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Endpoint serves the remote console. A single controller may be attached
// at a time; further connections are refused.
type Endpoint struct {
	cfg  *config.Config
	dbg  *dbg.Debugger
	eval *eval.Evaluator

	mu       sync.Mutex
	attached string // active connection id, empty when free
}

func NewEndpoint(cfg *config.Config, d *dbg.Debugger, ev *eval.Evaluator) *Endpoint {
	return &Endpoint{cfg: cfg, dbg: d, eval: ev}
}

// Log logs a message via the config.
func (e *Endpoint) Log(level int, format string, args ...interface{}) {
	e.cfg.Log(level, format, args...)
}

// ListenAndServe blocks serving the console on the configured address.
func (e *Endpoint) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug", e.handleWebSocket)
	addr := fmt.Sprintf("%s:%d", e.cfg.Server.Host, e.cfg.Server.Port)
	e.Log(1, "remote console listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (e *Endpoint) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.Log(0, "websocket upgrade failed: %v", err)
		return
	}

	connectionID := uuid.NewString()
	if !e.attach(connectionID) {
		e.Log(1, "refusing second controller conn=%s", connectionID)
		conn.WriteJSON(Reply{Error: "a controller is already attached"})
		conn.Close()
		return
	}
	e.Log(1, "controller connected conn=%s", connectionID)

	go e.readPump(connectionID, conn)
}

func (e *Endpoint) attach(connectionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attached != "" {
		return false
	}
	e.attached = connectionID
	return true
}

func (e *Endpoint) detach(connectionID string) {
	e.mu.Lock()
	if e.attached == connectionID {
		e.attached = ""
	}
	e.mu.Unlock()
}

func (e *Endpoint) readPump(connectionID string, conn *websocket.Conn) {
	defer func() {
		e.detach(connectionID)
		conn.Close()
		e.Log(1, "controller disconnected conn=%s", connectionID)
	}()

	// This goroutine is the sole receiver on the response channel: command
	// replies are paired inside handle, and between commands spontaneous
	// events (breakpoint hits, the halt after attach) arrive through the
	// same select and are forwarded. The reader goroutine only parses
	// frames off the wire, so a response can never be claimed by anyone
	// but the call waiting for it.
	cmds := make(chan Command)
	stop := make(chan struct{})
	defer close(stop)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			select {
			case cmds <- cmd:
			case <-stop:
				return
			}
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case resp := <-e.dbg.Receiver():
			if resp.Kind != dbg.RespEvent {
				e.Log(1, "discarding unsolicited %s response conn=%s", resp.Kind, connectionID)
				continue
			}
			if conn.WriteJSON(Reply{Event: resp.Event.String()}) != nil {
				return
			}
		case cmd := <-cmds:
			e.Log(2, "command %s conn=%s", cmd.Op, connectionID)
			if conn.WriteJSON(e.handle(cmd)) != nil {
				return
			}
		}
	}
}

func (e *Endpoint) handle(cmd Command) Reply {
	reply := Reply{Op: cmd.Op}
	switch cmd.Op {
	case "step":
		ev, err := e.dbg.Step()
		if err != nil {
			return fail(reply, err)
		}
		reply.Event = ev.String()

	case "continue":
		e.dbg.Resume()
		reply.State = e.dbg.ExecState().String()

	case "halt":
		ev, err := e.dbg.Halt(false)
		if err != nil {
			return fail(reply, err)
		}
		if ev != nil {
			reply.Event = ev.String()
		}
		reply.State = e.dbg.ExecState().String()

	case "backtrace":
		frames, err := e.dbg.GetBacktrace()
		if err != nil {
			return fail(reply, err)
		}
		for _, f := range frames {
			reply.Frames = append(reply.Frames, f.String())
		}

	case "locals":
		depth := cmd.Depth
		if depth == 0 {
			depth = 1
		}
		locals, err := e.dbg.GetLocals(cmd.Level, depth)
		if err != nil {
			return fail(reply, err)
		}
		for _, l := range locals {
			reply.Locals = append(reply.Locals, formatLocal(l))
		}

	case "examine":
		q, err := inspect.ParsePath(cmd.Path)
		if err != nil {
			return fail(reply, err)
		}
		depth := cmd.Depth
		if depth == 0 {
			depth = 1
		}
		v, err := inspect.Resolve(e.dbg, q, depth)
		if err != nil {
			return fail(reply, err)
		}
		reply.Value = v.String()

	case "break_add":
		bp, err := dbg.ParseBreakpoint(cmd.Spec)
		if err != nil {
			return fail(reply, err)
		}
		id := e.dbg.Breakpoints().Add(bp)
		reply.Value = strconv.FormatUint(uint64(id), 10)

	case "break_enable", "break_disable", "break_clear":
		num, err := parseBreakpointNum(cmd.Num)
		if err != nil {
			return fail(reply, err)
		}
		switch cmd.Op {
		case "break_enable":
			e.dbg.Breakpoints().Enable(num, true)
		case "break_disable":
			e.dbg.Breakpoints().Enable(num, false)
		case "break_clear":
			e.dbg.Breakpoints().Remove(num)
		}
		reply.Value = e.dbg.Breakpoints().String()

	case "break_list":
		reply.Value = e.dbg.Breakpoints().String()

	case "eval":
		v, err := e.eval.Evaluate(cmd.Script)
		if err != nil {
			return fail(reply, err)
		}
		reply.Value = v.String()

	case "state":
		reply.State = e.dbg.ExecState().String()

	default:
		reply.Error = fmt.Sprintf("unknown op %q", cmd.Op)
	}
	return reply
}

func fail(reply Reply, err error) Reply {
	reply.Error = err.Error()
	return reply
}

func parseBreakpointNum(num string) (*uint32, error) {
	if num == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad breakpoint number %q", num)
	}
	id := uint32(n)
	return &id, nil
}

func formatLocal(l vm.LocalAtLevel) string {
	return fmt.Sprintf("%d: %s = %s", l.Level, l.Var.Name, l.Var.Val)
}
