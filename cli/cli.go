// Package cli wires the debugger together: configuration, the Lua machine,
// the debugger facade, and whichever front end the flags select (REPL,
// remote console, or MCP on stdio).
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/config"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/dbg"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/eval"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/frontend"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/luavm"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/mcp"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/server"
)

// Run executes the debugger with the given arguments.
// Returns exit code (0 = success, non-zero = error).
func Run(args []string) int {
	cfg, rest, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqdbg: %v\n", err)
		return 1
	}
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "usage: sqdbg [flags] <script>")
		return 1
	}

	scriptPath := rest[0]
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqdbg: %v\n", err)
		return 1
	}

	machine := luavm.New()
	defer machine.Close()

	d := dbg.Attach(machine,
		dbg.WithPollInterval(cfg.Debug.PollInterval.Duration()),
		dbg.WithRecvTimeout(cfg.Debug.RecvTimeout.Duration()),
	)
	defer d.Detach()

	buffers := eval.NewBuffers()
	evaluator := eval.NewEvaluator(machine)

	// The script starts on the VM goroutine immediately, but the debugger
	// attaches halted, so it blocks at its first line until stepped.
	wait, err := machine.RunScript(filepath.Base(scriptPath), string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqdbg: %v\n", err)
		return 1
	}
	go func() {
		if _, err := wait(); err != nil {
			cfg.Log(0, "script finished with error: %v", err)
		} else {
			cfg.Log(1, "script finished")
		}
	}()

	if cfg.MCP.Enabled {
		cfg.Log(1, "serving MCP tools on stdio")
		if err := mcp.NewServer(d, evaluator).ServeStdio(); err != nil {
			fmt.Fprintf(os.Stderr, "sqdbg: %v\n", err)
			return 1
		}
		return 0
	}

	// Exactly one controller owns the facade's response channel: the remote
	// console, the MCP server, or the local REPL, never two at once.
	if cfg.Server.Enabled {
		endpoint := server.NewEndpoint(cfg, d, evaluator)
		if err := endpoint.ListenAndServe(); err != nil {
			fmt.Fprintf(os.Stderr, "sqdbg: %v\n", err)
			return 1
		}
		return 0
	}

	f := frontend.New(d, evaluator, buffers, cfg, os.Stdin, os.Stdout)
	if err := f.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "sqdbg: %v\n", err)
		return 1
	}
	return 0
}
