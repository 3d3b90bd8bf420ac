// Package mcp exposes the debugger over the Model Context Protocol, so an
// MCP client can drive a halted VM with the same operations the console
// offers:
//
//   - debug_step, debug_continue, debug_halt: execution control
//   - debug_backtrace, debug_locals, debug_examine: inspection
//   - debug_breakpoints: add, enable, disable, clear, list
//   - debug_evaluate: run script text in the paused VM
//   - debug_state: the current run/halt flag
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/dbg"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/eval"
)

// Server wraps the MCP server around the debugger facade.
type Server struct {
	mcpServer *server.MCPServer
	dbg       *dbg.Debugger
	eval      *eval.Evaluator
}

// NewServer creates an MCP server with all debug tools registered.
func NewServer(d *dbg.Debugger, ev *eval.Evaluator) *Server {
	mcpServer := server.NewMCPServer(
		"sqdbg",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		dbg:       d,
		eval:      ev,
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
