package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTools() {
	// Control
	s.registerDebugStep()
	s.registerDebugContinue()
	s.registerDebugHalt()

	// Inspection
	s.registerDebugBacktrace()
	s.registerDebugLocals()
	s.registerDebugExamine()
	s.registerDebugState()

	// Breakpoints and evaluation
	s.registerDebugBreakpoints()
	s.registerDebugEvaluate()
}

func (s *Server) registerDebugStep() {
	tool := mcp.NewTool("debug_step",
		mcp.WithDescription("Release the halted VM for exactly one debug event and return it. The VM halts again at the next line, call, or return."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStep)
}

func (s *Server) registerDebugContinue() {
	tool := mcp.NewTool("debug_continue",
		mcp.WithDescription("Let the VM run freely. Use debug_halt or a breakpoint to stop it again."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugContinue)
}

func (s *Server) registerDebugHalt() {
	tool := mcp.NewTool("debug_halt",
		mcp.WithDescription("Halt a running VM at its next debug event and return that event. Returns immediately if already halted."),
		mcp.WithBoolean("noWait",
			mcp.Description("Flip the state without waiting for the confirming event (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugHalt)
}

func (s *Server) registerDebugBacktrace() {
	tool := mcp.NewTool("debug_backtrace",
		mcp.WithDescription("Return the call stack of the halted VM, innermost frame first."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugBacktrace)
}

func (s *Server) registerDebugLocals() {
	tool := mcp.NewTool("debug_locals",
		mcp.WithDescription("Return local variables of the halted VM, grouped by stack level."),
		mcp.WithNumber("level",
			mcp.Description("Stack level to inspect (1 = innermost). Omit to gather all levels."),
		),
		mcp.WithNumber("depth",
			mcp.Description("Container expansion depth (default: 1)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugLocals)
}

func (s *Server) registerDebugExamine() {
	tool := mcp.NewTool("debug_examine",
		mcp.WithDescription("Resolve a dotted variable path like '2.this.itemsArr.0' against the halted VM's locals. A numeric first segment selects the stack level."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Dotted path: optional level, variable name, then member names or array indexes"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Container expansion depth of the result (default: 1)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugExamine)
}

func (s *Server) registerDebugState() {
	tool := mcp.NewTool("debug_state",
		mcp.WithDescription("Return the current execution state, running or halted."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugState)
}

func (s *Server) registerDebugBreakpoints() {
	tool := mcp.NewTool("debug_breakpoints",
		mcp.WithDescription("Manage breakpoints. Actions: add, enable, disable, clear, list. A breakpoint halts the running VM when its predicates match a debug event."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of: add, enable, disable, clear, list"),
		),
		mcp.WithString("spec",
			mcp.Description("Breakpoint spec for add: [file:<src>]:[function]:[line], e.g. 'file:main.nut:update:120' or 'update'"),
		),
		mcp.WithNumber("num",
			mcp.Description("Breakpoint number for enable/disable/clear. Omit to affect all."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugBreakpoints)
}

func (s *Server) registerDebugEvaluate() {
	tool := mcp.NewTool("debug_evaluate",
		mcp.WithDescription("Run script text in the paused VM and return its result. An optional leading capture list |level.name, ...| binds locals from the halted stack into the chunk."),
		mcp.WithString("script",
			mcp.Required(),
			mcp.Description("Script text, optionally prefixed with a capture list like '|1.this, 2.x|'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugEvaluate)
}
