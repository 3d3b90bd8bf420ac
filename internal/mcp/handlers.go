package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/dbg"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/inspect"
)

func (s *Server) handleDebugStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ev, err := s.dbg.Step()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("step failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"event": ev.String(),
	})
}

func (s *Server) handleDebugContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.dbg.Resume()
	return jsonResult(map[string]interface{}{
		"state": s.dbg.ExecState().String(),
	})
}

func (s *Server) handleDebugHalt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noWait := request.GetBool("noWait", false)
	ev, err := s.dbg.Halt(noWait)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("halt failed: %v", err)), nil
	}
	result := map[string]interface{}{
		"state": s.dbg.ExecState().String(),
	}
	if ev != nil {
		result["event"] = ev.String()
	}
	return jsonResult(result)
}

func (s *Server) handleDebugBacktrace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frames, err := s.dbg.GetBacktrace()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("backtrace failed: %v", err)), nil
	}
	rendered := make([]string, len(frames))
	for i, f := range frames {
		rendered[i] = f.String()
	}
	return jsonResult(map[string]interface{}{
		"frames": rendered,
	})
}

func (s *Server) handleDebugLocals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var level *uint
	if lvl, err := request.RequireFloat("level"); err == nil {
		l := uint(lvl)
		level = &l
	}
	depth := uint(1)
	if d, err := request.RequireFloat("depth"); err == nil {
		depth = uint(d)
	}

	locals, err := s.dbg.GetLocals(level, depth)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("locals failed: %v", err)), nil
	}

	byLevel := make(map[string][]map[string]string)
	for _, l := range locals {
		key := fmt.Sprintf("%d", l.Level)
		byLevel[key] = append(byLevel[key], map[string]string{
			"name":  l.Var.Name,
			"value": l.Var.Val.String(),
		})
	}
	return jsonResult(map[string]interface{}{
		"locals": byLevel,
	})
}

func (s *Server) handleDebugExamine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth := uint(1)
	if d, derr := request.RequireFloat("depth"); derr == nil {
		depth = uint(d)
	}

	q, err := inspect.ParsePath(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := inspect.Resolve(s.dbg, q, depth)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("examine failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"path":  path,
		"value": v.String(),
		"kind":  v.Kind.String(),
	})
}

func (s *Server) handleDebugState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"state": s.dbg.ExecState().String(),
	})
}

func (s *Server) handleDebugBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var num *uint32
	if n, nerr := request.RequireFloat("num"); nerr == nil {
		id := uint32(n)
		num = &id
	}

	store := s.dbg.Breakpoints()
	switch action {
	case "add":
		spec, err := request.RequireString("spec")
		if err != nil {
			return mcp.NewToolResultError("add needs a spec, e.g. 'file:main.nut:update:120'"), nil
		}
		bp, err := dbg.ParseBreakpoint(spec)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		id := store.Add(bp)
		return jsonResult(map[string]interface{}{
			"id": id,
		})
	case "enable":
		store.Enable(num, true)
	case "disable":
		store.Enable(num, false)
	case "clear":
		store.Remove(num)
	case "list":
		// fall through to the listing below
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}

	list := store.List()
	rendered := make([]string, len(list))
	for i, bp := range list {
		rendered[i] = bp.String()
	}
	return jsonResult(map[string]interface{}{
		"breakpoints": rendered,
	})
}

func (s *Server) handleDebugEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	script, err := request.RequireString("script")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.eval.Evaluate(script)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluate failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"value": v.String(),
		"kind":  v.Kind.String(),
	})
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
