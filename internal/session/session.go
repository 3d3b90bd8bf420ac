// Package session persists debugger state that outlives a run: the script
// buffers and the breakpoint set, as one JSON document on disk.
package session

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/dbg"
	"github.com/Shaggythecat/suba-yoku-dbg/internal/eval"
)

// DefaultFile is where Save writes when no path is configured.
const DefaultFile = "state.json"

// State bundles everything worth keeping between debugging sessions.
type State struct {
	Buffers     *eval.Buffers        `json:"buffers"`
	Breakpoints *dbg.BreakpointStore `json:"breakpoints"`
}

// Save writes the state as indented JSON. The file is replaced, not merged.
func Save(path string, st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}
	return nil
}

// Load reads a saved state into the given stores. The breakpoint store is
// refilled in place so the hook keeps consulting the same pointer.
func Load(path string, buffers *eval.Buffers, breakpoints *dbg.BreakpointStore) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading session state: %w", err)
	}

	loaded := State{
		Buffers:     buffers,
		Breakpoints: dbg.NewBreakpointStore(),
	}
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("decoding session state: %w", err)
	}
	breakpoints.ReplaceWith(loaded.Breakpoints)
	return nil
}
