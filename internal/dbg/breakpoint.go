package dbg

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

// Breakpoint is a location predicate: any combination of source file,
// function name, and line, with at least one of them set. Ids are assigned
// by the store and stay stable for the session.
type Breakpoint struct {
	ID      uint32 `json:"id"`
	SrcFile string `json:"src,omitempty"`
	FnName  string `json:"fn,omitempty"`
	Line    int    `json:"line,omitempty"`
	Enabled bool   `json:"enabled"`
}

func (b Breakpoint) String() string {
	var parts []string
	if b.SrcFile != "" {
		parts = append(parts, "file:"+b.SrcFile)
	}
	if b.FnName != "" {
		parts = append(parts, "fn:"+b.FnName)
	}
	if b.Line > 0 {
		parts = append(parts, fmt.Sprintf("line:%d", b.Line))
	}
	mark := " "
	if b.Enabled {
		mark = "x"
	}
	return fmt.Sprintf("%03d: [%s] %s", b.ID, mark, strings.Join(parts, " "))
}

// matches reports whether the event satisfies every set predicate field.
func (b Breakpoint) matches(e vm.HookEvent) bool {
	if b.SrcFile != "" && b.SrcFile != e.Source {
		return false
	}
	if b.FnName != "" && b.FnName != e.Event.Func {
		return false
	}
	if b.Line > 0 && b.Line != e.Event.Line {
		return false
	}
	return true
}

var errBadBreakpointSpec = errors.New("invalid breakpoint format")

// ParseBreakpoint parses a location in the form [file:<src>]:[function]:[line].
//
//	file:foo.nut:bar:10  -> src foo.nut, fn bar, line 10
//	bar:10               -> fn bar, line 10
//	10                   -> line 10
//	bar                  -> fn bar
//	file:foo.nut         -> src foo.nut
//
// At least one predicate must come out of the parse; two bare numeric
// tokens, or a function token starting with a digit, are rejected.
func ParseBreakpoint(spec string) (Breakpoint, error) {
	var bp Breakpoint
	parts := strings.Split(spec, ":")

	if len(parts) >= 2 && parts[0] == "file" {
		bp.SrcFile = parts[1]
		parts = parts[2:]
	}

	switch {
	case len(parts) == 0:
		// src-only spec
	case len(parts) == 1 && parts[0] == "" && bp.SrcFile != "":
		// trailing colon after src
	case len(parts) == 1 && isNumeric(parts[0]):
		bp.Line = mustAtoi(parts[0])
	case len(parts) == 1 && isFnName(parts[0]):
		bp.FnName = parts[0]
	case len(parts) == 2 && isFnName(parts[0]) && isNumeric(parts[1]):
		bp.FnName = parts[0]
		bp.Line = mustAtoi(parts[1])
	default:
		return Breakpoint{}, errBadBreakpointSpec
	}

	if bp.SrcFile == "" && bp.FnName == "" && bp.Line == 0 {
		return Breakpoint{}, errBadBreakpointSpec
	}
	return bp, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isFnName(s string) bool {
	return s != "" && !(s[0] >= '0' && s[0] <= '9')
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// BreakpointStore holds breakpoint records behind a mutex: the controller
// mutates it while the hook consults Match from the VM goroutine.
type BreakpointStore struct {
	mu      sync.Mutex
	records []Breakpoint
	counter uint32
}

func NewBreakpointStore() *BreakpointStore {
	return &BreakpointStore{counter: 1}
}

// Add inserts a record, assigns its id, and enables it. Returns the id.
func (s *BreakpointStore) Add(bp Breakpoint) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp.ID = s.counter
	bp.Enabled = true
	s.counter++
	s.records = append(s.records, bp)
	return bp.ID
}

// Enable sets the enabled flag on one record, or on all when num is nil.
func (s *BreakpointStore) Enable(num *uint32, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if num == nil || s.records[i].ID == *num {
			s.records[i].Enabled = enabled
		}
	}
}

// Remove deletes one record, or all when num is nil. Ids are not reused.
func (s *BreakpointStore) Remove(num *uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if num == nil {
		s.records = nil
		return
	}
	kept := s.records[:0]
	for _, r := range s.records {
		if r.ID != *num {
			kept = append(kept, r)
		}
	}
	s.records = kept
}

// List returns a copy of the records in insertion order.
func (s *BreakpointStore) List() []Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Breakpoint, len(s.records))
	copy(out, s.records)
	return out
}

// Match reports whether any enabled record matches the event.
func (s *BreakpointStore) Match(e vm.HookEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Enabled && r.matches(e) {
			return true
		}
	}
	return false
}

func (s *BreakpointStore) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return "no breakpoints set"
	}
	lines := make([]string, len(s.records))
	for i, r := range s.records {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

// storeState is the persisted form; the counter travels with the records so
// loaded sessions keep assigning fresh ids.
type storeState struct {
	Records []Breakpoint `json:"breakpoints"`
	Counter uint32       `json:"counter"`
}

func (s *BreakpointStore) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(storeState{Records: s.records, Counter: s.counter})
}

func (s *BreakpointStore) UnmarshalJSON(data []byte) error {
	var st storeState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = st.Records
	s.counter = st.Counter
	if s.counter == 0 {
		s.counter = 1
	}
	return nil
}

// ReplaceWith swaps this store's contents with another's, keeping the
// pointer the hook holds valid. Used when loading saved state.
func (s *BreakpointStore) ReplaceWith(other *BreakpointStore) {
	other.mu.Lock()
	records := make([]Breakpoint, len(other.records))
	copy(records, other.records)
	counter := other.counter
	other.mu.Unlock()

	s.mu.Lock()
	s.records = records
	s.counter = counter
	s.mu.Unlock()
}
