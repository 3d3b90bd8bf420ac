package dbg

import (
	"encoding/json"
	"testing"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

func TestParseBreakpoint(t *testing.T) {
	tests := []struct {
		spec    string
		want    Breakpoint
		wantErr bool
	}{
		{spec: "file:main.nut:update:120", want: Breakpoint{SrcFile: "main.nut", FnName: "update", Line: 120}},
		{spec: "file:main.nut:update", want: Breakpoint{SrcFile: "main.nut", FnName: "update"}},
		{spec: "file:main.nut:120", want: Breakpoint{SrcFile: "main.nut", Line: 120}},
		{spec: "file:main.nut", want: Breakpoint{SrcFile: "main.nut"}},
		{spec: "update:120", want: Breakpoint{FnName: "update", Line: 120}},
		{spec: "update", want: Breakpoint{FnName: "update"}},
		{spec: "120", want: Breakpoint{Line: 120}},
		{spec: "", wantErr: true},
		{spec: "10:20", wantErr: true},
		{spec: "file:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseBreakpoint(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseBreakpoint(%q) succeeded, want error", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBreakpoint(%q): %v", tt.spec, err)
			}
			if got.SrcFile != tt.want.SrcFile || got.FnName != tt.want.FnName || got.Line != tt.want.Line {
				t.Errorf("ParseBreakpoint(%q) = %+v, want %+v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestBreakpointStoreLifecycle(t *testing.T) {
	s := NewBreakpointStore()

	bp1, _ := ParseBreakpoint("update")
	bp2, _ := ParseBreakpoint("file:a.nut:30")
	id1 := s.Add(bp1)
	id2 := s.Add(bp2)
	if id1 != 1 || id2 != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", id1, id2)
	}

	ev := vm.HookEvent{Event: vm.DebugEvent{Kind: vm.EventCall, Func: "update", Line: 7}, Source: "a.nut"}
	if !s.Match(ev) {
		t.Fatal("expected match on enabled breakpoint")
	}

	s.Enable(&id1, false)
	if s.Match(ev) {
		t.Fatal("disabled breakpoint must not match")
	}

	s.Enable(nil, true)
	if !s.Match(ev) {
		t.Fatal("enable-all should re-arm the breakpoint")
	}

	s.Remove(&id1)
	if s.Match(ev) {
		t.Fatal("removed breakpoint must not match")
	}
	if len(s.List()) != 1 {
		t.Fatalf("expected 1 breakpoint left, got %d", len(s.List()))
	}

	// Counter never reuses ids, even after removal.
	bp3, _ := ParseBreakpoint("99")
	if id3 := s.Add(bp3); id3 != 3 {
		t.Fatalf("id after removal = %d, want 3", id3)
	}

	s.Remove(nil)
	if len(s.List()) != 0 {
		t.Fatal("remove-all left breakpoints behind")
	}
}

func TestBreakpointLineMatch(t *testing.T) {
	s := NewBreakpointStore()
	bp, _ := ParseBreakpoint("file:a.nut:12")
	s.Add(bp)

	hit := vm.HookEvent{Event: vm.DebugEvent{Kind: vm.EventLine, Line: 12}, Source: "a.nut"}
	miss := vm.HookEvent{Event: vm.DebugEvent{Kind: vm.EventLine, Line: 12}, Source: "b.nut"}
	if !s.Match(hit) {
		t.Error("expected match on file and line")
	}
	if s.Match(miss) {
		t.Error("matched despite wrong source file")
	}
}

func TestBreakpointStoreJSONRoundTrip(t *testing.T) {
	s := NewBreakpointStore()
	bp1, _ := ParseBreakpoint("file:a.nut:update:10")
	bp2, _ := ParseBreakpoint("draw")
	s.Add(bp1)
	id2 := s.Add(bp2)
	s.Enable(&id2, false)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored := NewBreakpointStore()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := restored.List()
	if len(got) != 2 {
		t.Fatalf("expected 2 breakpoints, got %d", len(got))
	}
	if got[0].SrcFile != "a.nut" || got[0].FnName != "update" || got[0].Line != 10 || !got[0].Enabled {
		t.Errorf("first breakpoint corrupted: %+v", got[0])
	}
	if got[1].FnName != "draw" || got[1].Enabled {
		t.Errorf("second breakpoint corrupted: %+v", got[1])
	}

	// Counter survives the round trip.
	bp3, _ := ParseBreakpoint("7")
	if id := restored.Add(bp3); id != 3 {
		t.Fatalf("restored counter assigned id %d, want 3", id)
	}
}
