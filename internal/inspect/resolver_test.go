package inspect

import (
	"strings"
	"testing"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

type fixtureSource struct {
	locals []vm.LocalAtLevel
}

func (f *fixtureSource) GetLocals(level *uint, depth uint) ([]vm.LocalAtLevel, error) {
	if level == nil {
		return f.locals, nil
	}
	var out []vm.LocalAtLevel
	for _, l := range f.locals {
		if l.Level == *level {
			out = append(out, l)
		}
	}
	return out, nil
}

func fixture() *fixtureSource {
	items := vm.Array([]vm.Value{vm.Int(42), vm.Int(7)})
	this := vm.Instance([]vm.Entry{
		{Key: vm.String("itemsArr"), Val: items},
		{Key: vm.String("name"), Val: vm.String("player")},
	})
	cfg := vm.Table([]vm.Entry{
		{Key: vm.Int(1), Val: vm.String("one")},
	})
	return &fixtureSource{locals: []vm.LocalAtLevel{
		{Level: 1, Var: vm.LocalVar{Name: "x", Val: vm.Int(5)}},
		{Level: 2, Var: vm.LocalVar{Name: "this", Val: this}},
		{Level: 2, Var: vm.LocalVar{Name: "cfg", Val: cfg}},
	}}
}

func TestParsePath(t *testing.T) {
	q, err := ParsePath("2.this.itemsArr.0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Level == nil || *q.Level != 2 {
		t.Errorf("level not parsed: %+v", q)
	}
	if q.Name != "this" || len(q.Segments) != 2 {
		t.Errorf("unexpected query %+v", q)
	}

	q, err = ParsePath("cfg")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Level != nil || q.Name != "cfg" || len(q.Segments) != 0 {
		t.Errorf("bare name parsed wrong: %+v", q)
	}

	for _, bad := range []string{"", "2", "a..b"} {
		if _, err := ParsePath(bad); err == nil {
			t.Errorf("ParsePath(%q) should fail", bad)
		}
	}
}

func TestResolveArrayElement(t *testing.T) {
	q, _ := ParsePath("2.this.itemsArr.0")
	v, err := Resolve(fixture(), q, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Kind != vm.KindInteger || v.Int != 42 {
		t.Errorf("got %s, want 42", v)
	}
}

func TestResolveIntegerKey(t *testing.T) {
	q, _ := ParsePath("cfg.1")
	v, err := Resolve(fixture(), q, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Kind != vm.KindString || v.Str != "one" {
		t.Errorf("got %s, want \"one\"", v)
	}
}

func TestResolveWithoutLevelSearchesAll(t *testing.T) {
	q, _ := ParsePath("x")
	v, err := Resolve(fixture(), q, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Int != 5 {
		t.Errorf("got %s, want 5", v)
	}
}

func TestResolveSkipsShadowedScalar(t *testing.T) {
	// A scalar obj at the innermost level must not shadow the table obj at
	// an outer level when the path needs to descend.
	obj := vm.Table([]vm.Entry{
		{Key: vm.String("y"), Val: vm.Int(42)},
	})
	src := &fixtureSource{locals: []vm.LocalAtLevel{
		{Level: 1, Var: vm.LocalVar{Name: "obj", Val: vm.Int(99)}},
		{Level: 2, Var: vm.LocalVar{Name: "obj", Val: obj}},
	}}

	q, _ := ParsePath("obj.y")
	v, err := Resolve(src, q, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if v.Kind != vm.KindInteger || v.Int != 42 {
		t.Errorf("got %s, want 42", v)
	}

	// With no candidate fitting the path, the innermost failure is reported.
	q, _ = ParsePath("obj.z")
	_, err = Resolve(src, q, 0)
	if err == nil || !strings.Contains(err.Error(), "level 1") {
		t.Errorf("error = %v, want the level 1 failure", err)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"2.this.missing", "no member"},
		{"2.this.itemsArr.9", "out of range"},
		{"2.this.itemsArr.foo", "not a number"},
		{"2.this.name.deeper", "cannot descend"},
		{"nosuch", "no local"},
	}
	for _, tt := range tests {
		q, err := ParsePath(tt.path)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.path, err)
		}
		_, err = Resolve(fixture(), q, 0)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Resolve(%q) error = %v, want containing %q", tt.path, err, tt.want)
		}
	}
}
