// Package inspect resolves dotted variable paths against the locals of a
// halted VM, descending through expanded container values.
package inspect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Shaggythecat/suba-yoku-dbg/internal/vm"
)

// MaxDepth caps how far containers along a path are expanded. A path can
// only name so many segments before the request stops being an inspection
// and starts being a dump.
const MaxDepth = 32

// LocalsSource yields locals for a stack level. *dbg.Debugger satisfies it.
type LocalsSource interface {
	GetLocals(level *uint, depth uint) ([]vm.LocalAtLevel, error)
}

// Query is a parsed examine request: an optional stack level, the variable
// name, and the segments to descend through inside it.
type Query struct {
	Level    *uint
	Name     string
	Segments []string
}

// ParsePath splits a dotted path like "2.this.itemsArr.0" into a Query.
// A numeric first segment selects the stack level; without one the query
// searches every level.
func ParsePath(path string) (Query, error) {
	segs := strings.Split(path, ".")
	if len(segs) == 0 || segs[0] == "" {
		return Query{}, fmt.Errorf("empty path %q", path)
	}

	var q Query
	if n, err := strconv.ParseUint(segs[0], 10, 32); err == nil {
		lvl := uint(n)
		q.Level = &lvl
		segs = segs[1:]
	}
	if len(segs) == 0 || segs[0] == "" {
		return Query{}, fmt.Errorf("path %q names no variable", path)
	}

	q.Name = segs[0]
	q.Segments = segs[1:]
	for _, s := range q.Segments {
		if s == "" {
			return Query{}, fmt.Errorf("path %q has an empty segment", path)
		}
	}
	return q, nil
}

// Resolve looks the query's variable up in the source's locals and walks
// the remaining segments. The locals are fetched expanded deep enough to
// cover both the walk and the requested display depth of the result.
func Resolve(src LocalsSource, q Query, depth uint) (vm.Value, error) {
	fetch := depth + uint(len(q.Segments))
	if fetch > MaxDepth {
		fetch = MaxDepth
	}

	locals, err := src.GetLocals(q.Level, fetch)
	if err != nil {
		return vm.Value{}, err
	}

	// A name can shadow across levels; keep scanning past candidates the
	// segments do not fit, first full match wins.
	var firstErr error
	for _, l := range locals {
		if l.Var.Name != q.Name {
			continue
		}
		v, err := descend(l.Var.Val, q.Segments)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("level %d %s: %w", l.Level, q.Name, err)
			}
			continue
		}
		return v, nil
	}
	if firstErr != nil {
		return vm.Value{}, firstErr
	}
	return vm.Value{}, fmt.Errorf("no local %q in scope", q.Name)
}

func descend(v vm.Value, segments []string) (vm.Value, error) {
	for _, seg := range segments {
		next, err := child(v, seg)
		if err != nil {
			return vm.Value{}, err
		}
		v = next
	}
	return v, nil
}

func child(v vm.Value, seg string) (vm.Value, error) {
	switch v.Kind {
	case vm.KindArray:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return vm.Value{}, fmt.Errorf("array index %q is not a number", seg)
		}
		if idx < 0 || idx >= len(v.Items) {
			return vm.Value{}, fmt.Errorf("index %d out of range, array has %d items", idx, len(v.Items))
		}
		return v.Items[idx], nil

	case vm.KindTable, vm.KindClass, vm.KindInstance:
		for _, e := range v.Entries {
			if keyMatches(e.Key, seg) {
				return e.Val, nil
			}
		}
		return vm.Value{}, fmt.Errorf("no member %q in %s", seg, v.Kind)

	default:
		return vm.Value{}, fmt.Errorf("cannot descend into %s with %q", v.Kind, seg)
	}
}

func keyMatches(key vm.Value, seg string) bool {
	switch key.Kind {
	case vm.KindString:
		return key.Str == seg
	case vm.KindInteger:
		n, err := strconv.ParseInt(seg, 10, 64)
		return err == nil && n == key.Int
	default:
		return false
	}
}
