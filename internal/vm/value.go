// Package vm defines the boundary between the debugger core and a concrete
// scripting virtual machine: the dynamic value model, debug events, stack
// frames, and the Machine interface an adapter must satisfy.
package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates Value variants.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindBool
	KindString
	KindTable
	KindArray
	KindClass
	KindInstance
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInteger:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	case KindTable:
		return "Table"
	case KindArray:
		return "Array"
	case KindClass:
		return "Class"
	case KindInstance:
		return "Instance"
	case KindOther:
		return "Other"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Entry is one key/value pair in a table, class, or instance body.
// Keys are Values themselves: scripting tables may be keyed by integers
// as well as strings.
type Entry struct {
	Key Value
	Val Value
}

// Value is a closed tagged union over the dynamic values a paused VM can
// hand back. Container variants (Table, Array, Class, Instance) carry their
// body only when they were retrieved with a sufficient expansion depth;
// an unexpanded container has Expanded == false and a nil body.
type Value struct {
	Kind     Kind
	Int      int64
	Float    float64
	Bool     bool
	Str      string  // KindString payload; type name for KindOther
	Entries  []Entry // Table/Class/Instance body
	Items    []Value // Array body
	Expanded bool
}

func Null() Value              { return Value{Kind: KindNull} }
func Int(i int64) Value        { return Value{Kind: KindInteger, Int: i} }
func Float(f float64) Value    { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func String(s string) Value    { return Value{Kind: KindString, Str: s} }
func Other(typ string) Value   { return Value{Kind: KindOther, Str: typ} }
func Array(items []Value) Value {
	return Value{Kind: KindArray, Items: items, Expanded: true}
}
func Table(entries []Entry) Value {
	return Value{Kind: KindTable, Entries: entries, Expanded: true}
}
func Class(entries []Entry) Value {
	return Value{Kind: KindClass, Entries: entries, Expanded: true}
}
func Instance(entries []Entry) Value {
	return Value{Kind: KindInstance, Entries: entries, Expanded: true}
}

// IsContainer reports whether the value can hold child values.
func (v Value) IsContainer() bool {
	switch v.Kind {
	case KindTable, KindArray, KindClass, KindInstance:
		return true
	}
	return false
}

// String renders the value for display. Scalars print their payload,
// expanded containers print their contents, unexpanded containers print
// an ellipsis.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return strconv.Quote(v.Str)
	case KindArray:
		if !v.Expanded {
			return "[...]"
		}
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindTable, KindClass, KindInstance:
		if !v.Expanded {
			return "{...}"
		}
		parts := make([]string, len(v.Entries))
		for i, e := range v.Entries {
			parts[i] = fmt.Sprintf("%s = %s", keyString(e.Key), e.Val)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindOther:
		if v.Str != "" {
			return "<" + v.Str + ">"
		}
		return "<other>"
	}
	return "<?>"
}

// keyString renders a container key without quoting plain string keys.
func keyString(k Value) string {
	if k.Kind == KindString {
		return k.Str
	}
	return k.String()
}

// LocalVar is one named value in a call frame.
type LocalVar struct {
	Name string
	Val  Value
}

// LocalAtLevel annotates a local with its 1-based call-stack level.
type LocalAtLevel struct {
	Var   LocalVar
	Level uint
}
