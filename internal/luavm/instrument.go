package luavm

import (
	"fmt"
	"strings"
)

// sentinelName is the global the instrumented chunk calls at each statement
// line. The machine registers it to raise debug events.
const sentinelName = "__dbg_line"

// continuers are leading keywords that never start a new statement.
var continuers = map[string]bool{
	"end":    true,
	"else":   true,
	"elseif": true,
	"until":  true,
	"then":   true,
	"in":     true,
	"and":    true,
	"or":     true,
	"not":    true,
}

// Instrument prefixes each statement-starting source line with a sentinel
// call carrying its 1-based line number. Lines inside unbalanced brackets
// (multi-line table constructors, argument lists) and lines that begin with
// a continuation token are left alone, so line events only fire where a
// statement can legally begin. Statements spread across lines in other ways
// get one event, at their first line.
func Instrument(src string) string {
	var b strings.Builder
	b.Grow(len(src) + len(src)/4)

	depth := 0
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		if depth == 0 && startsStatement(line) {
			fmt.Fprintf(&b, "%s(%d); ", sentinelName, i+1)
		}
		b.WriteString(line)
		if i < len(lines)-1 {
			b.WriteByte('\n')
		}
		depth += bracketDelta(line)
		if depth < 0 {
			depth = 0
		}
	}
	return b.String()
}

func startsStatement(line string) bool {
	trim := strings.TrimSpace(line)
	if trim == "" || strings.HasPrefix(trim, "--") {
		return false
	}
	c := trim[0]
	if c != '_' && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && c != '(' {
		return false
	}
	end := 0
	for end < len(trim) {
		c := trim[end]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			end++
			continue
		}
		break
	}
	return !continuers[trim[:end]]
}

// bracketDelta counts bracket nesting across a line, skipping string
// literals and the rest of the line after a comment marker.
func bracketDelta(line string) int {
	delta := 0
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '-':
			if i+1 < len(line) && line[i+1] == '-' {
				return delta
			}
		case '(', '{', '[':
			delta++
		case ')', '}', ']':
			delta--
		}
	}
	return delta
}
