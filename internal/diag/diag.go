// Package diag provides the source-location and diagnostic types shared by
// the lexer, parser, compiler, VM, module loader, and HMR subsystems.
package diag

import (
	"fmt"
	"strings"
)

// Location is a 1-based line/column plus a 0-based byte offset into the
// source that produced it.
type Location struct {
	Line   uint32
	Column uint32
	Offset uint64
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Span is a half-open byte range, used by every AST node.
type Span struct {
	Start Location
	End   Location
}

// Kind classifies where in the pipeline a Diagnostic originated.
type Kind int

const (
	KindLex Kind = iota
	KindParse
	KindCompile
	KindRuntime
	KindModule
	KindHMR
	KindSandbox
)

func (k Kind) String() string {
	switch k {
	case KindLex:
		return "lex"
	case KindParse:
		return "parse"
	case KindCompile:
		return "compile"
	case KindRuntime:
		return "runtime"
	case KindModule:
		return "module"
	case KindHMR:
		return "hmr"
	case KindSandbox:
		return "sandbox"
	default:
		return "unknown"
	}
}

// Diagnostic is the user-visible shape of every error this engine can
// surface: a message, an optional location, and (when a location is known)
// a rendered source snippet with a caret under the offending column.
type Diagnostic struct {
	Kind     Kind
	Message  string
	Location Location
	Snippet  string
}

func (d *Diagnostic) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error: %s", d.Kind, d.Message)
	if d.Location.Line != 0 {
		fmt.Fprintf(&b, " (%s)", d.Location)
	}
	if d.Snippet != "" {
		b.WriteByte('\n')
		b.WriteString(d.Snippet)
	}
	return b.String()
}

// New builds a Diagnostic with a rendered snippet of source around loc.
func New(kind Kind, message string, loc Location, source string) *Diagnostic {
	return &Diagnostic{
		Kind:     kind,
		Message:  message,
		Location: loc,
		Snippet:  RenderSnippet(source, loc),
	}
}

// RenderSnippet extracts the source line containing loc and draws a caret
// under loc.Column, e.g.:
//
//	let x = ;
//	        ^
func RenderSnippet(source string, loc Location) string {
	if source == "" || loc.Line == 0 {
		return ""
	}
	lines := strings.Split(source, "\n")
	idx := int(loc.Line) - 1
	if idx < 0 || idx >= len(lines) {
		return ""
	}
	line := lines[idx]
	col := int(loc.Column) - 1
	if col < 0 {
		col = 0
	}
	if col > len(line) {
		col = len(line)
	}
	caret := strings.Repeat(" ", col) + "^"
	return line + "\n" + caret
}

// List accumulates diagnostics during recovery-mode parsing/compiling.
type List struct {
	items []*Diagnostic
}

func (l *List) Add(d *Diagnostic) {
	l.items = append(l.items, d)
}

func (l *List) Items() []*Diagnostic {
	return l.items
}

func (l *List) Len() int {
	return len(l.items)
}

func (l *List) Err() error {
	if len(l.items) == 0 {
		return nil
	}
	var b strings.Builder
	for i, d := range l.items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(d.Error())
	}
	return fmt.Errorf("%s", b.String())
}
