package property

import "strings"

const (
	refOpen     = "${"
	refClose    = '}'
	oneOfPrefix = "oneof:"
)

// Segment is one piece of a parsed Expression: either a Literal or a Ref.
type Segment interface {
	segment()
}

// Literal is text copied to the output unchanged.
type Literal string

// Ref is a `${...}` property reference. The name is itself an expression so
// nested references like `${a_${b}}` resolve innermost first. OneOf is set
// for `${oneof:x,y,z}` references; each candidate is an expression yielding a
// property name.
type Ref struct {
	Name  Expression
	OneOf []Expression
	Raw   string
}

func (Literal) segment() {}
func (Ref) segment()     {}

// Expression is a parsed text value.
type Expression []Segment

// HasRefs reports whether the expression contains at least one reference.
func (e Expression) HasRefs() bool {
	for _, s := range e {
		if _, ok := s.(Ref); ok {
			return true
		}
	}
	return false
}

// ContainsRef is a cheap pre-check used to skip parsing for plain values.
func ContainsRef(s string) bool {
	return strings.Contains(s, refOpen)
}

// Parse splits text into literal and reference segments. An opening `${`
// without a matching `}` is kept as literal text.
func Parse(s string) Expression {
	var (
		expr Expression
		lit  strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			expr = append(expr, Literal(lit.String()))
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		if !strings.HasPrefix(s[i:], refOpen) {
			lit.WriteByte(s[i])
			i++
			continue
		}
		end := matchClose(s, i+len(refOpen))
		if end < 0 {
			lit.WriteString(s[i:])
			break
		}
		flush()
		body := s[i+len(refOpen) : end]
		expr = append(expr, parseRef(body, s[i:end+1]))
		i = end + 1
	}
	flush()
	return expr
}

func parseRef(body, raw string) Ref {
	if rest, ok := strings.CutPrefix(body, oneOfPrefix); ok {
		parts := splitTopLevel(rest, ',')
		ref := Ref{Raw: raw, OneOf: make([]Expression, 0, len(parts))}
		for _, p := range parts {
			ref.OneOf = append(ref.OneOf, Parse(strings.TrimSpace(p)))
		}
		return ref
	}
	return Ref{Raw: raw, Name: Parse(body)}
}

// matchClose returns the index of the `}` closing a reference whose body
// starts at from, honoring nested references, or -1.
func matchClose(s string, from int) int {
	depth := 0
	for i := from; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], refOpen):
			depth++
			i++
		case s[i] == refClose:
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// splitTopLevel splits on sep, ignoring separators inside nested references.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], refOpen):
			depth++
			i++
		case s[i] == refClose && depth > 0:
			depth--
		case s[i] == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
