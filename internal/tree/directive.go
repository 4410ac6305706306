package tree

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDirective is returned for combine attribute values that are not
// one of the known directives.
var ErrInvalidDirective = errors.New("invalid combine directive")

// Directive controls how a node from a later document combines with the
// matching node of an earlier one.
type Directive int

const (
	// Merge unions attributes and merges children pairwise. It is the
	// default when no combine attribute is present.
	Merge Directive = iota
	// Append keeps the earlier children and appends the later ones after them.
	Append
	// Override replaces the earlier subtree entirely.
	Override
	// Remove deletes the matched earlier node. Remove nodes never survive
	// into merged output.
	Remove
	// Defaults fills in only what the earlier subtree is missing.
	Defaults
)

func (d Directive) String() string {
	switch d {
	case Merge:
		return "MERGE"
	case Append:
		return "APPEND"
	case Override:
		return "OVERRIDE"
	case Remove:
		return "REMOVE"
	case Defaults:
		return "DEFAULTS"
	default:
		return fmt.Sprintf("Directive(%d)", int(d))
	}
}

// Valid reports whether d is one of the declared directives.
func (d Directive) Valid() bool {
	return d >= Merge && d <= Defaults
}

// ParseDirective parses a combine attribute value. Matching is
// case-insensitive and surrounding whitespace is ignored; an empty value
// means Merge.
func ParseDirective(s string) (Directive, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "MERGE":
		return Merge, nil
	case "APPEND":
		return Append, nil
	case "OVERRIDE":
		return Override, nil
	case "REMOVE":
		return Remove, nil
	case "DEFAULTS":
		return Defaults, nil
	default:
		return Merge, fmt.Errorf("%w: %q", ErrInvalidDirective, s)
	}
}

// LiftDirectives walks the subtree, moves every combine attribute into the
// node's Directive field and removes it from the attribute list. Document
// loaders call it once per parsed document so the rest of the pipeline never
// sees the raw attribute.
func LiftDirectives(root *Node) error {
	return root.Walk(func(path string, n *Node) error {
		raw, ok := n.Attr(CombineAttr)
		if !ok {
			return nil
		}
		d, err := ParseDirective(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		n.Directive = d
		n.DeleteAttr(CombineAttr)
		return nil
	})
}
