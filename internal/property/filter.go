package property

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/conflux/internal/tree"
)

// UnresolvedError reports a reference that no resolver could satisfy. It
// matches ErrNotFound so enclosing `oneof` references can fall through to
// their next candidate.
type UnresolvedError struct {
	Name string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved property %q", e.Name)
}

func (e *UnresolvedError) Unwrap() error { return ErrNotFound }

// FilterError locates a substitution failure inside a configuration tree.
type FilterError struct {
	Path string
	Attr string
	Err  error
}

func (e *FilterError) Error() string {
	if e.Attr != "" {
		return fmt.Sprintf("filter %s@%s: %v", e.Path, e.Attr, e.Err)
	}
	return fmt.Sprintf("filter %s: %v", e.Path, e.Err)
}

func (e *FilterError) Unwrap() error { return e.Err }

type options struct {
	keepUnresolved bool
}

// Option tunes Filter and FilterTree.
type Option func(*options)

// KeepUnresolved leaves references that cannot be resolved in place instead
// of failing. Cycles and resolver failures are still reported.
func KeepUnresolved() Option {
	return func(o *options) { o.keepUnresolved = true }
}

// Filter substitutes every property reference in text using r. Text without
// references is returned unchanged.
func Filter(text string, r Resolver, opts ...Option) (string, error) {
	if !ContainsRef(text) {
		return text, nil
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return expand(Parse(text), r.Resolve, o.keepUnresolved)
}

// FilterTree returns a copy of root with references in attribute values and
// text content substituted. Element names are left untouched.
func FilterTree(root *tree.Node, r Resolver, opts ...Option) (*tree.Node, error) {
	out := root.Clone()
	err := out.Walk(func(path string, n *tree.Node) error {
		for i := range n.Attrs {
			v, err := Filter(n.Attrs[i].Value, r, opts...)
			if err != nil {
				return &FilterError{Path: path, Attr: n.Attrs[i].Name, Err: err}
			}
			n.Attrs[i].Value = v
		}
		v, err := Filter(n.Text, r, opts...)
		if err != nil {
			return &FilterError{Path: path, Err: err}
		}
		n.Text = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func expand(expr Expression, lookup func(string) (string, error), keep bool) (string, error) {
	var sb strings.Builder
	for _, seg := range expr {
		switch s := seg.(type) {
		case Literal:
			sb.WriteString(string(s))
		case Ref:
			v, err := expandRef(s, lookup)
			if err != nil {
				if keep && errors.Is(err, ErrNotFound) {
					sb.WriteString(s.Raw)
					continue
				}
				return "", err
			}
			sb.WriteString(v)
		}
	}
	return sb.String(), nil
}

func expandRef(ref Ref, lookup func(string) (string, error)) (string, error) {
	if ref.OneOf == nil {
		name, err := expand(ref.Name, lookup, false)
		if err != nil {
			return "", err
		}
		v, err := lookup(name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return "", &UnresolvedError{Name: name}
			}
			return "", err
		}
		return v, nil
	}

	for _, cand := range ref.OneOf {
		name, err := expand(cand, lookup, false)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return "", err
		}
		if name == "" {
			return "", nil
		}
		v, err := lookup(name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", &UnresolvedError{Name: strings.TrimSuffix(strings.TrimPrefix(ref.Raw, refOpen), "}")}
}
