// Package merge combines layered configuration trees into one effective tree.
//
// Documents are folded left to right: each later document is merged onto the
// result of the earlier ones, node by node, following the merge directive the
// later node carries (see tree.Directive). Nodes are correlated by tag name
// and `id` when the later node has an identifier, and by tag name and
// position among un-identified siblings otherwise.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/tree"
)

var (
	// ErrIncompatible is returned when two documents cannot be combined
	// structurally, such as roots with different tag names.
	ErrIncompatible = errors.New("structurally incompatible nodes")
	// ErrNoDocuments is returned by Fold when it is given nothing to merge.
	ErrNoDocuments = errors.New("no documents to merge")
)

// Error reports a merge failure at a specific node path.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("merge %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fold merges the documents in order and returns the effective tree. The
// inputs are not modified.
func Fold(ctx context.Context, docs ...*tree.Node) (*tree.Node, error) {
	logger := ctxlog.FromContext(ctx)
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	acc, err := Merge(nil, docs[0])
	if err != nil {
		return nil, err
	}
	logger.Debug("Merge: base document normalized.", "source", docs[0].Source, "root", acc.Name)

	for _, doc := range docs[1:] {
		acc, err = Merge(acc, doc)
		if err != nil {
			return nil, err
		}
		logger.Debug("Merge: document merged.", "source", doc.Source)
	}
	return acc, nil
}

// Merge combines child onto parent and returns a new tree. A nil parent
// yields the normalized child. Neither input is modified.
func Merge(parent, child *tree.Node) (*tree.Node, error) {
	if child == nil {
		if parent == nil {
			return nil, ErrNoDocuments
		}
		return normalize(parent, "/"+parent.Key())
	}
	path := "/" + child.Key()
	if child.Directive == tree.Remove {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: a document root cannot be removed", ErrIncompatible)}
	}
	if parent == nil {
		return normalize(child, path)
	}
	if parent.Name != child.Name {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: root %q cannot merge onto root %q", ErrIncompatible, child.Name, parent.Name)}
	}

	base, err := normalize(parent, "/"+parent.Key())
	if err != nil {
		return nil, err
	}
	return combine(base, child, false, path)
}

// combine merges c onto the already-normalized p. parentWins is set inside
// Defaults subtrees, where the earlier document takes precedence.
func combine(p, c *tree.Node, parentWins bool, path string) (*tree.Node, error) {
	if !c.Directive.Valid() {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: %s", tree.ErrInvalidDirective, c.Directive)}
	}

	switch c.Directive {
	case tree.Override:
		return normalize(c, path)
	case tree.Defaults:
		parentWins = true
	}

	out := &tree.Node{
		Name:   p.Name,
		Attrs:  mergeAttrs(p.Attrs, c.Attrs, parentWins),
		Text:   mergeText(p.Text, c.Text, parentWins),
		Source: p.Source,
	}

	if c.Directive == tree.Append {
		for _, pc := range p.Children {
			out.Children = append(out.Children, pc.Clone())
		}
		for _, cc := range c.Children {
			if cc.Directive == tree.Remove {
				continue
			}
			n, err := normalize(cc, path+"/"+cc.Key())
			if err != nil {
				return nil, err
			}
			out.Children = append(out.Children, n)
		}
		return out, nil
	}

	children, err := mergeChildren(p.Children, c.Children, parentWins, path)
	if err != nil {
		return nil, err
	}
	out.Children = children
	return out, nil
}

// mergeChildren merges two sibling lists. Parent order is kept; children that
// only exist on the child side are appended in their own order.
func mergeChildren(parents, children []*tree.Node, parentWins bool, path string) ([]*tree.Node, error) {
	slots := make([]*tree.Node, len(parents))
	for i, pc := range parents {
		slots[i] = pc.Clone()
	}
	matched := make([]bool, len(parents))
	positions := make(map[string]int)

	var appended []*tree.Node
	for _, cc := range children {
		childPath := path + "/" + cc.Key()

		var idx int
		if id := cc.ID(); id != "" {
			idx = matchIdentified(parents, matched, cc.Name, id)
		} else {
			idx = matchPositional(parents, matched, cc.Name, positions[cc.Name])
			positions[cc.Name]++
		}

		if idx < 0 {
			if cc.Directive == tree.Remove {
				continue
			}
			n, err := normalize(cc, childPath)
			if err != nil {
				return nil, err
			}
			appended = append(appended, n)
			continue
		}

		matched[idx] = true
		if cc.Directive == tree.Remove {
			slots[idx] = nil
			continue
		}
		m, err := combine(slots[idx], cc, parentWins, childPath)
		if err != nil {
			return nil, err
		}
		slots[idx] = m
	}

	out := make([]*tree.Node, 0, len(slots)+len(appended))
	for _, s := range slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return append(out, appended...), nil
}

// matchIdentified finds the first unmatched parent child with the same tag
// and identifier.
func matchIdentified(parents []*tree.Node, matched []bool, name, id string) int {
	for i, pc := range parents {
		if !matched[i] && pc.Name == name && pc.ID() == id {
			return i
		}
	}
	return -1
}

// matchPositional finds the nth un-identified parent child with the given tag.
// Identified parent children never match un-identified child nodes.
func matchPositional(parents []*tree.Node, matched []bool, name string, nth int) int {
	seen := 0
	for i, pc := range parents {
		if pc.Name != name || pc.ID() != "" {
			continue
		}
		if seen == nth {
			if matched[i] {
				return -1
			}
			return i
		}
		seen++
	}
	return -1
}

func mergeAttrs(parent, child []tree.Attr, parentWins bool) []tree.Attr {
	out := make([]tree.Attr, len(parent), len(parent)+len(child))
	copy(out, parent)
	for _, ca := range child {
		found := false
		for i := range out {
			if out[i].Name == ca.Name {
				found = true
				if !parentWins {
					out[i].Value = ca.Value
				}
				break
			}
		}
		if !found {
			out = append(out, ca)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mergeText(parent, child string, parentWins bool) string {
	if parentWins {
		if parent != "" {
			return parent
		}
		return child
	}
	if child != "" {
		return child
	}
	return parent
}

// normalize copies a subtree that takes part in the output without a
// counterpart: directives are reset and Remove nodes are dropped.
func normalize(n *tree.Node, path string) (*tree.Node, error) {
	if !n.Directive.Valid() {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: %s", tree.ErrInvalidDirective, n.Directive)}
	}
	out := &tree.Node{
		Name:   n.Name,
		Text:   n.Text,
		Source: n.Source,
	}
	if len(n.Attrs) > 0 {
		out.Attrs = make([]tree.Attr, len(n.Attrs))
		copy(out.Attrs, n.Attrs)
	}
	for _, c := range n.Children {
		if c.Directive == tree.Remove {
			continue
		}
		nc, err := normalize(c, path+"/"+c.Key())
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, nc)
	}
	return out, nil
}
