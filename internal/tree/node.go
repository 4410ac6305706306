package tree

import (
	"fmt"
	"strings"
)

// Reserved attribute names.
const (
	// CombineAttr carries the merge directive of an element.
	CombineAttr = "combine"
	// IDAttr carries the identifier used to correlate nodes across documents.
	IDAttr = "id"
	// DefaultAttr marks a service as the default instance of its kind.
	DefaultAttr = "default"
)

// Attr is a single attribute of a Node. Attribute order is significant and
// preserved through merging and filtering.
type Attr struct {
	Name  string
	Value string
}

// Node is one configuration element: a tag name, ordered attributes, ordered
// children, optional text content and a merge directive.
type Node struct {
	Name      string
	Attrs     []Attr
	Children  []*Node
	Text      string
	Directive Directive

	// Source names the document the node was loaded from. It is informational
	// and ignored by Equal.
	Source string
}

// New creates an element with the given name and attributes, given as
// alternating name/value pairs.
func New(name string, attrs ...string) *Node {
	if len(attrs)%2 != 0 {
		panic(fmt.Sprintf("tree.New(%q): odd number of attribute arguments", name))
	}
	n := &Node{Name: name}
	for i := 0; i < len(attrs); i += 2 {
		n.SetAttr(attrs[i], attrs[i+1])
	}
	return n
}

// Add appends children and returns the receiver, for compact construction.
func (n *Node) Add(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// WithText sets the text content and returns the receiver.
func (n *Node) WithText(text string) *Node {
	n.Text = text
	return n
}

// WithDirective sets the merge directive and returns the receiver.
func (n *Node) WithDirective(d Directive) *Node {
	n.Directive = d
	return n
}

// ID returns the identifier attribute, or "" when the node has none.
func (n *Node) ID() string {
	v, _ := n.Attr(IDAttr)
	return v
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets the named attribute, replacing an existing value in place or
// appending a new attribute.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// DeleteAttr removes the named attribute. It reports whether it was present.
func (n *Node) DeleteAttr(name string) bool {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return true
		}
	}
	return false
}

// ChildrenNamed returns the direct children with the given tag name.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Key identifies the node among its siblings for diagnostics: the tag name,
// qualified by the identifier when present.
func (n *Node) Key() string {
	if id := n.ID(); id != "" {
		return n.Name + "#" + id
	}
	return n.Name
}

// Clone returns a deep copy of the subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Name:      n.Name,
		Text:      n.Text,
		Directive: n.Directive,
		Source:    n.Source,
	}
	if n.Attrs != nil {
		out.Attrs = make([]Attr, len(n.Attrs))
		copy(out.Attrs, n.Attrs)
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

// Equal reports whether two subtrees have the same name, attributes (in
// order), text, directive and children.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Name != o.Name || n.Text != o.Text || n.Directive != o.Directive {
		return false
	}
	if len(n.Attrs) != len(o.Attrs) || len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Attrs {
		if n.Attrs[i] != o.Attrs[i] {
			return false
		}
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// Walk visits the subtree depth-first, pre-order. The path passed to fn is
// the slash-separated chain of node keys from the walk root.
func (n *Node) Walk(fn func(path string, node *Node) error) error {
	return n.walk("/"+n.Key(), fn)
}

func (n *Node) walk(path string, fn func(string, *Node) error) error {
	if err := fn(path, n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.walk(path+"/"+c.Key(), fn); err != nil {
			return err
		}
	}
	return nil
}

// String renders the subtree as indented XML-like text. The rendering is
// stable and is what `conflux render` prints.
func (n *Node) String() string {
	var sb strings.Builder
	n.render(&sb, 0)
	return sb.String()
}

func (n *Node) render(sb *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	sb.WriteString(indent)
	sb.WriteByte('<')
	sb.WriteString(n.Name)
	for _, a := range n.Attrs {
		writeAttr(sb, a.Name, a.Value)
	}
	if n.Directive != Merge {
		writeAttr(sb, CombineAttr, n.Directive.String())
	}
	if len(n.Children) == 0 && n.Text == "" {
		sb.WriteString("/>\n")
		return
	}
	sb.WriteByte('>')
	if len(n.Children) == 0 {
		sb.WriteString(escapeText(n.Text))
		sb.WriteString("</" + n.Name + ">\n")
		return
	}
	sb.WriteByte('\n')
	if n.Text != "" {
		sb.WriteString(indent + "  " + escapeText(n.Text) + "\n")
	}
	for _, c := range n.Children {
		c.render(sb, depth+1)
	}
	sb.WriteString(indent + "</" + n.Name + ">\n")
}

func writeAttr(sb *strings.Builder, name, value string) {
	sb.WriteString(" " + name + `="`)
	sb.WriteString(attrEscaper.Replace(value))
	sb.WriteByte('"')
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Line breaks and tabs are written as character references so attribute
// value normalization keeps them on reload.
var attrEscaper = strings.NewReplacer(
	"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
	"\n", "&#xA;", "\r", "&#xD;", "\t", "&#x9;",
)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}
