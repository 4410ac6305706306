package document

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/vk/conflux/internal/tree"
)

// EncodeYAML renders root in the YAML layout understood by the loader.
// Children sharing a tag are grouped into one sequence at the position of
// the first of them, so interleaving between different tags is not kept.
func EncodeYAML(root *tree.Node) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	doc.Content = append(doc.Content, str(root.Name), yamlValue(root))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yamlValue(n *tree.Node) *yaml.Node {
	if len(n.Attrs) == 0 && len(n.Children) == 0 && n.Text == "" && n.Directive == tree.Merge {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "~"}
	}

	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, a := range n.Attrs {
		m.Content = append(m.Content, str(a.Name), str(a.Value))
	}
	if n.Directive != tree.Merge {
		m.Content = append(m.Content, str(tree.CombineAttr), str(n.Directive.String()))
	}
	if n.Text != "" {
		m.Content = append(m.Content, str(TextAttr), str(n.Text))
	}

	var order []string
	groups := make(map[string][]*tree.Node)
	for _, c := range n.Children {
		if _, seen := groups[c.Name]; !seen {
			order = append(order, c.Name)
		}
		groups[c.Name] = append(groups[c.Name], c)
	}
	for _, name := range order {
		group := groups[name]
		if len(group) == 1 {
			m.Content = append(m.Content, str(name), yamlValue(group[0]))
			continue
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, c := range group {
			seq.Content = append(seq.Content, yamlValue(c))
		}
		m.Content = append(m.Content, str(name), seq)
	}
	return m
}

func str(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
