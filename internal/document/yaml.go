package document

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/vk/conflux/internal/tree"
)

// parseYAML reads a YAML document whose top level is a mapping with exactly
// one key, the root element. Within an element, scalar entries are
// attributes, mappings are child elements, sequences are repeated child
// elements and the `_text` entry is the text content. An empty entry is an
// empty child element.
func parseYAML(name string, data []byte) (*tree.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML document %s: %w", name, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("parsing YAML document %s: empty document", name)
	}
	top := doc.Content[0]
	if top.Kind != yaml.MappingNode || len(top.Content) != 2 {
		return nil, fmt.Errorf("parsing YAML document %s: line %d: expected a mapping with a single root key", name, top.Line)
	}
	return yamlElement(top.Content[0].Value, top.Content[1])
}

func yamlElement(tag string, v *yaml.Node) (*tree.Node, error) {
	n := &tree.Node{Name: tag}
	if v.Kind == yaml.AliasNode {
		v = v.Alias
	}

	switch v.Kind {
	case yaml.ScalarNode:
		if v.Tag != "!!null" {
			n.Text = v.Value
		}
		return n, nil
	case yaml.MappingNode:
	default:
		return nil, fmt.Errorf("line %d: element %q must be a mapping or a scalar", v.Line, tag)
	}

	for i := 0; i+1 < len(v.Content); i += 2 {
		key, val := v.Content[i].Value, v.Content[i+1]
		if val.Kind == yaml.AliasNode {
			val = val.Alias
		}

		switch {
		case key == TextAttr:
			if val.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: %s of %q must be a scalar", val.Line, TextAttr, tag)
			}
			n.Text = val.Value
		case val.Kind == yaml.ScalarNode && val.Tag != "!!null":
			n.SetAttr(key, val.Value)
		case val.Kind == yaml.SequenceNode:
			for _, item := range val.Content {
				c, err := yamlElement(key, item)
				if err != nil {
					return nil, err
				}
				n.Children = append(n.Children, c)
			}
		default:
			c, err := yamlElement(key, val)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, c)
		}
	}
	return n, nil
}
