// Package document loads configuration documents into tree.Node values.
//
// Three formats are understood: XML, HCL and YAML. Whatever the format, the
// result is the same generic element tree; the reserved `combine` attribute
// is lifted into the node's merge directive during loading.
package document

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/conflux/internal/tree"
)

// Format names a document syntax.
type Format string

const (
	XML  Format = "xml"
	HCL  Format = "hcl"
	YAML Format = "yaml"
)

// TextAttr is the attribute that carries element text in formats without
// native text content (HCL and YAML).
const TextAttr = "_text"

// ErrUnknownFormat is returned for documents whose format cannot be determined.
var ErrUnknownFormat = errors.New("unknown document format")

// Extensions lists the file extensions recognised by FormatFor.
var Extensions = []string{".xml", ".hcl", ".yaml", ".yml"}

// FormatFor derives the format from a file name.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return XML, nil
	case ".hcl":
		return HCL, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case XML, HCL, YAML:
		return f, nil
	case "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Parse decodes data in the given format. name identifies the document in
// error messages and is recorded as the Source of every node.
func Parse(name string, format Format, data []byte) (*tree.Node, error) {
	var (
		root *tree.Node
		err  error
	)
	switch format {
	case XML:
		root, err = parseXML(name, data)
	case HCL:
		root, err = parseHCL(name, data)
	case YAML:
		root, err = parseYAML(name, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	if err := tree.LiftDirectives(root); err != nil {
		return nil, fmt.Errorf("document %s: %w", name, err)
	}
	_ = root.Walk(func(_ string, n *tree.Node) error {
		n.Source = name
		return nil
	})
	return root, nil
}
