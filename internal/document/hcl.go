package document

import (
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/conflux/internal/tree"
)

// parseHCL reads a native-syntax HCL document. The file must hold exactly one
// top-level block, which becomes the root element. A block's single optional
// label is its `id`. Attribute expressions are evaluated without variables,
// so they must be literals; `$${name}` produces a literal `${name}` reference
// for the property filter.
func parseHCL(name string, data []byte) (*tree.Node, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL document %s: %w", name, diags)
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("failed to parse HCL document %s: unexpected body type %T", name, file.Body)
	}
	if len(body.Attributes) > 0 {
		return nil, fmt.Errorf("HCL document %s: attributes are not allowed outside the root block", name)
	}
	if len(body.Blocks) != 1 {
		return nil, fmt.Errorf("HCL document %s: expected exactly one root block, found %d", name, len(body.Blocks))
	}
	return translateBlock(body.Blocks[0])
}

func translateBlock(b *hclsyntax.Block) (*tree.Node, error) {
	n := &tree.Node{Name: b.Type}
	switch len(b.Labels) {
	case 0:
	case 1:
		n.SetAttr(tree.IDAttr, b.Labels[0])
	default:
		return nil, fmt.Errorf("%s: block %q takes at most one label, found %d", b.DefRange(), b.Type, len(b.Labels))
	}

	attrs := make([]*hclsyntax.Attribute, 0, len(b.Body.Attributes))
	for _, a := range b.Body.Attributes {
		attrs = append(attrs, a)
	}
	// Body.Attributes is a map; keep source order.
	slices.SortFunc(attrs, func(x, y *hclsyntax.Attribute) int {
		return x.SrcRange.Start.Byte - y.SrcRange.Start.Byte
	})

	for _, a := range attrs {
		s, err := attrString(a)
		if err != nil {
			return nil, err
		}
		if a.Name == TextAttr {
			n.Text = s
			continue
		}
		if a.Name == tree.IDAttr && len(b.Labels) == 1 {
			return nil, fmt.Errorf("%s: block %q sets id both as label and attribute", a.SrcRange, b.Type)
		}
		n.SetAttr(a.Name, s)
	}

	for _, child := range b.Body.Blocks {
		c, err := translateBlock(child)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

func attrString(a *hclsyntax.Attribute) (string, error) {
	val, diags := a.Expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("%s: attribute %q: %w", a.SrcRange, a.Name, diags)
	}
	if val.IsNull() {
		return "", nil
	}
	if !val.IsWhollyKnown() {
		return "", fmt.Errorf("%s: attribute %q has an unknown value", a.SrcRange, a.Name)
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unsupported attribute value",
			Detail:   fmt.Sprintf("Attribute %q must be a string, number or bool: %s.", a.Name, err),
			Subject:  a.SrcRange.Ptr(),
		}}
	}
	return str.AsString(), nil
}
