package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/service"
	"github.com/vk/conflux/internal/tree"
)

// Reserved names understood by the materializer.
const (
	// KindAttr selects the registered kind of an element whose tag differs
	// from the kind name.
	KindAttr = "kind"
	// ImportTag is the child element declaring an import.
	ImportTag = "import"
)

// ErrUnknownKind is returned for elements whose kind is not registered.
var ErrUnknownKind = errors.New("unknown service kind")

// Error locates a materialization failure in the configuration tree.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("materialize %s: %v", e.Path, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// AmbiguousRefError reports a reference that matches several services.
type AmbiguousRefError struct {
	Path       string
	Field      string
	ID         string
	Candidates []string
}

func (e *AmbiguousRefError) Error() string {
	return fmt.Sprintf("%s: reference %s=%q matches %s", e.Path, e.Field, e.ID, strings.Join(e.Candidates, ", "))
}

// pendingRef is a ref field waiting for the second pass.
type pendingRef struct {
	owner service.Service
	path  string
	field fieldSpec
	id    string
}

type run struct {
	reg     *Registry
	logger  *slog.Logger
	all     []service.Service
	paths   map[service.Service]string
	pending []pendingRef
}

// Materialize builds the service forest for root. Every element other than
// `import` becomes a service of the kind named by its `kind` attribute or,
// by default, its tag.
func (r *Registry) Materialize(ctx context.Context, root *tree.Node) (service.Service, error) {
	logger := ctxlog.FromContext(ctx)
	m := &run{reg: r, logger: logger, paths: make(map[service.Service]string)}

	svc, err := m.build(root, "/"+root.Key())
	if err != nil {
		return nil, err
	}
	if err := m.resolveRefs(); err != nil {
		return nil, err
	}
	logger.Debug("Materialized service forest.", "services", len(m.all), "references", len(m.pending))
	return svc, nil
}

func (m *run) build(n *tree.Node, path string) (service.Service, error) {
	kindName := n.Name
	if k, ok := n.Attr(KindAttr); ok && k != "" {
		kindName = k
	}
	kind, ok := m.reg.kinds[kindName]
	if !ok {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: %q", ErrUnknownKind, kindName)}
	}
	if kind.err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("kind '%s' is invalid: %w", kindName, kind.err)}
	}

	svc := kind.New()
	meta := svc.Meta()
	meta.Kind = kindName
	meta.ID = n.ID()
	meta.Path = path
	if v, ok := n.Attr(tree.DefaultAttr); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &Error{Path: path, Err: fmt.Errorf("attribute %q: %w", tree.DefaultAttr, err)}
		}
		meta.Default = b
	}
	m.all = append(m.all, svc)
	m.paths[svc] = path

	if err := m.assignAttrs(svc, kind, n, path); err != nil {
		return nil, err
	}

	// Sub-services and imports, in document order.
	byTag := make(map[string][]service.Service)
	for _, c := range n.Children {
		childPath := path + "/" + c.Key()
		if c.Name == ImportTag {
			imp, err := parseImport(c)
			if err != nil {
				return nil, &Error{Path: childPath, Err: err}
			}
			meta.Imports = append(meta.Imports, imp)
			continue
		}
		child, err := m.build(c, childPath)
		if err != nil {
			return nil, err
		}
		meta.Children = append(meta.Children, child)
		byTag[c.Name] = append(byTag[c.Name], child)
	}

	for _, f := range kind.fields {
		if f.mode != modeElem {
			continue
		}
		if err := assignElems(svc, f, byTag[f.name]); err != nil {
			return nil, &Error{Path: path, Err: err}
		}
	}
	return svc, nil
}

func (m *run) assignAttrs(svc service.Service, kind *Kind, n *tree.Node, path string) error {
	known := map[string]bool{tree.IDAttr: true, tree.DefaultAttr: true, KindAttr: true}

	for _, f := range kind.fields {
		if f.mode == modeElem {
			continue
		}
		known[f.name] = true
		raw, present := n.Attr(f.name)

		if f.mode == modeRef {
			if !present && !f.required {
				continue
			}
			m.pending = append(m.pending, pendingRef{owner: svc, path: path, field: f, id: raw})
			continue
		}

		if !present {
			if f.def == "" {
				if f.required {
					return &Error{Path: path, Err: fmt.Errorf("missing required attribute %q", f.name)}
				}
				continue
			}
			raw = f.def
		}
		if err := assign(fieldOf(svc, f), raw); err != nil {
			return &Error{Path: path, Err: fmt.Errorf("attribute %q: cannot use %q: %w", f.name, raw, err)}
		}
	}

	for _, a := range n.Attrs {
		if !known[a.Name] {
			return &Error{Path: path, Err: fmt.Errorf("unknown attribute %q for kind '%s'", a.Name, kind.Name)}
		}
	}
	return nil
}

func assignElems(svc service.Service, f fieldSpec, children []service.Service) error {
	dst := fieldOf(svc, f)
	for _, c := range children {
		if !reflect.TypeOf(c).AssignableTo(f.target) {
			return fmt.Errorf("element <%s>: %s cannot be used as %s", f.name, reflect.TypeOf(c), f.target)
		}
	}

	if f.many {
		out := reflect.MakeSlice(dst.Type(), 0, len(children))
		for _, c := range children {
			out = reflect.Append(out, reflect.ValueOf(c))
		}
		dst.Set(out)
		return nil
	}

	switch len(children) {
	case 0:
		if f.required {
			return fmt.Errorf("missing required element <%s>", f.name)
		}
	case 1:
		dst.Set(reflect.ValueOf(children[0]))
	default:
		return fmt.Errorf("element <%s> may appear only once, found %d", f.name, len(children))
	}
	return nil
}

func parseImport(n *tree.Node) (service.Import, error) {
	var imp service.Import
	for _, a := range n.Attrs {
		switch a.Name {
		case "capability":
			imp.Capability = service.Capability(a.Value)
		case tree.IDAttr:
			imp.ID = a.Value
		case "mode":
			switch strings.ToLower(a.Value) {
			case "", "bind":
				imp.Mode = service.BindOnly
			case "depends":
				imp.Mode = service.DependsOn
			default:
				return imp, fmt.Errorf("import mode %q must be 'bind' or 'depends'", a.Value)
			}
		case "optional":
			b, err := strconv.ParseBool(a.Value)
			if err != nil {
				return imp, fmt.Errorf("import attribute 'optional': %w", err)
			}
			imp.Optional = b
		default:
			return imp, fmt.Errorf("unknown import attribute %q", a.Name)
		}
	}
	if imp.Capability == "" {
		return imp, errors.New("import requires a 'capability' attribute")
	}
	return imp, nil
}

// resolveRefs is the second pass: every collected reference is matched
// against all identified services assignable to the field type.
func (m *run) resolveRefs() error {
	for _, p := range m.pending {
		var candidates []service.Service
		for _, s := range m.all {
			id := s.Meta().ID
			if s == p.owner || id == "" || (p.id != "" && id != p.id) {
				continue
			}
			if reflect.TypeOf(s).AssignableTo(p.field.target) {
				candidates = append(candidates, s)
			}
		}

		var target service.Service
		switch {
		case len(candidates) == 0:
			return &Error{Path: p.path, Err: fmt.Errorf("reference %s=%q: no matching %s", p.field.name, p.id, p.field.target)}
		case len(candidates) == 1:
			target = candidates[0]
		default:
			names := make([]string, len(candidates))
			for i, c := range candidates {
				names[i] = m.paths[c]
			}
			if !p.field.warn {
				return &AmbiguousRefError{Path: p.path, Field: p.field.name, ID: p.id, Candidates: names}
			}
			m.logger.Warn("Ambiguous reference, using the first match.", "path", p.path, "field", p.field.name, "id", p.id, "candidates", names)
			target = candidates[0]
		}

		fieldOf(p.owner, p.field).Set(reflect.ValueOf(target))
		meta := p.owner.Meta()
		meta.Imports = append(meta.Imports, service.Import{
			ID:     target.Meta().ID,
			Mode:   service.DependsOn,
			Target: target,
		})
	}
	return nil
}
