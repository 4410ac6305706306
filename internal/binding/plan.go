// Package binding turns a service forest into an activation graph and a
// binding plan.
//
// Every unit is given an address and a declaration index by a depth-first
// walk. Each declared import is resolved against the importer's scope chain:
// its own sub-services, then its siblings, then its parent's siblings, and so
// on up to the top level, then the extra bindings handed to Build. A provider
// with an id is reachable as (capability, id); the unqualified form reaches
// the only provider at the nearest level that has any, or the one marked
// default when there are several.
package binding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/dag"
	"github.com/vk/conflux/internal/service"
)

// Unit is a service placed in the forest.
type Unit struct {
	Addr     string
	Service  service.Service
	Parent   *Unit
	Children []*Unit
	// Index is the position in depth-first declaration order.
	Index int
}

// Kind is shorthand for the unit's configured kind.
func (u *Unit) Kind() string { return u.Service.Meta().Kind }

// ID is shorthand for the unit's configured identifier.
func (u *Unit) ID() string { return u.Service.Meta().ID }

// Provides returns the capabilities the unit publishes.
func (u *Unit) Provides() []service.Capability {
	if p, ok := u.Service.(service.Provider); ok {
		return p.Provides()
	}
	return nil
}

func (u *Unit) provides(c service.Capability) bool {
	return slices.Contains(u.Provides(), c)
}

// Extra is a capability supplied by the embedding program rather than by a
// configured unit. Extras are the outermost scope level.
type Extra struct {
	Capability service.Capability
	ID         string
	Default    bool
	Value      any
}

// Binding is a resolved import. Exactly one of Provider and Extra is set,
// unless the import is optional and unbound, in which case neither is.
type Binding struct {
	Import   service.Import
	Provider *Unit
	Extra    *Extra
}

// Source describes where the binding is served from.
func (b Binding) Source() string {
	switch {
	case b.Provider != nil:
		return b.Provider.Addr
	case b.Extra != nil:
		return "extra:" + string(b.Extra.Capability)
	default:
		return "unbound"
	}
}

// Plan is the immutable result of Build.
type Plan struct {
	units    []*Unit
	byAddr   map[string]*Unit
	bySvc    map[service.Service]*Unit
	bindings map[*Unit][]Binding
	hints    []Hint
}

// Units returns all units in declaration order, the root first.
func (p *Plan) Units() []*Unit { return slices.Clone(p.units) }

// Unit returns the unit at addr, or nil.
func (p *Plan) Unit(addr string) *Unit { return p.byAddr[addr] }

// UnitOf returns the unit wrapping s, or nil.
func (p *Plan) UnitOf(s service.Service) *Unit { return p.bySvc[s] }

// Bindings returns the resolved imports of u, in declaration order.
func (p *Plan) Bindings(u *Unit) []Binding { return slices.Clone(p.bindings[u]) }

// Hints returns the non-fatal findings made while planning.
func (p *Plan) Hints() []Hint { return slices.Clone(p.hints) }

// Build places every unit of the forest rooted at root, resolves all imports
// and returns the activation graph. An edge A -> B means A must be activated
// before B: every sub-service before its parent, and every DependsOn
// provider before its importer. The graph is checked for cycles.
func Build(ctx context.Context, root service.Service, extras ...Extra) (*dag.Graph, *Plan, error) {
	logger := ctxlog.FromContext(ctx)
	if root == nil {
		return nil, nil, errors.New("binding: nil root service")
	}

	p := &Plan{
		byAddr:   make(map[string]*Unit),
		bySvc:    make(map[service.Service]*Unit),
		bindings: make(map[*Unit][]Binding),
	}
	rootAddr := "/" + root.Meta().Kind
	if id := root.Meta().ID; id != "" {
		rootAddr += "#" + id
	}
	if _, err := p.place(root, nil, rootAddr); err != nil {
		return nil, nil, err
	}
	logger.Debug("Binding: units placed.", "count", len(p.units))

	g := dag.New()
	for _, u := range p.units {
		g.AddNode(u.Addr)
	}
	for _, u := range p.units {
		if u.Parent != nil {
			if err := g.AddEdge(u.Addr, u.Parent.Addr); err != nil {
				return nil, nil, err
			}
		}
	}

	for _, u := range p.units {
		for _, imp := range u.Service.Meta().Imports {
			b, hint, err := p.resolve(u, imp, extras)
			if err != nil {
				return nil, nil, err
			}
			if hint != nil {
				p.hints = append(p.hints, *hint)
				logger.Warn("Binding: optional import left unbound.", "unit", u.Addr, "import", imp.String(), "reason", hint.Reason)
				p.bindings[u] = append(p.bindings[u], b)
				continue
			}
			p.bindings[u] = append(p.bindings[u], b)
			logger.Debug("Binding: import resolved.", "unit", u.Addr, "import", imp.String(), "mode", imp.Mode.String(), "source", b.Source())

			if imp.Mode == service.DependsOn && b.Provider != nil && b.Provider != u {
				if err := g.AddEdge(b.Provider.Addr, u.Addr); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	if err := g.DetectCycles(); err != nil {
		return nil, nil, fmt.Errorf("binding: %w", err)
	}
	return g, p, nil
}

// place registers s and its sub-services depth-first, pre-order.
func (p *Plan) place(s service.Service, parent *Unit, addr string) (*Unit, error) {
	meta := s.Meta()
	if meta.Kind == "" {
		return nil, fmt.Errorf("binding: service at %s has no kind", addr)
	}
	if _, dup := p.bySvc[s]; dup {
		return nil, fmt.Errorf("binding: service %s appears twice in the forest", addr)
	}

	if other, taken := p.byAddr[addr]; taken {
		return nil, &AddressError{Addr: addr, Kind: meta.Kind, ID: meta.ID, Other: other.Kind()}
	}

	u := &Unit{Addr: addr, Service: s, Parent: parent, Index: len(p.units)}
	p.units = append(p.units, u)
	p.byAddr[addr] = u
	p.bySvc[s] = u

	seen := make(map[[2]string]bool)
	anon := make(map[string]int)
	for _, c := range meta.Children {
		cm := c.Meta()
		if cm.ID != "" {
			key := [2]string{cm.Kind, cm.ID}
			if seen[key] {
				return nil, &DuplicateError{Parent: addr, Kind: cm.Kind, ID: cm.ID}
			}
			seen[key] = true
		}
		cu, err := p.place(c, u, addr+"/"+segment(c, anon[cm.Kind]))
		if err != nil {
			return nil, err
		}
		if cm.ID == "" {
			anon[cm.Kind]++
		}
		u.Children = append(u.Children, cu)
	}
	return u, nil
}

// segment renders one address component: kind#id, or kind[n] for the n-th
// un-identified sibling of that kind.
func segment(s service.Service, n int) string {
	m := s.Meta()
	if m.ID != "" {
		return m.Kind + "#" + m.ID
	}
	return m.Kind + "[" + strconv.Itoa(n) + "]"
}
