package binding

import (
	"fmt"

	"github.com/vk/conflux/internal/service"
)

// resolve binds one import of u. An optional import that finds nothing
// returns a hint and an empty binding instead of an error. A targeted import
// without a capability only orders the target before u.
func (p *Plan) resolve(u *Unit, imp service.Import, extras []Extra) (Binding, *Hint, error) {
	b := Binding{Import: imp}

	if imp.Target != nil {
		target := p.bySvc[imp.Target]
		switch {
		case target == nil:
			return b, nil, &MissingError{Unit: u.Addr, Import: imp, Reason: "target is not part of the application"}
		case target == u:
			return b, nil, &MissingError{Unit: u.Addr, Import: imp, Reason: "a unit cannot import from itself"}
		case imp.Capability != "" && !target.provides(imp.Capability):
			return b, nil, &MissingError{Unit: u.Addr, Import: imp, Reason: fmt.Sprintf("target %s does not provide it", target.Addr)}
		}
		b.Provider = target
		return b, nil, nil
	}

	for _, level := range scopeChain(u) {
		found, err := pick(u, imp, level)
		if err != nil {
			return b, nil, err
		}
		if found != nil {
			b.Provider = found
			return b, nil, nil
		}
	}

	extra, err := pickExtra(u, imp, extras)
	if err != nil {
		return b, nil, err
	}
	if extra != nil {
		b.Extra = extra
		return b, nil, nil
	}

	if imp.Optional {
		return b, &Hint{Unit: u.Addr, Import: imp, Reason: "no provider in scope"}, nil
	}
	return b, nil, &MissingError{Unit: u.Addr, Import: imp}
}

// scopeChain lists the levels searched for u, nearest first: its own
// sub-services, its siblings, its parent's siblings and so on up to the
// children of the root.
func scopeChain(u *Unit) [][]*Unit {
	levels := [][]*Unit{u.Children}
	for cur := u; cur.Parent != nil; cur = cur.Parent {
		siblings := make([]*Unit, 0, len(cur.Parent.Children))
		for _, s := range cur.Parent.Children {
			if s != cur {
				siblings = append(siblings, s)
			}
		}
		levels = append(levels, siblings)
	}
	return levels
}

// pick applies the rewrite rule to one scope level. It returns nil when the
// level has no matching provider.
func pick(u *Unit, imp service.Import, level []*Unit) (*Unit, error) {
	var candidates []*Unit
	for _, c := range level {
		if c == u || !c.provides(imp.Capability) {
			continue
		}
		if imp.ID != "" && c.ID() != imp.ID {
			continue
		}
		candidates = append(candidates, c)
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	}

	if imp.ID == "" {
		var defaults []*Unit
		for _, c := range candidates {
			if c.Service.Meta().Default {
				defaults = append(defaults, c)
			}
		}
		if len(defaults) == 1 {
			return defaults[0], nil
		}
	}

	addrs := make([]string, len(candidates))
	for i, c := range candidates {
		addrs[i] = c.Addr
	}
	return nil, &AmbiguousError{Unit: u.Addr, Import: imp, Candidates: addrs}
}

func pickExtra(u *Unit, imp service.Import, extras []Extra) (*Extra, error) {
	var candidates []*Extra
	for i := range extras {
		e := &extras[i]
		if e.Capability != imp.Capability {
			continue
		}
		if imp.ID != "" && e.ID != imp.ID {
			continue
		}
		candidates = append(candidates, e)
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	}

	names := make([]string, 0, len(candidates))
	var defaults []*Extra
	for _, e := range candidates {
		if imp.ID == "" && e.Default {
			defaults = append(defaults, e)
		}
		names = append(names, "extra:"+service.Import{Capability: e.Capability, ID: e.ID}.String())
	}
	if len(defaults) == 1 {
		return defaults[0], nil
	}
	return nil, &AmbiguousError{Unit: u.Addr, Import: imp, Candidates: names}
}
