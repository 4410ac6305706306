package binding

import (
	"fmt"
	"sync"

	"github.com/vk/conflux/internal/service"
)

type regKey struct {
	addr string
	cap  service.Capability
}

// Entry is one published capability.
type Entry struct {
	Unit       string
	Capability service.Capability
	Value      any
}

// Registry holds the capabilities units publish while they are configured.
// It is sealed once the configure phase is over; from then on BindOnly
// imports can be served.
type Registry struct {
	mu     sync.RWMutex
	values map[regKey]any
	order  []regKey
	sealed bool
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{values: make(map[regKey]any)}
}

// Lookup returns what the unit at addr published for c.
func (r *Registry) Lookup(addr string, c service.Capability) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[regKey{addr, c}]
	return v, ok
}

// Entries returns every published capability in publication order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, Entry{Unit: k.addr, Capability: k.cap, Value: r.values[k]})
	}
	return out
}

// Seal marks the end of the configure phase.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether the configure phase is over.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

func (r *Registry) publish(addr string, c service.Capability, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%s: cannot publish %s after the configure phase", addr, c)
	}
	k := regKey{addr, c}
	if _, ok := r.values[k]; ok {
		return fmt.Errorf("%s: capability %s published twice", addr, c)
	}
	r.values[k] = v
	r.order = append(r.order, k)
	return nil
}

// Binder is the service.Binder handed to one unit.
type Binder struct {
	plan *Plan
	unit *Unit
	reg  *Registry
}

var _ service.Binder = (*Binder)(nil)

// Binder returns the binder for u backed by reg.
func (p *Plan) Binder(u *Unit, reg *Registry) *Binder {
	return &Binder{plan: p, unit: u, reg: reg}
}

// Publish records value for one of the unit's provided capabilities.
func (b *Binder) Publish(c service.Capability, value any) error {
	if !b.unit.provides(c) {
		return fmt.Errorf("%s: cannot publish %s: not among the capabilities it provides", b.unit.Addr, c)
	}
	return b.reg.publish(b.unit.Addr, c, value)
}

// Import returns the value bound to the declared import (c, id).
func (b *Binder) Import(c service.Capability, id string) (any, error) {
	imp := service.Import{Capability: c, ID: id}
	var (
		binding Binding
		found   bool
	)
	for _, bd := range b.plan.bindings[b.unit] {
		if bd.Import.Capability == c && bd.Import.ID == id {
			binding, found = bd, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%s: import %s: %w", b.unit.Addr, imp, ErrUndeclared)
	}

	switch {
	case binding.Extra != nil:
		return binding.Extra.Value, nil
	case binding.Provider == nil:
		return nil, fmt.Errorf("%s: import %s: %w", b.unit.Addr, imp, ErrUnbound)
	}

	if v, ok := b.reg.Lookup(binding.Provider.Addr, c); ok {
		return v, nil
	}
	if !b.reg.Sealed() {
		return nil, fmt.Errorf("%s: import %s from %s: %w", b.unit.Addr, imp, binding.Provider.Addr, ErrNotReady)
	}
	return nil, fmt.Errorf("%s: import %s: %s never published it", b.unit.Addr, imp, binding.Provider.Addr)
}

// Lazy returns an accessor for the declared import (c, id). Calling it
// before the configure phase has finished returns ErrNotReady.
func (b *Binder) Lazy(c service.Capability, id string) func() (any, error) {
	return func() (any, error) {
		if !b.reg.Sealed() {
			return nil, fmt.Errorf("%s: import %s: %w", b.unit.Addr, service.Import{Capability: c, ID: id}, ErrNotReady)
		}
		return b.Import(c, id)
	}
}

// Unit returns the unit this binder serves.
func (b *Binder) Unit() *Unit { return b.unit }
