// Package service defines the contract between the lifecycle orchestrator
// and the units it manages.
//
// A unit is anything implementing Service. Its Meta describes where it sits
// in the configuration (kind, identifier, sub-services) and which
// capabilities it needs from others. Every lifecycle hook is optional: a unit
// takes part in a phase by implementing Provider, Configurer, Starter,
// Stopper or io.Closer.
package service

import (
	"context"
	"fmt"
)

// Capability names something a unit can publish for others to import, for
// example "kv.store" or "http.handler".
type Capability string

// Mode tells the graph builder whether an import orders activation.
type Mode int

const (
	// BindOnly imports are wired lazily and impose no ordering. The value is
	// available once every unit has been configured.
	BindOnly Mode = iota
	// DependsOn imports make the producer activate before the importer.
	DependsOn
)

func (m Mode) String() string {
	switch m {
	case BindOnly:
		return "bind"
	case DependsOn:
		return "depends"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Import declares a capability a unit needs. ID selects a specific provider;
// empty ID means the unique (or default) provider in scope. Target, when set,
// names the producer explicitly and skips scope resolution; with an empty
// Capability such an import only orders the target first.
type Import struct {
	Capability Capability
	ID         string
	Mode       Mode
	Optional   bool
	Target     Service
}

func (i Import) String() string {
	c := string(i.Capability)
	if c == "" {
		c = "ref"
	}
	if i.ID == "" {
		return c
	}
	return c + "#" + i.ID
}

// Meta is the structural description of a unit.
type Meta struct {
	Kind     string
	ID       string
	Default  bool
	Children []Service
	Imports  []Import
	// Path is the configuration path the unit was materialized from.
	Path string
}

// Service is the only method every unit must have.
type Service interface {
	Meta() *Meta
}

// Provider lists the capabilities a unit publishes during Configure.
type Provider interface {
	Provides() []Capability
}

// Configurer units receive their imports and publish their capabilities.
type Configurer interface {
	Configure(ctx context.Context, b Binder) error
}

// Starter units are started after every unit has been configured.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper units are stopped in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Binder is handed to a unit while it is configured. It resolves the unit's
// declared imports and records what the unit publishes.
type Binder interface {
	// Publish makes value available under a capability the unit provides.
	Publish(c Capability, value any) error
	// Import returns the value bound to a declared import. Imports declared
	// BindOnly may not be available yet; use Lazy for those.
	Import(c Capability, id string) (any, error)
	// Lazy returns an accessor for a declared import that is valid once the
	// configure phase is over.
	Lazy(c Capability, id string) func() (any, error)
}

// Get is a typed wrapper around Binder.Import.
func Get[T any](b Binder, c Capability, id string) (T, error) {
	var zero T
	v, err := b.Import(c, id)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("import %s: value of type %T is not %T", Import{Capability: c, ID: id}, v, zero)
	}
	return t, nil
}

// Base can be embedded to satisfy Service.
type Base struct {
	meta Meta
}

func (b *Base) Meta() *Meta { return &b.meta }

// Walk visits s and its sub-services depth-first, pre-order.
func Walk(s Service, fn func(Service) error) error {
	if err := fn(s); err != nil {
		return err
	}
	for _, c := range s.Meta().Children {
		if err := Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}
