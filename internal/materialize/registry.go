package materialize

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/vk/conflux/internal/service"
	"github.com/vk/conflux/internal/tree"
)

// Module is the interface that all service modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Materializer builds the service forest for an effective configuration tree.
type Materializer interface {
	Materialize(ctx context.Context, root *tree.Node) (service.Service, error)
}

// Factory returns a fresh, zero-configured instance of a kind. The instance
// must be a pointer to a struct.
type Factory func() service.Service

// Kind is a registered service kind.
type Kind struct {
	Name   string
	New    Factory
	typ    reflect.Type
	fields []fieldSpec
	err    error
}

// Registry holds the service kinds known to a single application instance.
type Registry struct {
	kinds map[string]*Kind
	order []string
}

var _ Materializer = (*Registry)(nil)

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{kinds: make(map[string]*Kind)}
}

// RegisterKind registers the factory for a service kind. Registering the
// same kind twice is a programming error and panics. Problems with the
// struct tags are reported by Validate.
func (r *Registry) RegisterKind(name string, f Factory) {
	if _, exists := r.kinds[name]; exists {
		panic(fmt.Sprintf("service kind '%s' already registered", name))
	}

	k := &Kind{Name: name, New: f}
	k.typ, k.fields, k.err = inspect(f)
	r.kinds[name] = k
	r.order = append(r.order, name)
}

// RegisterModules lets each module register its kinds.
func (r *Registry) RegisterModules(mods ...Module) {
	for _, m := range mods {
		m.Register(r)
	}
}

// Kind returns the registered kind with the given name.
func (r *Registry) Kind(name string) (*Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// Kinds returns the registered kind names in registration order.
func (r *Registry) Kinds() []string {
	return slices.Clone(r.order)
}

// inspect instantiates the factory once to learn the struct layout.
func inspect(f Factory) (reflect.Type, []fieldSpec, error) {
	sample := f()
	if sample == nil {
		return nil, nil, fmt.Errorf("factory returned nil")
	}
	t := reflect.TypeOf(sample)
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return t, nil, fmt.Errorf("factory must return a pointer to a struct, got %s", t)
	}
	fields, err := parseFields(t.Elem())
	return t, fields, err
}
