// Package greeter is a small demo service. On start it composes a greeting,
// logs it and records it in a key/value store when one is available.
package greeter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vk/conflux/internal/binding"
	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/materialize"
	"github.com/vk/conflux/internal/service"
	"github.com/vk/conflux/modules/memstore"
)

// Module registers the greeter kind. Out receives the greetings; it defaults
// to standard output.
type Module struct {
	Out io.Writer
}

func (m *Module) Register(r *materialize.Registry) {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	r.RegisterKind("greeter", func() service.Service { return &Greeter{out: out} })
}

// Greeter is the `greeter` service kind. The store is either referenced
// directly by id (`store="main"`) or imported through a kv.store import.
type Greeter struct {
	service.Base
	Name     string      `cfg:"name,required"`
	Greeting string      `cfg:"greeting" default:"Hello"`
	Store    memstore.KV `cfg:"store,ref"`

	out    io.Writer
	lookup func() (any, error)
}

// Configure remembers how to reach an imported store. The import may be
// BindOnly, so it is only read once the application starts.
func (g *Greeter) Configure(_ context.Context, b service.Binder) error {
	if g.Store == nil {
		g.lookup = b.Lazy(memstore.Capability, "")
	}
	return nil
}

func (g *Greeter) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	store, err := g.store()
	if err != nil {
		return err
	}

	msg := g.Message()
	if _, err := fmt.Fprintln(g.out, msg); err != nil {
		return fmt.Errorf("writing greeting: %w", err)
	}
	logger.Info("👋 Greeting sent.", "name", g.Name)

	if store != nil {
		store.Set("greeting."+g.Name, msg)
	}
	return nil
}

// Message renders the greeting.
func (g *Greeter) Message() string {
	return fmt.Sprintf("%s, %s!", g.Greeting, g.Name)
}

func (g *Greeter) store() (memstore.KV, error) {
	if g.Store != nil || g.lookup == nil {
		return g.Store, nil
	}
	v, err := g.lookup()
	switch {
	case errors.Is(err, binding.ErrUndeclared), errors.Is(err, binding.ErrUnbound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	kv, ok := v.(memstore.KV)
	if !ok {
		return nil, fmt.Errorf("import %s: value of type %T is not a key/value store", memstore.Capability, v)
	}
	return kv, nil
}
