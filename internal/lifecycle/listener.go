package lifecycle

import (
	"context"
	"time"

	"github.com/vk/conflux/internal/binding"
	"github.com/vk/conflux/internal/service"
)

// Listener observes the application-wide phases. Each method is called at
// most once per Start, in declaration order of the methods.
type Listener interface {
	// Configured fires once the configure phase ends and the registry has
	// been sealed. When a configure hook failed, the registry only holds what
	// was published before the failure.
	Configured(ctx context.Context, reg *binding.Registry)
	// Started fires after every unit has been started.
	Started(ctx context.Context)
	// Stopping fires before units are stopped.
	Stopping(ctx context.Context)
	// Closing fires before units are closed.
	Closing(ctx context.Context)
}

// Transition is a single unit changing state.
type Transition struct {
	RunID string
	Unit  string
	Kind  string
	From  service.State
	To    service.State
	// Hook is the hook whose outcome caused the transition, if any.
	Hook     string
	Duration time.Duration
	Err      error
}

// TransitionListener is an optional extension of Listener receiving every
// per-unit state change.
type TransitionListener interface {
	Transition(ctx context.Context, t Transition)
}

// Funcs adapts plain functions to Listener. Nil fields are skipped.
type Funcs struct {
	OnConfigured func(ctx context.Context, reg *binding.Registry)
	OnStarted    func(ctx context.Context)
	OnStopping   func(ctx context.Context)
	OnClosing    func(ctx context.Context)
}

func (f Funcs) Configured(ctx context.Context, reg *binding.Registry) {
	if f.OnConfigured != nil {
		f.OnConfigured(ctx, reg)
	}
}

func (f Funcs) Started(ctx context.Context) {
	if f.OnStarted != nil {
		f.OnStarted(ctx)
	}
}

func (f Funcs) Stopping(ctx context.Context) {
	if f.OnStopping != nil {
		f.OnStopping(ctx)
	}
}

func (f Funcs) Closing(ctx context.Context) {
	if f.OnClosing != nil {
		f.OnClosing(ctx)
	}
}
