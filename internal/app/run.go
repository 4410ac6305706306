package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/conflux/internal/binding"
	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/dag"
	"github.com/vk/conflux/internal/lifecycle"
)

// Handle is a started application.
type Handle struct {
	orch   *lifecycle.Orchestrator
	base   *slog.Logger
	logger *slog.Logger
}

// RunID identifies this activation in logs and metrics.
func (h *Handle) RunID() string { return h.orch.RunID() }

// Registry returns the sealed capability registry.
func (h *Handle) Registry() *binding.Registry { return h.orch.Registry() }

// Plan returns the binding plan the application was started with.
func (h *Handle) Plan() *binding.Plan { return h.orch.Plan() }

// Activated returns the unit addresses in activation order.
func (h *Handle) Activated() []string { return h.orch.Activated() }

// Close stops and closes every unit in reverse activation order. It is safe
// to call more than once.
func (h *Handle) Close(ctx context.Context) error {
	return h.orch.Close(ctxlog.WithLogger(ctx, h.base))
}

// Plan builds the activation graph and binding plan without touching any
// service.
func (a *App) Plan(ctx context.Context) (*dag.Graph, *binding.Plan, error) {
	return binding.Build(ctxlog.WithLogger(ctx, a.logger), a.root, a.extras...)
}

// Start configures and starts every service in dependency order. On failure
// everything already activated has been torn down when Start returns.
func (a *App) Start(ctx context.Context) (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil, lifecycle.ErrAlreadyStarted
	}
	a.started = true

	orch := lifecycle.New(a.root,
		lifecycle.WithExtras(a.extras...),
		lifecycle.WithListeners(a.listeners...),
	)
	logger := a.logger.With("run_id", orch.RunID())

	logger.Info("🚀 Starting services...")
	if err := orch.Start(ctxlog.WithLogger(ctx, a.logger)); err != nil {
		return nil, fmt.Errorf("start failed: %w", err)
	}
	logger.Info("Services started.", "count", len(orch.Activated()))
	return &Handle{orch: orch, base: a.logger, logger: logger}, nil
}

// Run starts the application, waits for ctx to be done, then shuts it down.
func (a *App) Run(ctx context.Context) error {
	h, err := a.Start(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	h.logger.Info("🏁 Shutting down.")
	return h.Close(context.WithoutCancel(ctx))
}
