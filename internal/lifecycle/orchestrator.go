// Package lifecycle activates a service forest in dependency order and tears
// it down in reverse.
//
// Start configures every unit in a stable topological order, seals the
// capability registry, then starts every unit in the same order. The first
// failing hook stops the sequence: everything already activated is stopped
// and closed in reverse before Start returns. Close performs the same
// teardown for a fully started application and is safe to call repeatedly.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/vk/conflux/internal/binding"
	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/dag"
	"github.com/vk/conflux/internal/service"
)

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New("orchestrator already started")

// HookError reports a failing lifecycle hook of one unit.
type HookError struct {
	Unit string
	Hook string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Unit, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Orchestrator drives one service forest through its lifecycle.
type Orchestrator struct {
	root      service.Service
	extras    []binding.Extra
	listeners []Listener
	runID     string

	mu        sync.Mutex
	started   bool
	closed    bool
	graph     *dag.Graph
	plan      *binding.Plan
	registry  *binding.Registry
	states    map[*binding.Unit]service.State
	activated []*binding.Unit

	// at-most-once guards for listener phases
	firedStopping bool
	firedClosing  bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithExtras supplies capabilities from outside the forest.
func WithExtras(extras ...binding.Extra) Option {
	return func(o *Orchestrator) { o.extras = append(o.extras, extras...) }
}

// WithListeners registers phase listeners, notified in registration order.
func WithListeners(ls ...Listener) Option {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, ls...) }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// New returns an orchestrator for the forest rooted at root.
func New(root service.Service, opts ...Option) *Orchestrator {
	o := &Orchestrator{root: root}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

// RunID identifies this activation in logs and metrics.
func (o *Orchestrator) RunID() string { return o.runID }

// Plan returns the binding plan, or nil before Start.
func (o *Orchestrator) Plan() *binding.Plan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plan
}

// Graph returns the activation graph, or nil before Start.
func (o *Orchestrator) Graph() *dag.Graph {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.graph
}

// Registry returns the capability registry, or nil before Start.
func (o *Orchestrator) Registry() *binding.Registry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.registry
}

// Activated returns the addresses of the units that were activated, in
// activation order. It is empty after Close.
func (o *Orchestrator) Activated() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.activated))
	for i, u := range o.activated {
		out[i] = u.Addr
	}
	return out
}

// State returns the current state of the unit at addr.
func (o *Orchestrator) State(addr string) (service.State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.plan == nil {
		return service.Created, false
	}
	u := o.plan.Unit(addr)
	if u == nil {
		return service.Created, false
	}
	return o.states[u], true
}

// Start builds the plan and activates every unit. When it fails, everything
// that was activated has already been torn down, and the returned error
// combines the failure with any teardown errors, the failure first.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true

	ctx, logger := ctxlog.With(ctx, "run_id", o.runID)
	logger.Info("Lifecycle: starting.")

	graph, plan, err := binding.Build(ctx, o.root, o.extras...)
	if err != nil {
		o.closed = true
		return err
	}
	order, err := graph.TopoSort()
	if err != nil {
		o.closed = true
		return err
	}

	o.graph, o.plan = graph, plan
	o.registry = binding.NewRegistry()
	o.states = make(map[*binding.Unit]service.State, len(order))
	units := make([]*binding.Unit, len(order))
	for i, addr := range order {
		units[i] = plan.Unit(addr)
		o.states[units[i]] = service.Created
	}
	logger.Debug("Lifecycle: activation order computed.", "order", order)

	for _, u := range units {
		if err := o.configure(ctx, u); err != nil {
			// Listeners still see the registry holding what was published
			// before the failure.
			o.configured(ctx)
			return o.abort(ctx, err)
		}
	}
	o.configured(ctx)
	logger.Debug("Lifecycle: all units configured.", "count", len(units))

	for _, u := range units {
		if err := o.start(ctx, u); err != nil {
			return o.abort(ctx, err)
		}
	}
	for _, l := range o.listeners {
		l.Started(ctx)
	}
	logger.Info("Lifecycle: started.", "units", len(units))
	return nil
}

// Close stops and closes every activated unit in reverse activation order.
// Errors from all hooks are collected; none stops the teardown. Calling Close
// again, or on an orchestrator that was never started, does nothing.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started || o.closed {
		return nil
	}
	ctx, logger := ctxlog.With(ctx, "run_id", o.runID)
	err := o.teardown(ctx)
	if err != nil {
		logger.Error("Lifecycle: closed with errors.", "error", err)
	} else {
		logger.Info("Lifecycle: closed.")
	}
	return err
}

func (o *Orchestrator) configured(ctx context.Context) {
	o.registry.Seal()
	for _, l := range o.listeners {
		l.Configured(ctx, o.registry)
	}
}

func (o *Orchestrator) abort(ctx context.Context, cause error) error {
	logger := ctxlog.FromContext(ctx)
	logger.Error("Lifecycle: start failed, tearing down.", "error", cause)
	return multierr.Combine(cause, o.teardown(context.WithoutCancel(ctx)))
}

func (o *Orchestrator) configure(ctx context.Context, u *binding.Unit) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("configure %s: %w", u.Addr, err)
	}
	ctx, logger := ctxlog.With(ctx, "unit", u.Addr)

	begin := time.Now()
	var err error
	if c, ok := u.Service.(service.Configurer); ok {
		err = c.Configure(ctx, o.plan.Binder(u, o.registry))
	}
	if err == nil {
		for _, c := range u.Provides() {
			if _, ok := o.registry.Lookup(u.Addr, c); !ok {
				err = fmt.Errorf("capability %s was declared but not published", c)
				break
			}
		}
	}
	elapsed := time.Since(begin)

	// A unit whose Configure ran is activated either way and must be closed.
	o.activated = append(o.activated, u)
	if err != nil {
		hookErr := &HookError{Unit: u.Addr, Hook: "configure", Err: err}
		o.transition(ctx, u, service.Failed, "configure", elapsed, hookErr)
		return hookErr
	}
	o.transition(ctx, u, service.Configured, "configure", elapsed, nil)
	logger.Debug("Lifecycle: unit configured.", "duration", elapsed)
	return nil
}

func (o *Orchestrator) start(ctx context.Context, u *binding.Unit) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("start %s: %w", u.Addr, err)
	}
	ctx, logger := ctxlog.With(ctx, "unit", u.Addr)

	begin := time.Now()
	var err error
	if s, ok := u.Service.(service.Starter); ok {
		err = s.Start(ctx)
	}
	elapsed := time.Since(begin)

	if err != nil {
		hookErr := &HookError{Unit: u.Addr, Hook: "start", Err: err}
		o.transition(ctx, u, service.Failed, "start", elapsed, hookErr)
		return hookErr
	}
	o.transition(ctx, u, service.Started, "start", elapsed, nil)
	logger.Debug("Lifecycle: unit started.", "duration", elapsed)
	return nil
}

// teardown runs the stop and close phases. It is called with o.mu held.
func (o *Orchestrator) teardown(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	o.closed = true

	if !o.firedStopping {
		o.firedStopping = true
		for _, l := range o.listeners {
			l.Stopping(ctx)
		}
	}

	var errs error
	reversed := slices.Clone(o.activated)
	slices.Reverse(reversed)

	for _, u := range reversed {
		if o.states[u] != service.Started {
			continue
		}
		uctx := ctxlog.WithLogger(ctx, logger.With("unit", u.Addr))
		o.transition(uctx, u, service.Stopping, "", 0, nil)

		begin := time.Now()
		var err error
		if s, ok := u.Service.(service.Stopper); ok {
			err = s.Stop(uctx)
		}
		elapsed := time.Since(begin)

		if err != nil {
			hookErr := &HookError{Unit: u.Addr, Hook: "stop", Err: err}
			logger.Error("Lifecycle: stop failed.", "unit", u.Addr, "error", err)
			o.transition(uctx, u, service.Failed, "stop", elapsed, hookErr)
			errs = multierr.Append(errs, hookErr)
			continue
		}
		o.transition(uctx, u, service.Stopped, "stop", elapsed, nil)
	}

	if !o.firedClosing {
		o.firedClosing = true
		for _, l := range o.listeners {
			l.Closing(ctx)
		}
	}

	for _, u := range reversed {
		if o.states[u] == service.Closed {
			continue
		}
		uctx := ctxlog.WithLogger(ctx, logger.With("unit", u.Addr))

		begin := time.Now()
		var err error
		if c, ok := u.Service.(io.Closer); ok {
			err = c.Close()
		}
		elapsed := time.Since(begin)

		if err != nil {
			hookErr := &HookError{Unit: u.Addr, Hook: "close", Err: err}
			logger.Error("Lifecycle: close failed.", "unit", u.Addr, "error", err)
			errs = multierr.Append(errs, hookErr)
			o.transition(uctx, u, service.Closed, "close", elapsed, hookErr)
			continue
		}
		o.transition(uctx, u, service.Closed, "close", elapsed, nil)
	}

	o.activated = nil
	return errs
}

// transition records a state change of u and notifies transition listeners.
func (o *Orchestrator) transition(ctx context.Context, u *binding.Unit, to service.State, hook string, d time.Duration, err error) {
	from := o.states[u]
	if !from.ValidTransition(to) {
		panic(fmt.Sprintf("lifecycle: invalid transition of %s from %s to %s", u.Addr, from, to))
	}
	o.states[u] = to

	t := Transition{
		RunID:    o.runID,
		Unit:     u.Addr,
		Kind:     u.Kind(),
		From:     from,
		To:       to,
		Hook:     hook,
		Duration: d,
		Err:      err,
	}
	for _, l := range o.listeners {
		if tl, ok := l.(TransitionListener); ok {
			tl.Transition(ctx, t)
		}
	}
}
