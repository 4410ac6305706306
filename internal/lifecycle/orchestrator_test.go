package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/vk/conflux/internal/binding"
	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/service"
)

const kv service.Capability = "kv.store"

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) listener() Listener {
	return Funcs{
		OnConfigured: func(context.Context, *binding.Registry) { r.add("[configured]") },
		OnStarted:    func(context.Context) { r.add("[started]") },
		OnStopping:   func(context.Context) { r.add("[stopping]") },
		OnClosing:    func(context.Context) { r.add("[closing]") },
	}
}

// probe is a unit implementing every hook and recording each call.
type probe struct {
	service.Base
	rec       *recorder
	caps      []service.Capability
	noPublish bool
	fail      map[string]error
	configure func(ctx context.Context, b service.Binder) error
}

func newProbe(rec *recorder, kind string, caps ...service.Capability) *probe {
	p := &probe{rec: rec, caps: caps, fail: map[string]error{}}
	p.Meta().Kind = kind
	return p
}

func (p *probe) failing(hook string, err error) *probe {
	p.fail[hook] = err
	return p
}

func (p *probe) with(children ...service.Service) *probe {
	p.Meta().Children = append(p.Meta().Children, children...)
	return p
}

func (p *probe) imports(imps ...service.Import) *probe {
	p.Meta().Imports = append(p.Meta().Imports, imps...)
	return p
}

func (p *probe) hook(name string) error {
	p.rec.add(name + " " + p.Meta().Kind)
	return p.fail[name]
}

func (p *probe) Provides() []service.Capability { return p.caps }

func (p *probe) Configure(ctx context.Context, b service.Binder) error {
	if err := p.hook("configure"); err != nil {
		return err
	}
	if !p.noPublish {
		for _, c := range p.caps {
			if err := b.Publish(c, p.Meta().Kind+"-value"); err != nil {
				return err
			}
		}
	}
	if p.configure != nil {
		return p.configure(ctx, b)
	}
	return nil
}

func (p *probe) Start(context.Context) error { return p.hook("start") }
func (p *probe) Stop(context.Context) error  { return p.hook("stop") }
func (p *probe) Close() error                { return p.hook("close") }

func testCtx() context.Context {
	return ctxlog.Discard(context.Background())
}

// forest builds app{ web -> store } where web depends on store's capability.
func forest(rec *recorder) (root, web, store *probe) {
	store = newProbe(rec, "store", kv)
	web = newProbe(rec, "web").imports(service.Import{Capability: kv, Mode: service.DependsOn})
	root = newProbe(rec, "app").with(web, store)
	return root, web, store
}

func TestOrchestrator_DependencyOrdering(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	root, _, _ := forest(rec)

	o := New(root, WithListeners(rec.listener()))
	require.NoError(t, o.Start(testCtx()))
	assert.Equal(t, []string{"/app/store[0]", "/app/web[0]", "/app"}, o.Activated())

	require.NoError(t, o.Close(testCtx()))
	assert.Equal(t, []string{
		"configure store", "configure web", "configure app",
		"[configured]",
		"start store", "start web", "start app",
		"[started]",
		"[stopping]",
		"stop app", "stop web", "stop store",
		"[closing]",
		"close app", "close web", "close store",
	}, rec.list())
	assert.Empty(t, o.Activated())
}

func TestOrchestrator_TeardownOnStartFailure(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	root, web, store := forest(rec)
	boom := errors.New("port in use")
	web.failing("start", boom)
	store.failing("close", errors.New("flush failed"))

	o := New(root, WithListeners(rec.listener()))
	err := o.Start(testCtx())
	require.Error(t, err)

	assert.Equal(t, []string{
		"configure store", "configure web", "configure app",
		"[configured]",
		"start store", "start web",
		"[stopping]",
		"stop store",
		"[closing]",
		"close app", "close web", "close store",
	}, rec.list())

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	var first *HookError
	require.ErrorAs(t, errs[0], &first, "the startup error comes first")
	assert.Equal(t, "/app/web[0]", first.Unit)
	assert.Equal(t, "start", first.Hook)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, errs[1], "flush failed")

	state, ok := o.State("/app/web[0]")
	require.True(t, ok)
	assert.Equal(t, service.Closed, state)

	require.NoError(t, o.Close(testCtx()), "teardown already happened")
	assert.Len(t, rec.list(), 12)
}

func TestOrchestrator_ConfigureFailure(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	root, web, _ := forest(rec)
	web.failing("configure", errors.New("bad config"))

	var seen *binding.Registry
	capture := Funcs{OnConfigured: func(_ context.Context, reg *binding.Registry) { seen = reg }}
	o := New(root, WithListeners(rec.listener(), capture))
	err := o.Start(testCtx())
	require.Error(t, err)

	require.NotNil(t, seen, "configured fires even when a configure hook fails")
	assert.True(t, seen.Sealed())
	v, ok := seen.Lookup("/app/store[0]", kv)
	require.True(t, ok)
	assert.Equal(t, "store-value", v)

	assert.Equal(t, []string{
		"configure store", "configure web",
		"[configured]",
		"[stopping]",
		"[closing]",
		"close web", "close store",
	}, rec.list())
	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "configure", hookErr.Hook)
}

func TestOrchestrator_UnpublishedCapability(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	root, _, store := forest(rec)
	store.noPublish = true

	err := New(root).Start(testCtx())
	require.Error(t, err)
	assert.ErrorContains(t, err, "capability kv.store was declared but not published")
}

func TestOrchestrator_GraphFailureTouchesNothing(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	lonely := newProbe(rec, "web").imports(service.Import{Capability: kv})
	root := newProbe(rec, "app").with(lonely)

	o := New(root, WithListeners(rec.listener()))
	err := o.Start(testCtx())
	var mErr *binding.MissingError
	require.ErrorAs(t, err, &mErr)
	assert.Empty(t, rec.list(), "no hook and no listener may run")
	require.NoError(t, o.Close(testCtx()))
	assert.Empty(t, rec.list())
}

func TestOrchestrator_CloseCollectsAllErrors(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	root, web, store := forest(rec)
	web.failing("stop", errors.New("stuck"))
	store.failing("close", errors.New("flush failed"))

	o := New(root)
	require.NoError(t, o.Start(testCtx()))
	err := o.Close(testCtx())

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.ErrorContains(t, errs[0], "/app/web[0]: stop: stuck")
	assert.ErrorContains(t, errs[1], "/app/store[0]: close: flush failed")

	state, _ := o.State("/app/web[0]")
	assert.Equal(t, service.Closed, state, "failed units are still closed")
	assert.Contains(t, rec.list(), "close web")
}

func TestOrchestrator_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	root, _, _ := forest(rec)

	o := New(root, WithListeners(rec.listener()))
	require.NoError(t, o.Start(testCtx()))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.Close(testCtx()))
		}()
	}
	wg.Wait()

	count := 0
	for _, e := range rec.list() {
		if e == "[closing]" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.ErrorIs(t, o.Start(testCtx()), ErrAlreadyStarted)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	root, _, _ := forest(rec)

	ctx, cancel := context.WithCancel(testCtx())
	cancel()

	err := New(root).Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.list())
}

func TestOrchestrator_BindOnlyIsLazy(t *testing.T) {
	t.Parallel()
	rec := &recorder{}

	var lazy func() (any, error)
	var early error
	consumer := newProbe(rec, "consumer").imports(service.Import{Capability: kv, Mode: service.BindOnly})
	consumer.configure = func(_ context.Context, b service.Binder) error {
		_, early = b.Import(kv, "")
		lazy = b.Lazy(kv, "")
		return nil
	}
	root := newProbe(rec, "app").with(consumer, newProbe(rec, "store", kv))

	o := New(root)
	require.NoError(t, o.Start(testCtx()))
	t.Cleanup(func() { _ = o.Close(testCtx()) })

	assert.ErrorIs(t, early, binding.ErrNotReady, "consumer is configured before the store")
	v, err := lazy()
	require.NoError(t, err)
	assert.Equal(t, "store-value", v)

	entries := o.Registry().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "/app/store[0]", entries[0].Unit)
}

type transitions struct {
	Funcs
	mu  sync.Mutex
	got map[string][]service.State
}

func (t *transitions) Transition(_ context.Context, tr Transition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.got[tr.Unit]) == 0 {
		t.got[tr.Unit] = append(t.got[tr.Unit], tr.From)
	}
	t.got[tr.Unit] = append(t.got[tr.Unit], tr.To)
}

func TestOrchestrator_TransitionListener(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	root, web, _ := forest(rec)
	web.failing("start", errors.New("nope"))

	tl := &transitions{got: map[string][]service.State{}}
	o := New(root, WithListeners(tl), WithRunID("run-1"))
	require.Error(t, o.Start(testCtx()))
	assert.Equal(t, "run-1", o.RunID())

	assert.Equal(t, []service.State{
		service.Created, service.Configured, service.Started, service.Stopping, service.Stopped, service.Closed,
	}, tl.got["/app/store[0]"])
	assert.Equal(t, []service.State{
		service.Created, service.Configured, service.Failed, service.Closed,
	}, tl.got["/app/web[0]"])
	assert.Equal(t, []service.State{
		service.Created, service.Configured, service.Closed,
	}, tl.got["/app"])
}
