package binding

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/dag"
	"github.com/vk/conflux/internal/service"
)

const kv service.Capability = "kv.store"

type fakeService struct {
	service.Base
	caps []service.Capability
}

func (s *fakeService) Provides() []service.Capability { return s.caps }

func svc(kind, id string, caps ...service.Capability) *fakeService {
	s := &fakeService{caps: caps}
	s.Meta().Kind = kind
	s.Meta().ID = id
	return s
}

func (s *fakeService) with(children ...service.Service) *fakeService {
	s.Meta().Children = append(s.Meta().Children, children...)
	return s
}

func (s *fakeService) imports(imps ...service.Import) *fakeService {
	s.Meta().Imports = append(s.Meta().Imports, imps...)
	return s
}

func (s *fakeService) asDefault() *fakeService {
	s.Meta().Default = true
	return s
}

func build(t *testing.T, root service.Service, extras ...Extra) (*dag.Graph, *Plan, error) {
	t.Helper()
	return Build(ctxlog.Discard(context.Background()), root, extras...)
}

func addrs(units []*Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Addr
	}
	return out
}

func TestBuild_AddressesAndContainmentOrder(t *testing.T) {
	t.Parallel()

	root := svc("app", "").with(
		svc("store", "main"),
		svc("worker", ""),
		svc("worker", ""),
		svc("api", "x").with(svc("handler", "")),
	)

	g, plan, err := build(t, root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/app",
		"/app/store#main",
		"/app/worker[0]",
		"/app/worker[1]",
		"/app/api#x",
		"/app/api#x/handler[0]",
	}, addrs(plan.Units()))

	order, err := g.TopoSort()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/app/store#main",
		"/app/worker[0]",
		"/app/worker[1]",
		"/app/api#x/handler[0]",
		"/app/api#x",
		"/app",
	}, order, "sub-services activate before their parent, the root last")
}

func TestBuild_DependsOnOrdersProviderFirst(t *testing.T) {
	t.Parallel()

	root := svc("app", "").with(
		svc("web", "").imports(service.Import{Capability: kv, Mode: service.DependsOn}),
		svc("store", "", kv),
	)

	g, plan, err := build(t, root)
	require.NoError(t, err)

	order, err := g.TopoSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"/app/store[0]", "/app/web[0]", "/app"}, order)

	web := plan.Unit("/app/web[0]")
	require.NotNil(t, web)
	b := plan.Bindings(web)
	require.Len(t, b, 1)
	assert.Equal(t, "/app/store[0]", b[0].Source())
}

func TestBuild_BindOnlyAddsNoEdge(t *testing.T) {
	t.Parallel()

	root := svc("app", "").with(
		svc("web", "").imports(service.Import{Capability: kv, Mode: service.BindOnly}),
		svc("store", "", kv),
	)

	g, _, err := build(t, root)
	require.NoError(t, err)

	deps, err := g.Dependencies("/app/web[0]")
	require.NoError(t, err)
	assert.Empty(t, deps)

	order, err := g.TopoSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"/app/web[0]", "/app/store[0]", "/app"}, order, "declaration order is kept")
}

func TestBuild_ScopeChain(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		imp  service.Import
		want string
	}{
		{name: "own sub-service first", imp: service.Import{Capability: kv}, want: "/app/group[0]/consumer[0]/store#own"},
		{name: "qualified id reaches sibling", imp: service.Import{Capability: kv, ID: "inner"}, want: "/app/group[0]/store#inner"},
		{name: "qualified id walks up", imp: service.Import{Capability: kv, ID: "outer"}, want: "/app/store#outer"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			root := svc("app", "").with(
				svc("store", "outer", kv),
				svc("group", "").with(
					svc("store", "inner", kv),
					svc("consumer", "").imports(tc.imp).with(svc("store", "own", kv)),
				),
			)
			_, plan, err := build(t, root)
			require.NoError(t, err)

			b := plan.Bindings(plan.Unit("/app/group[0]/consumer[0]"))
			require.Len(t, b, 1)
			assert.Equal(t, tc.want, b[0].Source())
		})
	}
}

func TestBuild_NearestLevelWins(t *testing.T) {
	t.Parallel()

	root := svc("app", "").with(
		svc("store", "outer", kv),
		svc("group", "").with(
			svc("store", "inner", kv),
			svc("consumer", "").imports(service.Import{Capability: kv}),
		),
	)
	_, plan, err := build(t, root)
	require.NoError(t, err)

	b := plan.Bindings(plan.Unit("/app/group[0]/consumer[0]"))
	assert.Equal(t, "/app/group[0]/store#inner", b[0].Source())
}

func TestBuild_DefaultAndAmbiguity(t *testing.T) {
	t.Parallel()

	t.Run("default breaks the tie", func(t *testing.T) {
		root := svc("app", "").with(
			svc("store", "a", kv),
			svc("store", "b", kv).asDefault(),
			svc("consumer", "").imports(service.Import{Capability: kv}),
		)
		_, plan, err := build(t, root)
		require.NoError(t, err)
		assert.Equal(t, "/app/store#b", plan.Bindings(plan.Unit("/app/consumer[0]"))[0].Source())
	})

	t.Run("no default is ambiguous", func(t *testing.T) {
		root := svc("app", "").with(
			svc("store", "a", kv),
			svc("store", "b", kv),
			svc("consumer", "").imports(service.Import{Capability: kv}),
		)
		_, _, err := build(t, root)
		var aErr *AmbiguousError
		require.ErrorAs(t, err, &aErr)
		assert.Equal(t, []string{"/app/store#a", "/app/store#b"}, aErr.Candidates)
		assert.Equal(t, "/app/consumer[0]", aErr.Unit)
	})

	t.Run("two defaults are ambiguous", func(t *testing.T) {
		root := svc("app", "").with(
			svc("store", "a", kv).asDefault(),
			svc("store", "b", kv).asDefault(),
			svc("consumer", "").imports(service.Import{Capability: kv}),
		)
		_, _, err := build(t, root)
		var aErr *AmbiguousError
		assert.ErrorAs(t, err, &aErr)
	})
}

func TestBuild_MissingAndOptional(t *testing.T) {
	t.Parallel()

	root := svc("app", "").with(svc("consumer", "").imports(service.Import{Capability: kv}))
	_, _, err := build(t, root)
	var mErr *MissingError
	require.ErrorAs(t, err, &mErr)
	assert.Contains(t, err.Error(), "no provider for import kv.store")

	root = svc("app", "").with(svc("consumer", "").imports(service.Import{Capability: kv, Optional: true}))
	_, plan, err := build(t, root)
	require.NoError(t, err)
	require.Len(t, plan.Hints(), 1)
	assert.Equal(t, "/app/consumer[0]", plan.Hints()[0].Unit)
	assert.Equal(t, "unbound", plan.Bindings(plan.Unit("/app/consumer[0]"))[0].Source())
}

func TestBuild_Extras(t *testing.T) {
	t.Parallel()

	root := svc("app", "").with(svc("consumer", "").imports(
		service.Import{Capability: "clock"},
		service.Import{Capability: "logger", ID: "audit"},
	))
	_, plan, err := build(t, root,
		Extra{Capability: "clock", Value: "wall"},
		Extra{Capability: "logger", ID: "main", Value: 1},
		Extra{Capability: "logger", ID: "audit", Value: 2},
	)
	require.NoError(t, err)

	b := plan.Bindings(plan.Unit("/app/consumer[0]"))
	require.Len(t, b, 2)
	assert.Equal(t, "wall", b[0].Extra.Value)
	assert.Equal(t, 2, b[1].Extra.Value)
}

func TestBuild_Target(t *testing.T) {
	t.Parallel()

	a := svc("store", "a", kv)
	b := svc("store", "b", kv)
	consumer := svc("consumer", "").imports(service.Import{Capability: kv, ID: "b", Mode: service.DependsOn, Target: b})
	g, plan, err := build(t, svc("app", "").with(consumer, a, b))
	require.NoError(t, err)
	assert.Equal(t, "/app/store#b", plan.Bindings(plan.UnitOf(consumer))[0].Source())

	deps, err := g.Dependencies("/app/consumer[0]")
	require.NoError(t, err)
	assert.Equal(t, []string{"/app/store#b"}, deps)

	stray := svc("store", "stray", kv)
	consumer = svc("consumer", "").imports(service.Import{Capability: kv, Target: stray})
	_, _, err = build(t, svc("app", "").with(consumer))
	assert.ErrorContains(t, err, "target is not part of the application")

	notProvider := svc("other", "")
	consumer = svc("consumer", "").imports(service.Import{Capability: kv, Target: notProvider})
	_, _, err = build(t, svc("app", "").with(consumer, notProvider))
	assert.ErrorContains(t, err, "does not provide it")
}

func TestBuild_OrderingOnlyTarget(t *testing.T) {
	t.Parallel()

	plain := svc("other", "x")
	consumer := svc("consumer", "").imports(service.Import{ID: "x", Mode: service.DependsOn, Target: plain})
	g, plan, err := build(t, svc("app", "").with(consumer, plain))
	require.NoError(t, err)
	assert.Equal(t, "/app/other#x", plan.Bindings(plan.UnitOf(consumer))[0].Source())

	order, err := g.TopoSort()
	require.NoError(t, err)
	assert.Less(t, slices.Index(order, "/app/other#x"), slices.Index(order, "/app/consumer[0]"))
}

func TestBuild_StructuralErrors(t *testing.T) {
	t.Parallel()

	_, _, err := build(t, svc("app", "").with(svc("store", "x"), svc("store", "x")))
	var dErr *DuplicateError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "x", dErr.ID)

	_, _, err = build(t, svc("app", "").with(svc("store", "x"), svc("cache", "x")))
	assert.NoError(t, err, "the same id under different kinds is allowed")

	_, _, err = build(t, svc("app", "").with(svc("", "")))
	assert.ErrorContains(t, err, "has no kind")

	shared := svc("store", "")
	_, _, err = build(t, svc("app", "").with(shared, shared))
	assert.ErrorContains(t, err, "appears twice")
}

func TestBuild_AddressCollision(t *testing.T) {
	t.Parallel()

	root := svc("app", "").with(
		svc("svc", "x").with(svc("b", "")),
		svc("svc", "x/b[0]"),
	)
	_, _, err := build(t, root)
	var aErr *AddressError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, "/app/svc#x/b[0]", aErr.Addr)
	assert.Equal(t, "x/b[0]", aErr.ID)
	assert.Equal(t, "b", aErr.Other)
}

func TestBuild_Cycle(t *testing.T) {
	t.Parallel()

	root := svc("app", "").with(
		svc("a", "", "cap.a").imports(service.Import{Capability: "cap.b", Mode: service.DependsOn}),
		svc("b", "", "cap.b").imports(service.Import{Capability: "cap.a", Mode: service.DependsOn}),
	)
	_, _, err := build(t, root)
	require.ErrorIs(t, err, dag.ErrCycle)
	assert.ErrorContains(t, err, "/app/a[0] -> /app/b[0] -> /app/a[0]")
}

func TestBinder(t *testing.T) {
	t.Parallel()

	root := svc("app", "").with(
		svc("store", "", kv),
		svc("consumer", "").imports(
			service.Import{Capability: kv, Mode: service.BindOnly},
			service.Import{Capability: "metrics", Optional: true},
		),
	)
	_, plan, err := build(t, root)
	require.NoError(t, err)

	reg := NewRegistry()
	store := plan.Binder(plan.Unit("/app/store[0]"), reg)
	consumer := plan.Binder(plan.Unit("/app/consumer[0]"), reg)

	lazy := consumer.Lazy(kv, "")
	_, err = lazy()
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = consumer.Import(kv, "")
	assert.ErrorIs(t, err, ErrNotReady, "provider has not published yet")

	assert.ErrorContains(t, store.Publish("other", 1), "not among the capabilities")
	require.NoError(t, store.Publish(kv, "the-store"))
	assert.ErrorContains(t, store.Publish(kv, "again"), "published twice")

	v, err := consumer.Import(kv, "")
	require.NoError(t, err)
	assert.Equal(t, "the-store", v)

	_, err = consumer.Import(kv, "nope")
	assert.ErrorIs(t, err, ErrUndeclared)
	_, err = store.Import(kv, "")
	assert.ErrorIs(t, err, ErrUndeclared, "providers cannot read capabilities they did not import")

	_, err = consumer.Import("metrics", "")
	assert.ErrorIs(t, err, ErrUnbound)

	reg.Seal()
	v, err = lazy()
	require.NoError(t, err)
	assert.Equal(t, "the-store", v)
	assert.Error(t, store.Publish(kv, "late"))

	entries := reg.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{Unit: "/app/store[0]", Capability: kv, Value: "the-store"}, entries[0])

	got, err := service.Get[string](consumer, kv, "")
	require.NoError(t, err)
	assert.Equal(t, "the-store", got)
}
