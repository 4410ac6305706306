package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unit struct {
	Base
}

type mapBinder map[string]any

func (m mapBinder) Publish(Capability, any) error { return nil }

func (m mapBinder) Import(c Capability, id string) (any, error) {
	v, ok := m[Import{Capability: c, ID: id}.String()]
	if !ok {
		return nil, errors.New("not bound")
	}
	return v, nil
}

func (m mapBinder) Lazy(c Capability, id string) func() (any, error) {
	return func() (any, error) { return m.Import(c, id) }
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	assert.True(t, Created.ValidTransition(Configured))
	assert.True(t, Configured.ValidTransition(Closed))
	assert.True(t, Started.ValidTransition(Failed))
	assert.True(t, Failed.ValidTransition(Closed))
	assert.False(t, Created.ValidTransition(Started))
	assert.False(t, Stopped.ValidTransition(Started), "units are never restarted")
	assert.Empty(t, Closed.ValidTransitions())
	assert.False(t, Created.Activated())
	assert.True(t, Failed.Activated())
	assert.Equal(t, "STOPPING", Stopping.String())
	assert.Panics(t, func() { State(99).ValidTransitions() })
}

func TestGet(t *testing.T) {
	t.Parallel()

	b := mapBinder{"kv.store#main": 42, "name": "x"}

	n, err := Get[int](b, "kv.store", "main")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Get[int](b, "name", "")
	assert.ErrorContains(t, err, "is not int")

	_, err = Get[int](b, "missing", "")
	assert.Error(t, err)
}

func TestWalk(t *testing.T) {
	t.Parallel()

	leaf1, leaf2, mid, root := &unit{}, &unit{}, &unit{}, &unit{}
	leaf1.Meta().Kind, leaf2.Meta().Kind, mid.Meta().Kind, root.Meta().Kind = "l1", "l2", "mid", "root"
	mid.Meta().Children = []Service{leaf1}
	root.Meta().Children = []Service{mid, leaf2}

	var kinds []string
	require.NoError(t, Walk(root, func(s Service) error {
		kinds = append(kinds, s.Meta().Kind)
		return nil
	}))
	assert.Equal(t, []string{"root", "mid", "l1", "l2"}, kinds)

	stop := errors.New("stop")
	err := Walk(root, func(s Service) error {
		if s.Meta().Kind == "l1" {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "bind", BindOnly.String())
	assert.Equal(t, "kv.store#a", Import{Capability: "kv.store", ID: "a"}.String())
}
