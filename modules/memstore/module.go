// Package memstore provides an in-memory key/value store service. It
// publishes itself under the kv.store capability so that sibling services
// can import it.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/materialize"
	"github.com/vk/conflux/internal/service"
)

// Capability is the capability a Store publishes.
const Capability service.Capability = "kv.store"

// KV is the view of a Store that importers rely on.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Keys() []string
}

// Entry seeds one key of the store.
type Entry struct {
	service.Base
	Key   string `cfg:"key,required"`
	Value string `cfg:"value"`
}

// Store is the `memstore` service kind.
type Store struct {
	service.Base
	Entries []*Entry `cfg:"entry,elem"`

	mu   sync.RWMutex
	data map[string]string
}

var (
	_ KV                 = (*Store)(nil)
	_ service.Provider   = (*Store)(nil)
	_ service.Configurer = (*Store)(nil)
)

// Module registers the memstore kinds.
type Module struct{}

func (m *Module) Register(r *materialize.Registry) {
	r.RegisterKind("memstore", func() service.Service { return &Store{} })
	r.RegisterKind("entry", func() service.Service { return &Entry{} })
}

func (s *Store) Provides() []service.Capability { return []service.Capability{Capability} }

// Configure loads the seed entries and publishes the store.
func (s *Store) Configure(ctx context.Context, b service.Binder) error {
	s.mu.Lock()
	s.data = make(map[string]string, len(s.Entries))
	for _, e := range s.Entries {
		s.data[e.Key] = e.Value
	}
	s.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Store seeded.", "entries", len(s.Entries))
	return b.Publish(Capability, KV(s))
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[key] = value
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Close drops the stored data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
