package task

import (
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
)

// SharedData is a concurrent key/value scratch space shared between tasks.
type SharedData struct {
	m *xsync.MapOf[string, any]
}

// NewSharedData creates an empty scratch space.
func NewSharedData() *SharedData {
	return &SharedData{m: xsync.NewMapOf[string, any]()}
}

// Load returns the value stored under key.
func (s *SharedData) Load(key string) (any, bool) { return s.m.Load(key) }

// Store sets the value of key.
func (s *SharedData) Store(key string, value any) { s.m.Store(key, value) }

// LoadOrStore returns the existing value of key, or stores and returns value.
func (s *SharedData) LoadOrStore(key string, value any) (any, bool) {
	return s.m.LoadOrStore(key, value)
}

// Delete removes key.
func (s *SharedData) Delete(key string) { s.m.Delete(key) }

// Len returns the number of keys.
func (s *SharedData) Len() int { return s.m.Size() }

// Keys returns all keys, sorted.
func (s *SharedData) Keys() []string {
	keys := make([]string, 0, s.m.Size())
	s.m.Range(func(k string, _ any) bool {
		keys = append(keys, k)
		return true
	})
	slices.Sort(keys)

	return keys
}
