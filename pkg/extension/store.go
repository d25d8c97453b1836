package extension

import "sync"

// Store is the shared key/value surface backing cross-tab state sync.
// Browser embedders back it with extension storage; tests and CLI tools
// use the in-memory implementation.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)

	// Watch registers an observer for changes to any key. Observers
	// fire after the write is visible.
	Watch(fn func(key, value string))
}

// MemoryStore is an in-process Store with observer fan-out.
type MemoryStore struct {
	mu        sync.RWMutex
	values    map[string]string
	observers []func(key, value string)
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the stored value for key.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set writes a value and notifies observers. Writes that do not change
// the value still notify, so observers can treat it as a heartbeat.
func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	s.values[key] = value
	observers := make([]func(string, string), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(key, value)
	}
}

// Watch registers a change observer.
func (s *MemoryStore) Watch(fn func(key, value string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}
