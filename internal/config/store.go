package config

import (
	"sync"
	"sync/atomic"
)

// Store holds the active configuration. Readers always get a complete
// record: every change builds a new Config and swaps the pointer.
type Store struct {
	path    string
	current atomic.Pointer[Config]
	// Serializes writers so concurrent updates do not lose each other.
	mu sync.Mutex
}

// Open loads the configuration file at path into a new store.
func Open(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.current.Store(&cfg)
	return s, nil
}

// NewStore returns a store that is not backed by a file.
func NewStore(cfg Config) *Store {
	s := &Store{}
	s.current.Store(&cfg)
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Current() Config {
	return *s.current.Load()
}

// Swap replaces the configuration and returns the previous one.
func (s *Store) Swap(cfg Config) Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.current.Swap(&cfg)
}

// Reload reads the backing file again. The active configuration is kept when
// the file can not be parsed.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(&cfg)
	return nil
}

// Update applies fn to a copy of the active configuration, persists the copy
// and makes it active.
func (s *Store) Update(fn func(cfg *Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.current.Load()
	if err := fn(&next); err != nil {
		return err
	}
	if s.path != "" {
		if err := Save(s.path, next); err != nil {
			return err
		}
	}
	s.current.Store(&next)
	return nil
}

// Save writes the active configuration to the backing file.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Save(s.path, *s.current.Load())
}
