package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory key-value store for tests and ephemeral sessions.
type Memory struct {
	mu   sync.Mutex
	m    map[string]string
	fail bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

// FailWrites makes subsequent Set calls fail, simulating an unavailable
// backend (quota exhaustion, I/O errors).
func (s *Memory) FailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// Get returns the value for key, reporting absence via the second return.
func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

// Set writes value under key.
func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	s.m[key] = value
	return nil
}

// Delete removes key if present.
func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// List returns all keys with the given prefix in lexical order.
func (s *Memory) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
