// Package credential holds the API key the user selected for this session.
package credential

import (
	"errors"
	"strings"
	"sync"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"
)

// Compile-time check that Store implements generation.KeySource.
var _ generation.KeySource = (*Store)(nil)

// ErrEmptyKey is returned when an empty key is selected.
var ErrEmptyKey = errors.New("credential: API key must not be empty")

// Store keeps the selected API key in memory. There is no fallback key: an
// empty store means no key is selected.
type Store struct {
	mu        sync.RWMutex
	key       string
	prompting bool
}

// NewStore creates a Store, preselecting initial when it is non-empty.
func NewStore(initial string) *Store {
	return &Store{key: strings.TrimSpace(initial)}
}

// HasSelectedKey reports whether a key is selected.
func (s *Store) HasSelectedKey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != ""
}

// OpenSelectKey asks the user to pick a key. The page reads Prompting to show its dialog.
func (s *Store) OpenSelectKey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompting = true
}

// Prompting reports whether a key selection prompt is open.
func (s *Store) Prompting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompting
}

// Select stores key and closes the prompt.
func (s *Store) Select(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.prompting = false
	return nil
}

// Clear forgets the selected key.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = ""
}

// APIKey returns the selected key, or "" when none is selected.
func (s *Store) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}
