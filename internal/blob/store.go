// Package blob keeps downloaded videos in memory behind revocable handles,
// the server-side counterpart of a browser object URL.
package blob

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"
)

// Compile-time check that Store implements generation.ObjectStore.
var _ generation.ObjectStore = (*Store)(nil)

// ErrNotFound is returned when a handle is unknown or was revoked.
var ErrNotFound = errors.New("blob: handle not found")

// Prefix starts every handle.
const Prefix = "blob:"

// Object is a stored video.
type Object struct {
	Handle      string
	Data        []byte
	ContentType string
	CreatedAt   time.Time
}

// Store is an in-memory object registry.
// It uses a map with RWMutex for thread-safe access.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		objects: make(map[string]Object),
	}
}

// Create stores data and returns a fresh handle for it.
func (s *Store) Create(data []byte, contentType string) string {
	handle := Prefix + uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[handle] = Object{
		Handle:      handle,
		Data:        data,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}
	return handle
}

// Get returns the object for handle. The handle may be given with or
// without the "blob:" prefix.
func (s *Store) Get(handle string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[normalize(handle)]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

// Revoke forgets handle. Revoking an unknown handle returns ErrNotFound.
func (s *Store) Revoke(handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalize(handle)
	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// Len returns the number of live handles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// ID strips the prefix from a handle, for use in URLs.
func ID(handle string) string {
	return strings.TrimPrefix(handle, Prefix)
}

func normalize(handle string) string {
	if strings.HasPrefix(handle, Prefix) {
		return handle
	}
	return Prefix + handle
}
