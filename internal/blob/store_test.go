package blob

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore()

	handle := s.Create([]byte("video"), "video/mp4")
	require.True(t, strings.HasPrefix(handle, Prefix))
	_, err := uuid.Parse(ID(handle))
	require.NoError(t, err)

	obj, err := s.Get(handle)
	require.NoError(t, err)
	assert.Equal(t, []byte("video"), obj.Data)
	assert.Equal(t, "video/mp4", obj.ContentType)
	assert.Equal(t, handle, obj.Handle)
	assert.False(t, obj.CreatedAt.IsZero())

	byID, err := s.Get(ID(handle))
	require.NoError(t, err)
	assert.Equal(t, obj, byID)
}

func TestStore_HandlesAreUnique(t *testing.T) {
	s := NewStore()
	a := s.Create([]byte("a"), "video/mp4")
	b := s.Create([]byte("a"), "video/mp4")
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, s.Len())
}

func TestStore_Revoke(t *testing.T) {
	s := NewStore()
	handle := s.Create([]byte("video"), "video/mp4")

	require.NoError(t, s.Revoke(handle))
	_, err := s.Get(handle)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Revoke(handle), ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := s.Create([]byte("x"), "video/mp4")
			_, _ = s.Get(h)
			_ = s.Revoke(h)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, s.Len())
}
