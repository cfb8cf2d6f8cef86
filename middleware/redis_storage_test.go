package middleware

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradreach/config"
)

func testStorage(t *testing.T) *RedisStorage {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStorage(config.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStorageRoundTrip(t *testing.T) {
	s := testStorage(t)

	require.NoError(t, s.Set("k", []byte("v"), time.Minute))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, s.Delete("k"))
	got, err = s.Get("k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStorageMissingKey(t *testing.T) {
	s := testStorage(t)

	// fiber's limiter expects (nil, nil) for absent keys
	got, err := s.Get("absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStorageReset(t *testing.T) {
	s := testStorage(t)

	require.NoError(t, s.Set("a", []byte("1"), 0))
	require.NoError(t, s.Set("b", []byte("2"), 0))
	require.NoError(t, s.Reset())

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Nil(t, got)
}
