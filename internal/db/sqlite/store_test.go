package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/replyguard/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{Path: filepath.Join(t.TempDir(), "nested", "replyguard.db")})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStore_SetWithTTLGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetWithTTL(ctx, "k", []byte("v1"), time.Hour))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))

	require.NoError(t, s.SetWithTTL(ctx, "k", []byte("v2"), time.Hour))
	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, db.ErrKeyNotFound)
}

func TestStore_SetWithTTL_Expires(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.SetWithTTL(ctx, "k", []byte("v"), time.Hour))

	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, db.ErrKeyNotFound)
}

func TestStore_SetWithTTLReplacesExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.SetWithTTL(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.SetWithTTL(ctx, "k", []byte("v"), 48*time.Hour))

	now = now.Add(time.Hour)
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)
}

func TestStore_GetCancelledContext(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetWithTTL(context.Background(), "k", []byte("v"), time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replyguard.db")
	ctx := context.Background()

	s1, err := NewStore(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s1.SetWithTTL(ctx, "k", []byte("kept"), time.Hour))
	s1.Close()

	s2, err := NewStore(Config{Path: path})
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "kept", string(got))
}

func TestStore_WaitForReady(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WaitForReady(context.Background(), time.Second))
}

func TestNewStore_RequiresPath(t *testing.T) {
	_, err := NewStore(Config{})
	require.Error(t, err)
}
