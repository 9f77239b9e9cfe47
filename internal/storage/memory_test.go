package storage_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radif/uploads/internal/storage"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStorage("mem://bucket/")
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "k_a.txt", strings.NewReader("payload"), 7, "text/plain"))
	require.Equal(t, "mem://bucket/k_a.txt", s.PublicURL("k_a.txt"))

	rc, err := s.Open("k_a.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))

	ct, ok := s.ContentType("k_a.txt")
	require.True(t, ok)
	require.Equal(t, "text/plain", ct)
	require.Equal(t, 1, s.Uploads())
}

func TestMemoryStorageFailUploads(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStorage("mem://bucket")
	unavailable := errors.New("backend unavailable")
	s.FailUploads(unavailable)

	err := s.Upload(context.Background(), "k", strings.NewReader("x"), 1, "")
	require.ErrorIs(t, err, unavailable)
	require.Zero(t, s.Len(), "failed upload must not store anything")
	require.Equal(t, 1, s.Uploads())

	s.FailUploads(nil)
	require.NoError(t, s.Upload(context.Background(), "k", strings.NewReader("x"), 1, ""))
	require.Equal(t, 1, s.Len())
}

func TestMemoryStorageListTouchDelete(t *testing.T) {
	t.Parallel()

	s := storage.NewMemoryStorage("mem://bucket")
	ctx := context.Background()
	require.NoError(t, s.Upload(ctx, "b", strings.NewReader("bb"), 2, ""))
	require.NoError(t, s.Upload(ctx, "a", strings.NewReader("a"), 1, ""))

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Touch("a", old)

	var seen []storage.Object
	require.NoError(t, s.List(ctx, "", func(o storage.Object) error {
		seen = append(seen, o)
		return nil
	}))
	require.Len(t, seen, 2)
	require.Equal(t, "a", seen[0].Key, "listing is key ordered")
	require.Equal(t, old, seen[0].LastModified)
	require.Equal(t, int64(2), seen[1].Size)

	require.NoError(t, s.Delete(ctx, "a"))
	require.ErrorIs(t, s.Delete(ctx, "a"), storage.ErrNotFound)
	_, err := s.Open("a")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
