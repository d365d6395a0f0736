package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pixel-chat/errors"

	"github.com/stretchr/testify/require"
)

func newTestBlobStore(t *testing.T) *BlobStore {
	store, err := NewBlobStore(t.TempDir(), "http://localhost:8081/blobs/", slog.Default())
	require.NoError(t, err)
	return store
}

func TestBlobStore_ChunkedUpload(t *testing.T) {
	req := require.New(t)
	store := newTestBlobStore(t)
	ctx := context.Background()
	payload := []byte("0123456789abcdef")

	id, err := store.BeginUpload(ctx, "photos/p1/1-abc.jpg", "image/jpeg", int64(len(payload)))
	req.NoError(err)

	req.NoError(store.UploadChunk(ctx, id, 0, payload[:6]))
	req.NoError(store.UploadChunk(ctx, id, 6, payload[6:12]))
	offset, err := store.Offset(id)
	req.NoError(err)
	req.Equal(int64(12), offset)
	req.NoError(store.UploadChunk(ctx, id, 12, payload[12:]))

	locator, err := store.CommitUpload(ctx, id)
	req.NoError(err)
	req.True(strings.HasPrefix(locator, "http://localhost:8081/blobs/photos/p1/1-abc.jpg?v="))

	stored, err := os.ReadFile(filepath.Join(store.Root(), "photos", "p1", "1-abc.jpg"))
	req.NoError(err)
	req.Equal(payload, stored)

	// The upload is gone once committed
	_, err = store.CommitUpload(ctx, id)
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestBlobStore_SameContentSameVersion(t *testing.T) {
	req := require.New(t)
	store := newTestBlobStore(t)
	ctx := context.Background()

	upload := func(path string, data []byte) string {
		id, err := store.BeginUpload(ctx, path, "image/jpeg", int64(len(data)))
		req.NoError(err)
		req.NoError(store.UploadChunk(ctx, id, 0, data))
		locator, err := store.CommitUpload(ctx, id)
		req.NoError(err)
		return locator[strings.Index(locator, "?v="):]
	}

	req.Equal(upload("a.jpg", []byte("same")), upload("b.jpg", []byte("same")))
	req.NotEqual(upload("c.jpg", []byte("same")), upload("d.jpg", []byte("other")))
}

func TestBlobStore_OffsetMismatch(t *testing.T) {
	req := require.New(t)
	store := newTestBlobStore(t)
	ctx := context.Background()

	id, err := store.BeginUpload(ctx, "photos/x.jpg", "image/jpeg", 10)
	req.NoError(err)
	req.NoError(store.UploadChunk(ctx, id, 0, []byte("abcd")))

	err = store.UploadChunk(ctx, id, 2, []byte("zz"))
	req.ErrorIs(err, errors.ErrOffsetMismatch)

	// Resuming at the stored offset works
	req.NoError(store.UploadChunk(ctx, id, 4, []byte("efghij")))
	_, err = store.CommitUpload(ctx, id)
	req.NoError(err)
}

func TestBlobStore_IncompleteCommit(t *testing.T) {
	req := require.New(t)
	store := newTestBlobStore(t)
	ctx := context.Background()

	id, err := store.BeginUpload(ctx, "photos/x.jpg", "image/jpeg", 10)
	req.NoError(err)
	req.NoError(store.UploadChunk(ctx, id, 0, []byte("abc")))

	_, err = store.CommitUpload(ctx, id)
	req.ErrorIs(err, errors.ErrIncompleteUpload)

	_, err = os.Stat(filepath.Join(store.Root(), "photos", "x.jpg"))
	req.True(os.IsNotExist(err))
}

func TestBlobStore_Abort(t *testing.T) {
	req := require.New(t)
	store := newTestBlobStore(t)
	ctx := context.Background()

	id, err := store.BeginUpload(ctx, "photos/x.jpg", "image/jpeg", 10)
	req.NoError(err)
	req.NoError(store.UploadChunk(ctx, id, 0, []byte("abc")))
	req.NoError(store.AbortUpload(ctx, id))

	_, err = os.Stat(store.partialPath(id))
	req.True(os.IsNotExist(err))
	req.ErrorIs(store.UploadChunk(ctx, id, 3, []byte("d")), errors.ErrNotFound)
}

func TestBlobStore_RejectsEscapingPaths(t *testing.T) {
	req := require.New(t)
	store := newTestBlobStore(t)

	for _, path := range []string{"", "../etc/passwd", "photos/../../x", ".uploads/x", "photos//x.jpg"} {
		_, err := store.BeginUpload(context.Background(), path, "image/jpeg", 1)
		req.ErrorIs(err, errors.ErrInvalidUpload, path)
	}
}
