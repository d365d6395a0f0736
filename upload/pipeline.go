// Package upload moves one photo blob into the blob store in chunks.
// Progress is published on a channel owned by the Transfer and is cleared
// as soon as the transfer ends, whatever the outcome.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pixel-chat/contract"
	"pixel-chat/errors"
	"pixel-chat/pixelate"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const DefaultChunkSize = 256 << 10

// noProgress marks the absence of an in-flight transfer.
const noProgress = -1

type Encoder interface {
	Load(ctx context.Context, src pixelate.Source) (pixelate.Blob, error)
	Encode(blob pixelate.Blob, pixelSize int) (pixelate.Blob, error)
}

type Pipeline struct {
	encoder   Encoder
	store     contract.BlobStore
	chunkSize int
	log       *slog.Logger
	now       func() time.Time
}

func NewPipeline(encoder Encoder, store contract.BlobStore, chunkSize int, log *slog.Logger) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Pipeline{
		encoder:   encoder,
		store:     store,
		chunkSize: chunkSize,
		log:       log,
		now:       time.Now,
	}
}

// Prepare returns the blob to publish.
// A refused remote fetch aborts the send. Any encoding failure falls back to
// the original bytes so that the user's photo is never lost, at the price of
// publishing it unpixelated.
func (p *Pipeline) Prepare(ctx context.Context, src pixelate.Source, pixelSize int) (pixelate.Blob, error) {
	original, err := p.encoder.Load(ctx, src)
	if err != nil {
		return pixelate.Blob{}, err
	}
	degraded, err := p.encoder.Encode(original, pixelSize)
	if err != nil {
		p.log.Warn("Pixelation failed, uploading the original image",
			"pixel_size", pixelSize,
			"size", len(original.Data),
			"error", err)
		return original, nil
	}
	return degraded, nil
}

// Start launches the transfer in its own goroutine.
// The transfer is tied to ctx only through the store calls: abandoning the
// Transfer value does not stop it.
func (p *Pipeline) Start(ctx context.Context, ownerID string, blob pixelate.Blob) *Transfer {
	t := &Transfer{
		// At most 101 distinct percentages are ever emitted, so sends never block
		progress: make(chan int, 101),
		done:     make(chan struct{}),
		last:     noProgress,
	}
	t.current.Store(noProgress)
	path := p.objectPath(ownerID, blob)
	go t.run(ctx, p, path, blob)
	return t
}

// objectPath namespaces the blob under its owner: photos/{owner}/{millis}-{rand}.{ext}
func (p *Pipeline) objectPath(ownerID string, blob pixelate.Blob) string {
	extension := mimetype.Lookup(baseType(blob.ContentType))
	suffix := ".jpg"
	if extension != nil && extension.Extension() != "" {
		suffix = extension.Extension()
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
	return fmt.Sprintf("photos/%s/%d-%s%s", ownerID, p.now().UnixMilli(), random, suffix)
}

type Transfer struct {
	progress chan int
	done     chan struct{}
	current  atomic.Int64
	last     int
	once     sync.Once
	locator  string
	err      error
}

// Progress yields non-decreasing percentages, 0 first and 100 last on success.
// The channel is closed when the transfer ends.
func (t *Transfer) Progress() <-chan int {
	return t.progress
}

// Current is the in-flight percentage, or false once the transfer is over.
func (t *Transfer) Current() (int, bool) {
	value := t.current.Load()
	if value == noProgress {
		return 0, false
	}
	return int(value), true
}

// Done is closed when the transfer has ended.
func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the transfer ends and returns the blob locator.
func (t *Transfer) Wait() (string, error) {
	<-t.done
	return t.locator, t.err
}

func (t *Transfer) run(ctx context.Context, p *Pipeline, path string, blob pixelate.Blob) {
	defer t.finish()

	size := int64(len(blob.Data))
	t.emit(0)

	uploadID, err := p.store.BeginUpload(ctx, path, blob.ContentType, size)
	if err != nil {
		t.fail(p.log, path, err)
		return
	}

	for offset := int64(0); offset < size; {
		end := min(offset+int64(p.chunkSize), size)
		if err = p.store.UploadChunk(ctx, uploadID, offset, blob.Data[offset:end]); err != nil {
			t.abort(ctx, p, uploadID)
			t.fail(p.log, path, err)
			return
		}
		offset = end
		// 100 is only emitted once the store has committed
		t.emit(min(int(offset*100/size), 99))
	}

	locator, err := p.store.CommitUpload(ctx, uploadID)
	if err != nil {
		t.abort(ctx, p, uploadID)
		t.fail(p.log, path, err)
		return
	}
	t.emit(100)
	t.locator = locator
	p.log.Debug("Upload complete", "path", path, "size", size, "locator", locator)
}

func (t *Transfer) emit(percent int) {
	if percent <= t.last {
		return
	}
	t.last = percent
	t.current.Store(int64(percent))
	t.progress <- percent
}

func (t *Transfer) fail(log *slog.Logger, path string, err error) {
	log.Error("Upload failed", "path", path, "error", err)
	t.err = fmt.Errorf("%w: %w", errors.ErrUploadFailed, err)
}

// abort discards the partial upload. It runs on a fresh context since ctx
// may be the reason the transfer failed.
func (t *Transfer) abort(ctx context.Context, p *Pipeline, uploadID string) {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.AbortUpload(abortCtx, uploadID); err != nil {
		p.log.Warn("Unable to abort upload", "upload_id", uploadID, "error", err)
	}
}

// finish clears the progress state before anybody waiting is released.
func (t *Transfer) finish() {
	t.once.Do(func() {
		t.current.Store(noProgress)
		close(t.progress)
		close(t.done)
	})
}

func baseType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}
