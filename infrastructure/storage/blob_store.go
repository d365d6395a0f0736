package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"pixel-chat/contract"
	"pixel-chat/errors"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

const partialDir = ".uploads"

var _ contract.BlobStore = (*BlobStore)(nil)

// BlobStore keeps blobs on disk under root.
// Uploads are written to root/.uploads/{id} and only become visible under
// their final path once committed with the announced size.
type BlobStore struct {
	root    string
	baseURL string
	log     *slog.Logger

	mu      sync.Mutex
	uploads map[string]*pendingUpload
}

type pendingUpload struct {
	mu          sync.Mutex
	path        string
	contentType string
	size        int64
	written     int64
	file        *os.File
	hasher      *blake3.Hasher
}

func NewBlobStore(root, baseURL string, log *slog.Logger) (*BlobStore, error) {
	if err := os.MkdirAll(filepath.Join(root, partialDir), 0o750); err != nil {
		return nil, err
	}
	return &BlobStore{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		log:     log,
		uploads: make(map[string]*pendingUpload),
	}, nil
}

func (s *BlobStore) Root() string {
	return s.root
}

func (s *BlobStore) BeginUpload(_ context.Context, objectPath, contentType string, size int64) (string, error) {
	clean, err := cleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	if size < 0 {
		return "", fmt.Errorf("%w: negative size %d", errors.ErrInvalidUpload, size)
	}

	id := uuid.NewString()
	file, err := os.OpenFile(s.partialPath(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.uploads[id] = &pendingUpload{
		path:        clean,
		contentType: contentType,
		size:        size,
		file:        file,
		hasher:      blake3.New(),
	}
	s.mu.Unlock()

	s.log.Debug("Upload started", "upload_id", id, "path", clean, "size", size)
	return id, nil
}

// UploadChunk appends a chunk. The offset must match what was already
// written, which lets a client resume exactly where the store stands.
func (s *BlobStore) UploadChunk(_ context.Context, uploadID string, offset int64, chunk []byte) error {
	upload, err := s.get(uploadID)
	if err != nil {
		return err
	}
	upload.mu.Lock()
	defer upload.mu.Unlock()

	if offset != upload.written {
		return fmt.Errorf("%w: got %d, expected %d", errors.ErrOffsetMismatch, offset, upload.written)
	}
	if upload.written+int64(len(chunk)) > upload.size {
		return fmt.Errorf("%w: upload %s exceeds announced size %d", errors.ErrInvalidUpload, uploadID, upload.size)
	}
	if _, err = upload.file.Write(chunk); err != nil {
		return err
	}
	_, _ = upload.hasher.Write(chunk)
	upload.written += int64(len(chunk))
	return nil
}

// CommitUpload moves the complete blob to its final path and returns its locator.
// The locator carries the content digest as a version.
func (s *BlobStore) CommitUpload(_ context.Context, uploadID string) (string, error) {
	upload, err := s.get(uploadID)
	if err != nil {
		return "", err
	}
	upload.mu.Lock()
	defer upload.mu.Unlock()

	if upload.written != upload.size {
		return "", fmt.Errorf("%w: %d of %d bytes", errors.ErrIncompleteUpload, upload.written, upload.size)
	}
	if err = upload.file.Close(); err != nil {
		return "", err
	}

	destination := filepath.Join(s.root, filepath.FromSlash(upload.path))
	if err = os.MkdirAll(filepath.Dir(destination), 0o750); err != nil {
		return "", err
	}
	if err = os.Rename(s.partialPath(uploadID), destination); err != nil {
		return "", err
	}
	s.forget(uploadID)

	digest := hex.EncodeToString(upload.hasher.Sum(nil))
	s.log.Info("Blob stored", "path", upload.path, "size", upload.size, "blake3", digest)
	return fmt.Sprintf("%s/%s?v=%s", s.baseURL, upload.path, digest[:16]), nil
}

func (s *BlobStore) AbortUpload(_ context.Context, uploadID string) error {
	upload, err := s.get(uploadID)
	if err != nil {
		return err
	}
	upload.mu.Lock()
	defer upload.mu.Unlock()

	_ = upload.file.Close()
	s.forget(uploadID)
	if err = os.Remove(s.partialPath(uploadID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.log.Debug("Upload aborted", "upload_id", uploadID, "path", upload.path)
	return nil
}

// Offset is how many bytes of an upload are already stored.
func (s *BlobStore) Offset(uploadID string) (int64, error) {
	upload, err := s.get(uploadID)
	if err != nil {
		return 0, err
	}
	upload.mu.Lock()
	defer upload.mu.Unlock()
	return upload.written, nil
}

func (s *BlobStore) get(uploadID string) (*pendingUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	upload, ok := s.uploads[uploadID]
	if !ok {
		return nil, fmt.Errorf("upload %s: %w", uploadID, errors.ErrNotFound)
	}
	return upload, nil
}

func (s *BlobStore) forget(uploadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, uploadID)
}

func (s *BlobStore) partialPath(uploadID string) string {
	return filepath.Join(s.root, partialDir, uploadID)
}

// cleanObjectPath refuses anything escaping the root or landing in the partial dir.
func cleanObjectPath(objectPath string) (string, error) {
	clean := path.Clean("/" + objectPath)[1:]
	if clean == "" || clean != strings.TrimPrefix(objectPath, "/") || strings.HasPrefix(clean, partialDir) {
		return "", fmt.Errorf("%w: object path %q", errors.ErrInvalidUpload, objectPath)
	}
	return clean, nil
}
