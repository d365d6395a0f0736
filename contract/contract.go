//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"pixel-chat/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Record is an opaque structured document as the store sees it.
// Field values are limited to what protobuf Struct can carry:
// string, float64, bool, nil, map[string]any and []any.
type Record struct {
	ID        string
	CreatedAt time.Time
	Fields    map[string]any
}

// DocumentStore is the ordered, server-timestamped log.
type DocumentStore interface {
	// Append stores a new record and returns its store-assigned id.
	Append(ctx context.Context, fields map[string]any) (string, error)
	// Update merges fields into an existing record.
	Update(ctx context.Context, id string, fields map[string]any) error
	// Subscribe delivers the full ordered record set on start and after every change.
	// It blocks until ctx is done or the stream fails. deliver is called from
	// the subscribing goroutine, one snapshot at a time, and never once
	// Subscribe has returned.
	Subscribe(ctx context.Context, deliver func([]Record)) error
}

// BlobStore is a resumable, chunked blob upload target.
type BlobStore interface {
	BeginUpload(ctx context.Context, path, contentType string, size int64) (string, error)
	UploadChunk(ctx context.Context, uploadID string, offset int64, chunk []byte) error
	CommitUpload(ctx context.Context, uploadID string) (string, error)
	AbortUpload(ctx context.Context, uploadID string) error
}

type Identity struct {
	ParticipantID string
	Token         string
}

type IdentityProvider interface {
	Current() (Identity, bool)
	SignInAnonymously(ctx context.Context) (Identity, error)
}
