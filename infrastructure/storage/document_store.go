package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"pixel-chat/contract"
	domainerrors "pixel-chat/errors"

	"github.com/bwmarrin/snowflake"
	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	documentPrefix = "doc:"
	indexPrefix    = "idx:"
)

var _ contract.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is the ordered log of chat records kept in BadgerDB.
// Keys are "doc:{created_at_nanos_padded}:{snowflake_padded}" so that a
// prefix scan returns records by creation time, then by insertion order.
// "idx:{id}" points back to the document key for in-place updates.
type DocumentStore struct {
	db   *badger.DB
	node *snowflake.Node
	log  *slog.Logger
	now  func() time.Time

	// writeMu serializes appends so that timestamps and ids grow together
	writeMu sync.Mutex
	last    time.Time

	subMu       sync.Mutex
	nextSub     int
	subscribers map[int]chan struct{}
}

func NewDocumentStore(db *badger.DB, node *snowflake.Node, log *slog.Logger) *DocumentStore {
	return &DocumentStore{
		db:          db,
		node:        node,
		log:         log,
		now:         time.Now,
		subscribers: make(map[int]chan struct{}),
	}
}

// Append stores fields under a new id with a server-assigned timestamp.
func (s *DocumentStore) Append(_ context.Context, fields map[string]any) (string, error) {
	value, err := marshalFields(fields)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domainerrors.ErrStoreWrite, err)
	}

	s.writeMu.Lock()
	createdAt := s.now().UTC()
	if createdAt.Before(s.last) {
		createdAt = s.last
	}
	id := s.node.Generate()
	key := documentKey(createdAt, id)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), value); err != nil {
			return err
		}
		return txn.Set([]byte(indexPrefix+id.String()), []byte(key))
	})
	if err == nil {
		s.last = createdAt
	}
	s.writeMu.Unlock()

	if err != nil {
		return "", fmt.Errorf("%w: %w", domainerrors.ErrStoreWrite, err)
	}
	s.log.Debug("Record appended", "id", id.String(), "created_at", createdAt)
	s.notify()
	return id.String(), nil
}

// Update merges fields into an existing record, atomically.
func (s *DocumentStore) Update(_ context.Context, id string, fields map[string]any) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		indexItem, err := txn.Get([]byte(indexPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("record %s: %w", id, domainerrors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		key, err := indexItem.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		var current structpb.Struct
		if err = proto.Unmarshal(raw, &current); err != nil {
			return err
		}
		if current.Fields == nil {
			current.Fields = make(map[string]*structpb.Value)
		}
		for name, v := range fields {
			value, err := structpb.NewValue(v)
			if err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
			current.Fields[name] = value
		}
		merged, err := proto.Marshal(&current)
		if err != nil {
			return err
		}
		return txn.Set(key, merged)
	})
	if errors.Is(err, domainerrors.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %w", domainerrors.ErrStoreWrite, err)
	}
	s.log.Debug("Record updated", "id", id)
	s.notify()
	return nil
}

// Subscribe delivers the whole ordered snapshot now and after every write.
// Bursts of writes are coalesced into a single delivery.
func (s *DocumentStore) Subscribe(ctx context.Context, deliver func([]contract.Record)) error {
	changed, unsubscribe := s.register()
	defer unsubscribe()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		records, err := s.Snapshot()
		if err != nil {
			return fmt.Errorf("%w: %w", domainerrors.ErrSyncStream, err)
		}
		deliver(records)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Snapshot reads every record in log order.
func (s *DocumentStore) Snapshot() ([]contract.Record, error) {
	var records []contract.Record
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(documentPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(value []byte) error {
				record, _, err := DecodeEntry(item.Key(), value)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// register must happen before the first snapshot read so that no write
// committed after that read goes unnoticed.
func (s *DocumentStore) register() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	changed := make(chan struct{}, 1)
	s.subscribers[id] = changed
	return changed, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *DocumentStore) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, changed := range s.subscribers {
		select {
		case changed <- struct{}{}:
		default:
			// A delivery is already pending, it will read this write too
		}
	}
}

func marshalFields(fields map[string]any) ([]byte, error) {
	value, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(value)
}

func documentKey(createdAt time.Time, id snowflake.ID) string {
	return fmt.Sprintf("%s%019d:%019d", documentPrefix, createdAt.UnixNano(), id.Int64())
}

func parseDocumentKey(key string) (time.Time, string, error) {
	parts := strings.Split(strings.TrimPrefix(key, documentPrefix), ":")
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("malformed document key %q", key)
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed document key %q: %w", key, err)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed document key %q: %w", key, err)
	}
	return time.Unix(0, nanos).UTC(), snowflake.ID(id).String(), nil
}

// DecodeEntry reads a raw document key/value pair, as found by a prefix scan.
// Index entries and foreign keys are reported as not ok.
func DecodeEntry(key, value []byte) (contract.Record, bool, error) {
	if !strings.HasPrefix(string(key), documentPrefix) {
		return contract.Record{}, false, nil
	}
	createdAt, id, err := parseDocumentKey(string(key))
	if err != nil {
		return contract.Record{}, false, err
	}
	var fields structpb.Struct
	if err = proto.Unmarshal(value, &fields); err != nil {
		return contract.Record{}, false, fmt.Errorf("record %s: %w", id, err)
	}
	return contract.Record{ID: id, CreatedAt: createdAt, Fields: fields.AsMap()}, true, nil
}
