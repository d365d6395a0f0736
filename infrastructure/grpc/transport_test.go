package grpc

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"pixel-chat/auth"
	"pixel-chat/contract"
	"pixel-chat/errors"
	"pixel-chat/infrastructure/storage"

	"github.com/bwmarrin/snowflake"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func setup(t *testing.T) func() *Client {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer("a-test-secret-of-32-bytes-length", time.Hour)
	require.NoError(t, err)

	interceptor := auth.NewInterceptor(issuer, PublicMethods...)
	server := grpc.NewServer(
		grpc.UnaryInterceptor(interceptor.Unary()),
		grpc.StreamInterceptor(interceptor.Stream()),
	)
	NewServer(storage.NewDocumentStore(db, node, slog.Default()), issuer, slog.Default()).Register(server)

	listener := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	return func() *Client {
		conn, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return listener.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return NewClient(conn, slog.Default())
	}
}

func TestTransport_SignInAndAppend(t *testing.T) {
	req := require.New(t)
	newClient := setup(t)
	client := newClient()
	ctx := context.Background()

	// Given a client that never signed in
	_, err := client.Append(ctx, map[string]any{"uid": "x", "text": "hi"})
	req.ErrorIs(err, errors.ErrNotAuthenticated)
	req.ErrorIs(err, errors.ErrStoreWrite)

	identity, err := auth.Ensure(ctx, client)
	req.NoError(err)
	req.NotEmpty(identity.ParticipantID)

	id, err := client.Append(ctx, map[string]any{"uid": identity.ParticipantID, "text": "hi"})
	req.NoError(err)
	req.NotEmpty(id)

	// Then nobody can post in someone else's name
	_, err = client.Append(ctx, map[string]any{"uid": "someone-else", "text": "hi"})
	req.ErrorIs(err, errors.ErrPermissionDenied)
}

func TestTransport_UpdateOnlyTouchesModerationFields(t *testing.T) {
	req := require.New(t)
	newClient := setup(t)
	author, moderator := newClient(), newClient()
	ctx := context.Background()

	identity, err := author.SignInAnonymously(ctx)
	req.NoError(err)
	_, err = moderator.SignInAnonymously(ctx)
	req.NoError(err)

	id, err := author.Append(ctx, map[string]any{
		"uid": identity.ParticipantID, "type": "photo", "photoURL": "http://x/p.jpg",
		"isUnlocked": false, "status": "pending",
	})
	req.NoError(err)

	// Any participant may approve
	req.NoError(moderator.Update(ctx, id, map[string]any{"isUnlocked": true, "status": "approved"}))

	err = moderator.Update(ctx, id, map[string]any{"text": "rewritten"})
	req.ErrorIs(err, errors.ErrPermissionDenied)

	err = moderator.Update(ctx, "404", map[string]any{"status": "approved"})
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestTransport_Subscribe(t *testing.T) {
	req := require.New(t)
	newClient := setup(t)
	writer, reader := newClient(), newClient()
	ctx := context.Background()

	identity, err := writer.SignInAnonymously(ctx)
	req.NoError(err)
	_, err = reader.SignInAnonymously(ctx)
	req.NoError(err)
	_, err = writer.Append(ctx, map[string]any{"uid": identity.ParticipantID, "text": "first"})
	req.NoError(err)

	subCtx, cancel := context.WithCancel(ctx)
	snapshots := make(chan []contract.Record, 16)
	done := make(chan error, 1)
	go func() {
		done <- reader.Subscribe(subCtx, func(records []contract.Record) { snapshots <- records })
	}()

	select {
	case records := <-snapshots:
		req.Len(records, 1)
		req.Equal("first", records[0].Fields["text"])
		req.False(records[0].CreatedAt.IsZero())
	case <-time.After(5 * time.Second):
		req.Fail("no initial snapshot")
	}

	_, err = writer.Append(ctx, map[string]any{"uid": identity.ParticipantID, "text": "second"})
	req.NoError(err)
	select {
	case records := <-snapshots:
		req.Len(records, 2)
		req.Equal("second", records[1].Fields["text"])
	case <-time.After(5 * time.Second):
		req.Fail("no snapshot after append")
	}

	cancel()
	select {
	case err = <-done:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		req.Fail("subscription did not stop")
	}
}

func TestTransport_SubscribeWithoutIdentity(t *testing.T) {
	req := require.New(t)
	client := setup(t)()

	err := client.Subscribe(context.Background(), func([]contract.Record) {})
	req.ErrorIs(err, errors.ErrSyncStream)
	req.ErrorIs(err, errors.ErrNotAuthenticated)
}

func TestRecordsCodec(t *testing.T) {
	req := require.New(t)
	createdAt := time.Date(2026, 5, 1, 9, 30, 0, 123456789, time.UTC)

	list, err := EncodeRecords([]contract.Record{{
		ID: "1", CreatedAt: createdAt, Fields: map[string]any{"text": "hi", "pixelSize": float64(10)},
	}})
	req.NoError(err)

	records, err := DecodeRecords(list)
	req.NoError(err)
	req.Equal([]contract.Record{{
		ID: "1", CreatedAt: createdAt, Fields: map[string]any{"text": "hi", "pixelSize": float64(10)},
	}}, records)

	_, err = EncodeRecords([]contract.Record{{ID: "bad", Fields: map[string]any{"x": struct{}{}}}})
	req.Error(err)
}
