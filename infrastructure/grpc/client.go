package grpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"pixel-chat/contract"
	"pixel-chat/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	_ contract.DocumentStore    = (*Client)(nil)
	_ contract.IdentityProvider = (*Client)(nil)
)

// Client is the remote DocumentStore and the identity it speaks as.
type Client struct {
	conn grpc.ClientConnInterface
	log  *slog.Logger

	mu       sync.RWMutex
	identity *contract.Identity
}

func NewClient(conn grpc.ClientConnInterface, log *slog.Logger) *Client {
	return &Client{conn: conn, log: log}
}

func (c *Client) Current() (contract.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return contract.Identity{}, false
	}
	return *c.identity, true
}

func (c *Client) SignInAnonymously(ctx context.Context) (contract.Identity, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, SignInAnonymouslyMethod, &emptypb.Empty{}, out); err != nil {
		return contract.Identity{}, errors.FromGRPCError(err)
	}
	identity := contract.Identity{
		ParticipantID: out.GetFields()["participantId"].GetStringValue(),
		Token:         out.GetFields()["token"].GetStringValue(),
	}
	if identity.ParticipantID == "" || identity.Token == "" {
		return contract.Identity{}, fmt.Errorf("%w: empty identity returned", errors.ErrNotAuthenticated)
	}

	c.mu.Lock()
	c.identity = &identity
	c.mu.Unlock()
	c.log.Info("Signed in anonymously", "participant_id", identity.ParticipantID)
	return identity, nil
}

func (c *Client) Append(ctx context.Context, fields map[string]any) (string, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrStoreWrite, err)
	}
	out := new(wrapperspb.StringValue)
	if err = c.conn.Invoke(c.authorize(ctx), AppendMethod, in, out); err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrStoreWrite, errors.FromGRPCError(err))
	}
	return out.GetValue(), nil
}

func (c *Client) Update(ctx context.Context, id string, fields map[string]any) error {
	changes, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStoreWrite, err)
	}
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":     structpb.NewStringValue(id),
		"fields": structpb.NewStructValue(changes),
	}}
	if err = c.conn.Invoke(c.authorize(ctx), UpdateMethod, in, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStoreWrite, errors.FromGRPCError(err))
	}
	return nil
}

// Subscribe returns ctx.Err() on cancellation and ErrSyncStream otherwise,
// including when the server ends the stream.
func (c *Client) Subscribe(ctx context.Context, deliver func([]contract.Record)) error {
	stream, err := c.conn.NewStream(c.authorize(ctx), &ChatStoreServiceDesc.Streams[0], SubscribeMethod)
	if err != nil {
		return c.streamError(ctx, err)
	}
	// io.EOF here means the server already ended the call, RecvMsg tells why
	if err = stream.SendMsg(&emptypb.Empty{}); err != nil && err != io.EOF {
		return c.streamError(ctx, err)
	}
	if err = stream.CloseSend(); err != nil {
		return c.streamError(ctx, err)
	}

	for {
		list := new(structpb.ListValue)
		if err = stream.RecvMsg(list); err != nil {
			return c.streamError(ctx, err)
		}
		records, err := DecodeRecords(list)
		if err != nil {
			return fmt.Errorf("%w: %w", errors.ErrSyncStream, err)
		}
		deliver(records)
	}
}

func (c *Client) streamError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == io.EOF {
		return fmt.Errorf("%w: closed by server", errors.ErrSyncStream)
	}
	return fmt.Errorf("%w: %w", errors.ErrSyncStream, errors.FromGRPCError(err))
}

func (c *Client) authorize(ctx context.Context) context.Context {
	identity, ok := c.Current()
	if !ok {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+identity.Token)
}
