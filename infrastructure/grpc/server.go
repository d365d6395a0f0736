package grpc

import (
	"context"
	"fmt"
	"log/slog"

	"pixel-chat/auth"
	"pixel-chat/contract"
	"pixel-chat/errors"
	"pixel-chat/projection"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// moderationFields are the only fields a participant may change after append.
var moderationFields = map[string]struct{}{
	projection.FieldIsUnlocked: {},
	projection.FieldStatus:     {},
}

var _ ChatStoreServer = (*Server)(nil)

type Server struct {
	store  contract.DocumentStore
	issuer *auth.Issuer
	log    *slog.Logger
}

func NewServer(store contract.DocumentStore, issuer *auth.Issuer, log *slog.Logger) *Server {
	return &Server{store: store, issuer: issuer, log: log}
}

func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	registrar.RegisterService(&ChatStoreServiceDesc, s)
}

func (s *Server) SignInAnonymously(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	participantID := uuid.NewString()
	token, err := s.issuer.Generate(participantID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	s.log.Info("Participant signed in", "participant_id", participantID)
	return structpb.NewStruct(map[string]any{
		"participantId": participantID,
		"token":         token,
	})
}

// Append only accepts records authored by the calling participant.
func (s *Server) Append(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	participantID, ok := auth.ParticipantFromContext(ctx)
	if !ok {
		return nil, errors.MapToGRPCError(errors.ErrNotAuthenticated)
	}
	fields := in.AsMap()
	if author, _ := fields[projection.FieldAuthor].(string); author != participantID {
		err := fmt.Errorf("%w: record author %q is not the caller", errors.ErrPermissionDenied, author)
		return nil, errors.MapToGRPCError(err)
	}
	id, err := s.store.Append(ctx, fields)
	if err != nil {
		s.log.Error("Append failed", "participant_id", participantID, "error", err)
		return nil, errors.MapToGRPCError(err)
	}
	return wrapperspb.String(id), nil
}

// Update takes {"id": string, "fields": struct}. Any authenticated
// participant may approve any photo, but nothing else can be rewritten.
func (s *Server) Update(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	participantID, ok := auth.ParticipantFromContext(ctx)
	if !ok {
		return nil, errors.MapToGRPCError(errors.ErrNotAuthenticated)
	}
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, errors.MapToGRPCError(fmt.Errorf("%w: missing record id", errors.ErrNotFound))
	}
	fields := in.GetFields()["fields"].GetStructValue().AsMap()
	for name := range fields {
		if _, allowed := moderationFields[name]; !allowed {
			err := fmt.Errorf("%w: field %q cannot be updated", errors.ErrPermissionDenied, name)
			return nil, errors.MapToGRPCError(err)
		}
	}
	if err := s.store.Update(ctx, id, fields); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	s.log.Debug("Record updated", "id", id, "participant_id", participantID)
	return &emptypb.Empty{}, nil
}

// Subscribe streams every snapshot until the client goes away.
func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	var sendErr error
	err := s.store.Subscribe(ctx, func(records []contract.Record) {
		list, err := EncodeRecords(records)
		if err == nil {
			err = stream.SendMsg(list)
		}
		if err != nil {
			sendErr = err
			cancel()
		}
	})
	if sendErr != nil {
		s.log.Warn("Subscriber dropped", "error", sendErr)
		return errors.MapToGRPCError(sendErr)
	}
	if stream.Context().Err() != nil {
		return nil
	}
	return errors.MapToGRPCError(err)
}
