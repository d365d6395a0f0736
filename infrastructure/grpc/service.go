// Package grpc carries the document store and anonymous sign-in over gRPC.
// Messages are protobuf well-known types, so no generated code is needed:
// records travel as a ListValue of {"id", "createdAt", "fields"} structs.
package grpc

import (
	"context"
	"fmt"
	"time"

	"pixel-chat/contract"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "pixelchat.v1.ChatStore"

	SignInAnonymouslyMethod = "/" + ServiceName + "/SignInAnonymously"
	AppendMethod            = "/" + ServiceName + "/Append"
	UpdateMethod            = "/" + ServiceName + "/Update"
	SubscribeMethod         = "/" + ServiceName + "/Subscribe"
)

// PublicMethods can be called without a bearer token.
var PublicMethods = []string{SignInAnonymouslyMethod}

// ChatStoreServer is the contract the service descriptor dispatches to.
type ChatStoreServer interface {
	SignInAnonymously(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Append(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	Update(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Subscribe(*emptypb.Empty, grpc.ServerStream) error
}

var ChatStoreServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SignInAnonymously", Handler: signInAnonymouslyHandler},
		{MethodName: "Append", Handler: appendHandler},
		{MethodName: "Update", Handler: updateHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "pixelchat/v1/chat_store.proto",
}

func signInAnonymouslyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatStoreServer).SignInAnonymously(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SignInAnonymouslyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatStoreServer).SignInAnonymously(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func appendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatStoreServer).Append(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AppendMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatStoreServer).Append(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func updateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatStoreServer).Update(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: UpdateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatStoreServer).Update(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatStoreServer).Subscribe(in, stream)
}

// EncodeRecords turns a snapshot into its wire form.
func EncodeRecords(records []contract.Record) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(records))}
	for _, record := range records {
		fields, err := structpb.NewStruct(record.Fields)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", record.ID, err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"id":        structpb.NewStringValue(record.ID),
				"createdAt": structpb.NewStringValue(record.CreatedAt.UTC().Format(time.RFC3339Nano)),
				"fields":    structpb.NewStructValue(fields),
			},
		}))
	}
	return list, nil
}

// DecodeRecords is the inverse of EncodeRecords.
func DecodeRecords(list *structpb.ListValue) ([]contract.Record, error) {
	records := make([]contract.Record, 0, len(list.GetValues()))
	for i, value := range list.GetValues() {
		entry := value.GetStructValue()
		if entry == nil {
			return nil, fmt.Errorf("entry %d is not a record", i)
		}
		createdAt, err := time.Parse(time.RFC3339Nano, entry.Fields["createdAt"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		fields := entry.Fields["fields"].GetStructValue().AsMap()
		records = append(records, contract.Record{
			ID:        entry.Fields["id"].GetStringValue(),
			CreatedAt: createdAt,
			Fields:    fields,
		})
	}
	return records, nil
}
