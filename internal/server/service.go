// gRPC service description for the outline service. Messages travel as
// google.protobuf.Struct so no generated code is needed.
package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/outlinestore/pkg/node"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "outlinestore.v1.Outline"

// OutlineServer is the server API for the outline service.
type OutlineServer interface {
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Read(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	MoveUp(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	MoveDown(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Indent(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Unindent(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Add(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// OutlineServiceDesc describes the outline service for grpc.Server.RegisterService.
var OutlineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OutlineServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Create", func(s OutlineServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.Create(ctx, in) }),
		unary("Read", func(s OutlineServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.Read(ctx, in) }),
		unary("Update", func(s OutlineServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.Update(ctx, in) }),
		unary("Delete", func(s OutlineServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.Delete(ctx, in) }),
		unary("MoveUp", func(s OutlineServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.MoveUp(ctx, in) }),
		unary("MoveDown", func(s OutlineServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.MoveDown(ctx, in) }),
		unary("Indent", func(s OutlineServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.Indent(ctx, in) }),
		unary("Unindent", func(s OutlineServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.Unindent(ctx, in) }),
		unary("Add", func(s OutlineServer, ctx context.Context, in *structpb.Struct) (any, error) { return s.Add(ctx, in) }),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "outlinestore/v1/outline.proto",
}

// RegisterOutlineServer registers srv with the gRPC server.
func RegisterOutlineServer(s grpc.ServiceRegistrar, srv OutlineServer) {
	s.RegisterService(&OutlineServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary(name string, call func(OutlineServer, context.Context, *structpb.Struct) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(OutlineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(OutlineServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// NodeRequest is the JSON shape carried inside the request Struct. Each
// method reads only the fields it needs.
type NodeRequest struct {
	UUID            string            `json:"uuid,omitempty"`
	ParentUUID      string            `json:"parentUuid,omitempty"`
	PredecessorUUID string            `json:"predecessorUuid,omitempty"`
	AsChild         bool              `json:"asChild,omitempty"`
	Value           *node.Value       `json:"value,omitempty"`
	Node            *node.ContentNode `json:"node,omitempty"`
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
