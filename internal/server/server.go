// Package server implements the gRPC outline service
package server

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/outlinestore/internal/metrics"
	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/outline"
)

// Server implements OutlineServer on top of an outline manager
type Server struct {
	mgr     *outline.Manager
	metrics *metrics.Metrics
}

// NewServer creates a gRPC service instance. m may be nil.
func NewServer(mgr *outline.Manager, m *metrics.Metrics) *Server {
	return &Server{mgr: mgr, metrics: m}
}

func (s *Server) decode(in *structpb.Struct) (*NodeRequest, error) {
	var req NodeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &req, nil
}

// done records the edit and converts err into a status error.
func (s *Server) done(op string, err error) error {
	if s.metrics != nil {
		s.metrics.RecordEdit(op, outline.Classify(err).String())
	}
	return toStatus(err)
}

func (s *Server) reply(op string, n *node.ContentNode, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, s.done(op, err)
	}
	out, err := toStruct(n)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, s.done(op, nil)
}

// ========== CRUD ==========

func (s *Server) Create(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	if req.Value == nil {
		return nil, status.Error(codes.InvalidArgument, "value is required")
	}
	n, err := s.mgr.Create(ctx, *req.Value)
	return s.reply("create", n, err)
}

func (s *Server) Read(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	n, err := s.mgr.Read(ctx, req.UUID)
	return s.reply("read", n, err)
}

// Update replaces the record named by uuid with node. The identifier in the
// request wins over any uuid inside the node's meta.
func (s *Server) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	if req.Node == nil {
		return nil, status.Error(codes.InvalidArgument, "node is required")
	}
	if req.UUID != "" {
		req.Node.Value.Meta.UUID = outline.IDFromReference(req.UUID)
	}
	if _, err := s.mgr.Read(ctx, req.Node.ID()); err != nil {
		return nil, s.done("update", err)
	}
	err = s.mgr.Update(ctx, req.Node)
	return s.reply("update", req.Node, err)
}

func (s *Server) Delete(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	if err := s.mgr.Delete(ctx, req.UUID, req.ParentUUID); err != nil {
		return nil, s.done("delete", err)
	}
	return &emptypb.Empty{}, s.done("delete", nil)
}

// ========== Structural edits ==========

func (s *Server) MoveUp(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	if err := s.mgr.MoveUp(ctx, req.UUID, req.ParentUUID, predecessor(req)...); err != nil {
		return nil, s.done("moveUp", err)
	}
	return &emptypb.Empty{}, s.done("moveUp", nil)
}

func (s *Server) MoveDown(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	if err := s.mgr.MoveDown(ctx, req.UUID, predecessor(req)...); err != nil {
		return nil, s.done("moveDown", err)
	}
	return &emptypb.Empty{}, s.done("moveDown", nil)
}

func (s *Server) Indent(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	if err := s.mgr.Indent(ctx, req.UUID, req.ParentUUID); err != nil {
		return nil, s.done("indent", err)
	}
	return &emptypb.Empty{}, s.done("indent", nil)
}

func (s *Server) Unindent(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	if err := s.mgr.UnIndent(ctx, req.UUID, req.ParentUUID); err != nil {
		return nil, s.done("unIndent", err)
	}
	return &emptypb.Empty{}, s.done("unIndent", nil)
}

func (s *Server) Add(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.decode(in)
	if err != nil {
		return nil, err
	}
	if req.Value == nil {
		return nil, status.Error(codes.InvalidArgument, "value is required")
	}
	n, err := s.mgr.Add(ctx, *req.Value, req.ParentUUID, req.AsChild)
	return s.reply("add", n, err)
}

func predecessor(req *NodeRequest) []outline.EditOption {
	if req.PredecessorUUID == "" {
		return nil
	}
	return []outline.EditOption{outline.WithPredecessor(req.PredecessorUUID)}
}

// toStatus maps outline errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch outline.Classify(err) {
	case outline.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case outline.KindInvariant:
		return status.Error(codes.FailedPrecondition, err.Error())
	case outline.KindInvalidArgument:
		return status.Error(codes.InvalidArgument, err.Error())
	case outline.KindCanceled:
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
