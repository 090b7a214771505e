package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/outline"
)

// Client calls the outline service over a gRPC connection. Errors carrying
// NotFound, FailedPrecondition or InvalidArgument codes match the matching
// outline sentinel with errors.Is.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Create(ctx context.Context, value node.Value) (*node.ContentNode, error) {
	return c.callNode(ctx, "Create", &NodeRequest{Value: &value})
}

func (c *Client) Read(ctx context.Context, id string) (*node.ContentNode, error) {
	return c.callNode(ctx, "Read", &NodeRequest{UUID: id})
}

func (c *Client) Update(ctx context.Context, n *node.ContentNode) (*node.ContentNode, error) {
	return c.callNode(ctx, "Update", &NodeRequest{UUID: n.ID(), Node: n})
}

func (c *Client) Delete(ctx context.Context, id, parent string) error {
	return c.callEmpty(ctx, "Delete", &NodeRequest{UUID: id, ParentUUID: parent})
}

// MoveUp swaps id with parent. predecessor may be empty.
func (c *Client) MoveUp(ctx context.Context, id, parent, predecessor string) error {
	return c.callEmpty(ctx, "MoveUp", &NodeRequest{UUID: id, ParentUUID: parent, PredecessorUUID: predecessor})
}

// MoveDown swaps id with its next sibling. predecessor may be empty.
func (c *Client) MoveDown(ctx context.Context, id, predecessor string) error {
	return c.callEmpty(ctx, "MoveDown", &NodeRequest{UUID: id, PredecessorUUID: predecessor})
}

func (c *Client) Indent(ctx context.Context, id, parent string) error {
	return c.callEmpty(ctx, "Indent", &NodeRequest{UUID: id, ParentUUID: parent})
}

func (c *Client) Unindent(ctx context.Context, id, parent string) error {
	return c.callEmpty(ctx, "Unindent", &NodeRequest{UUID: id, ParentUUID: parent})
}

func (c *Client) Add(ctx context.Context, value node.Value, parent string, asChild bool) (*node.ContentNode, error) {
	return c.callNode(ctx, "Add", &NodeRequest{Value: &value, ParentUUID: parent, AsChild: asChild})
}

func (c *Client) callNode(ctx context.Context, method string, req *NodeRequest, opts ...grpc.CallOption) (*node.ContentNode, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, fromStatus(err)
	}
	var n node.ContentNode
	if err := fromStruct(out, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) callEmpty(ctx context.Context, method string, req *NodeRequest, opts ...grpc.CallOption) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	if err := c.cc.Invoke(ctx, fullMethod(method), in, new(emptypb.Empty), opts...); err != nil {
		return fromStatus(err)
	}
	return nil
}

// statusError keeps the original status while matching an outline sentinel.
type statusError struct {
	st       *status.Status
	sentinel error
}

func (e *statusError) Error() string              { return e.st.Message() }
func (e *statusError) Unwrap() error              { return e.sentinel }
func (e *statusError) GRPCStatus() *status.Status { return e.st }

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = outline.ErrNotFound
	case codes.FailedPrecondition:
		sentinel = outline.ErrInvariantViolation
	case codes.InvalidArgument:
		sentinel = outline.ErrInvalidArgument
	default:
		return fmt.Errorf("outline rpc: %w", err)
	}
	return &statusError{st: st, sentinel: sentinel}
}
