// ABOUTME: Record store contract: save, read and delete content nodes by identifier
// ABOUTME: Staged batches allow backends with transactions to commit several writes at once

// Package store defines the persistence contract for outline records and a
// staged write batch that transactional backends can commit atomically.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nainya/outlinestore/pkg/node"
)

var (
	// ErrNotFound is returned when no record exists for an identifier.
	ErrNotFound = errors.New("store: record not found")

	// ErrInvalidID is returned for identifiers a backend cannot address.
	ErrInvalidID = errors.New("store: invalid identifier")
)

// Store durably maps an identifier to a content node. Save is self-addressing:
// the key is always the node's meta.uuid.
type Store interface {
	Save(ctx context.Context, n *node.ContentNode) error
	Read(ctx context.Context, id string) (*node.ContentNode, error)
	Delete(ctx context.Context, id string) error
}

// Committer is implemented by stores that can apply a whole batch atomically.
type Committer interface {
	Commit(ctx context.Context, b *Batch) error
}

// OpKind is the kind of a staged operation.
type OpKind uint8

const (
	OpSave OpKind = iota + 1
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpSave:
		return "save"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Op is one staged write.
type Op struct {
	Kind OpKind
	ID   string
	Node *node.ContentNode // set for OpSave
}

// Batch is an ordered list of writes staged by a single outline edit.
type Batch struct {
	ops []Op
}

// Save stages a save of n.
func (b *Batch) Save(n *node.ContentNode) *Batch {
	b.ops = append(b.ops, Op{Kind: OpSave, ID: n.ID(), Node: n})
	return b
}

// Delete stages removal of id.
func (b *Batch) Delete(id string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDelete, ID: id})
	return b
}

// Ops returns the staged operations in order.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Apply writes the batch one operation at a time. A failure stops the batch and
// leaves earlier operations committed.
func Apply(ctx context.Context, s Store, b *Batch) error {
	for i, op := range b.ops {
		var err error
		switch op.Kind {
		case OpSave:
			err = s.Save(ctx, op.Node)
		case OpDelete:
			err = s.Delete(ctx, op.ID)
		default:
			err = fmt.Errorf("store: unknown op %v", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("store: %s %s (op %d of %d): %w", op.Kind, op.ID, i+1, len(b.ops), err)
		}
	}
	return nil
}
