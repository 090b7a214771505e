// ABOUTME: In-process record store backed by a map of encoded records
// ABOUTME: Used by tests and by the "memory" backend

package store

import (
	"context"
	"sync"

	"github.com/nainya/outlinestore/pkg/node"
)

// Memory keeps encoded records in a map. Records are stored in their canonical
// encoding so callers never share pointers with the store.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

func (m *Memory) Save(ctx context.Context, n *node.ContentNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := n.Encode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records[n.ID()] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Read(ctx context.Context, id string) (*node.ContentNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return node.Decode(data)
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// Commit applies the batch under a single lock.
func (m *Memory) Commit(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	staged := make(map[string][]byte, b.Len())
	for _, op := range b.Ops() {
		if op.Kind != OpSave {
			continue
		}
		data, err := op.Node.Encode()
		if err != nil {
			return err
		}
		staged[op.ID] = data
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range b.Ops() {
		switch op.Kind {
		case OpSave:
			m.records[op.ID] = staged[op.ID]
		case OpDelete:
			delete(m.records, op.ID)
		}
	}
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
