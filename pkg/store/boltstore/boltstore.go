// ABOUTME: Bolt-backed record store with msgpack-encoded records
// ABOUTME: Commits a staged batch inside one bolt write transaction

// Package boltstore keeps content nodes in a single bbolt database file.
package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/store"
)

var nodesBucket = []byte("nodes")

// Options configures the bolt database.
type Options struct {
	// Timeout bounds waiting for the file lock held by another process.
	Timeout time.Duration
	// NoSync skips fsync on commit; only for tests.
	NoSync bool
}

// Store is a bbolt-backed record store.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = opts.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = 10 * time.Second
	}
	bopt.NoSync = opts.NoSync
	bopt.FreelistType = bbolt.FreelistMapType

	db, err := bbolt.Open(path, 0644, &bopt)
	if err != nil {
		return nil, fmt.Errorf("boltstore: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(nodesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Size returns the database size in bytes.
func (s *Store) Size() int64 {
	var size int64
	s.db.View(func(tx *bbolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size
}

func (s *Store) Save(ctx context.Context, n *node.ContentNode) error {
	return s.Commit(ctx, new(store.Batch).Save(n))
}

func (s *Store) Read(ctx context.Context, id string) (*node.ContentNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var n *node.ContentNode
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(nodesBucket).Get([]byte(id))
		if raw == nil {
			return store.ErrNotFound
		}
		var err error
		n, err = decode(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(nodesBucket)
		if b.Get([]byte(id)) == nil {
			return store.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// Commit applies every staged operation in one write transaction.
func (s *Store) Commit(ctx context.Context, batch *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(nodesBucket)
		for _, op := range batch.Ops() {
			if op.ID == "" {
				return fmt.Errorf("boltstore: empty identifier")
			}
			switch op.Kind {
			case store.OpSave:
				raw, err := encode(op.Node)
				if err != nil {
					return err
				}
				if err := b.Put([]byte(op.ID), raw); err != nil {
					return err
				}
			case store.OpDelete:
				if err := b.Delete([]byte(op.ID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	var n int
	s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(nodesBucket).Stats().KeyN
		return nil
	})
	return n
}

func encode(n *node.ContentNode) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&n.Record); err != nil {
		return nil, fmt.Errorf("boltstore: encode %s: %w", n.ID(), err)
	}
	return buf.Bytes(), nil
}

// decode copies out of raw, which is only valid inside the transaction.
func decode(raw []byte) (*node.ContentNode, error) {
	n := &node.ContentNode{}
	if err := msgpack.Unmarshal(raw, &n.Record); err != nil {
		return nil, fmt.Errorf("boltstore: decode: %w", err)
	}
	return n, nil
}
