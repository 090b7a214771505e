// ABOUTME: One-file-per-node record store: <dir>/<uuid>.json holding {value, next, child}
// ABOUTME: Optional intent journal makes multi-record commits replayable after a crash

// Package filestore persists content nodes as individual JSON files.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nainya/outlinestore/pkg/journal"
	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/store"
)

// JournalName is the journal file kept alongside the node files.
const JournalName = ".journal"

// Options configures a file store.
type Options struct {
	// Journal enables the write-ahead intent log for Commit.
	Journal bool
}

// Store keeps one JSON file per node under Dir.
type Store struct {
	dir     string
	journal *journal.Journal

	mu sync.Mutex
	// stale is set when a logged batch failed to apply. The next Commit
	// replays it before logging anything else.
	stale bool
}

// Open creates a file store rooted at dir. With a journal, committed batches
// that were not fully applied before the last shutdown are replayed.
func Open(dir string, opts Options) (*Store, error) {
	s := &Store{dir: dir}
	if !opts.Journal {
		return s, nil
	}

	s.journal = &journal.Journal{Path: filepath.Join(dir, JournalName)}
	if err := s.journal.Open(); err != nil {
		return nil, fmt.Errorf("filestore: open journal: %w", err)
	}
	if err := s.recover(); err != nil {
		s.journal.Close()
		return nil, err
	}
	return s, nil
}

// Dir returns the directory holding node files.
func (s *Store) Dir() string {
	return s.dir
}

// Close closes the journal, if any.
func (s *Store) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, node.Location(id))
}

// Save ensures the directory exists and writes the node's canonical encoding.
func (s *Store) Save(ctx context.Context, n *node.ContentNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID(n.ID()); err != nil {
		return err
	}
	data, err := n.Encode()
	if err != nil {
		return err
	}
	return s.write(n.ID(), data)
}

func (s *Store) Read(ctx context.Context, id string) (*node.ContentNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("filestore: read %s: %w", id, err)
	}
	return node.Decode(data)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store.ErrNotFound
		}
		return fmt.Errorf("filestore: delete %s: %w", id, err)
	}
	return nil
}

// Commit applies a batch. Without a journal this is store.Apply. With one, the
// batch is logged and synced before any file changes, then applied and
// checkpointed; a crash in between is repaired by the next Open. A batch
// that fails to apply is replayed by the next Commit, which fails until the
// replay succeeds.
func (s *Store) Commit(ctx context.Context, b *store.Batch) error {
	if s.journal == nil {
		return store.Apply(ctx, s, b)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale {
		if err := s.recover(); err != nil {
			return err
		}
		s.stale = false
	}

	entries := make([]journal.Entry, 0, b.Len())
	for _, op := range b.Ops() {
		if err := checkID(op.ID); err != nil {
			return err
		}
		switch op.Kind {
		case store.OpSave:
			data, err := op.Node.Encode()
			if err != nil {
				return err
			}
			entries = append(entries, journal.Entry{Op: journal.OpSave, ID: op.ID, Record: data})
		case store.OpDelete:
			entries = append(entries, journal.Entry{Op: journal.OpDelete, ID: op.ID})
		}
	}

	if _, err := s.journal.LogBatch(entries); err != nil {
		return fmt.Errorf("filestore: log batch: %w", err)
	}
	for _, e := range entries {
		if err := s.apply(e.Op, e.ID, e.Record); err != nil {
			s.stale = true
			return err
		}
	}
	return s.journal.Checkpoint()
}

// recover replays committed batches left by an interrupted Commit.
func (s *Store) recover() error {
	if _, err := s.journal.Replay(s.apply); err != nil {
		return fmt.Errorf("filestore: recover: %w", err)
	}
	return s.journal.Checkpoint()
}

// apply performs one journaled operation. Replays must be idempotent, so
// deleting an absent file is not an error here.
func (s *Store) apply(op journal.Op, id string, record []byte) error {
	switch op {
	case journal.OpSave:
		return s.write(id, record)
	case journal.OpDelete:
		if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("filestore: delete %s: %w", id, err)
		}
		return nil
	default:
		return fmt.Errorf("filestore: unexpected journal op %s", op)
	}
}

// write replaces the node file through a temporary file and rename.
func (s *Store) write(id string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("filestore: mkdir %s: %w", s.dir, err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+id+".*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: write %s: %w", id, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("filestore: write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("filestore: write %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("filestore: write %s: %w", id, err)
	}
	return nil
}

// checkID rejects identifiers that would escape the store directory.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("filestore: %w %q", store.ErrInvalidID, id)
	}
	return nil
}
