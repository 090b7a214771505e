// ABOUTME: SQLite-backed record store, one row per node holding its JSON encoding
// ABOUTME: Commits a staged batch inside one SQL transaction

// Package sqlitestore keeps content nodes in a SQLite table.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/store"
)

// SchemaVersion is recorded in PRAGMA user_version.
const SchemaVersion = 1

// Store is a SQLite-backed record store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	// A single connection keeps writers serialized.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.setup(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: setup: %w", err)
	}
	return s, nil
}

func (s *Store) setup() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const createNodes = `
	CREATE TABLE IF NOT EXISTS nodes (
		uuid TEXT PRIMARY KEY,
		record TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := tx.Exec(createNodes); err != nil {
		return fmt.Errorf("create nodes table: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, n *node.ContentNode) error {
	return s.Commit(ctx, new(store.Batch).Save(n))
}

func (s *Store) Read(ctx context.Context, id string) (*node.ContentNode, error) {
	var record string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM nodes WHERE uuid = ?`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: read %s: %w", id, err)
	}
	return node.Decode([]byte(record))
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE uuid = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Commit applies every staged operation in one transaction.
func (s *Store) Commit(ctx context.Context, b *store.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, op := range b.Ops() {
		if op.ID == "" {
			return fmt.Errorf("sqlitestore: empty identifier")
		}
		switch op.Kind {
		case store.OpSave:
			data, err := op.Node.Encode()
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO nodes (uuid, record, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(uuid) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at
			`, op.ID, string(data), now)
			if err != nil {
				return fmt.Errorf("sqlitestore: save %s: %w", op.ID, err)
			}
		case store.OpDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE uuid = ?`, op.ID); err != nil {
				return fmt.Errorf("sqlitestore: delete %s: %w", op.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&n)
	return n, err
}
