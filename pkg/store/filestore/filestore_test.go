package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/outlinestore/pkg/journal"
	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/store"
)

func newNode(id string) *node.ContentNode {
	return node.New(node.Value{
		Meta: node.Meta{
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Title:     id,
			UUID:      id,
			BaseURL:   "https://example.com/data",
		},
		Body: node.TextBody{Text: "content of " + id},
	})
}

func TestSaveCreatesDirectoryAndLayout(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "nodes")

	s, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	n := newNode("abc")
	n.Next = node.Ref("https://example.com/data/def.json")
	require.NoError(t, s.Save(ctx, n))

	data, err := os.ReadFile(filepath.Join(dir, "abc.json"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 3)
	assert.Equal(t, "https://example.com/data/def.json", raw["next"])
	assert.Nil(t, raw["child"])
}

func TestReadDelete(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, newNode("a")))

	got, err := s.Read(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID())
	assert.Equal(t, node.TextBody{Text: "content of a"}, got.Value.Body)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Read(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a"), store.ErrNotFound)
}

func TestSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)

	n := newNode("a")
	require.NoError(t, s.Save(ctx, n))
	require.NoError(t, s.Save(ctx, n))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestInvalidIdentifiers(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	for _, id := range []string{"", "..", "../escape", "a/b", ".journal"} {
		_, err := s.Read(ctx, id)
		assert.ErrorIs(t, err, store.ErrInvalidID, "id %q", id)
		assert.NotErrorIs(t, err, store.ErrNotFound, "id %q", id)
	}
}

func TestCommitWithJournal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir, Options{Journal: true})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(ctx, newNode("old")))

	b := new(store.Batch).Save(newNode("a")).Save(newNode("b")).Delete("old")
	require.NoError(t, s.Commit(ctx, b))

	for _, id := range []string{"a", "b"} {
		_, err := s.Read(ctx, id)
		assert.NoError(t, err, id)
	}
	_, err = s.Read(ctx, "old")
	assert.ErrorIs(t, err, store.ErrNotFound)

	pending, err := s.journal.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCommitWithoutJournal(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	require.NoError(t, s.Commit(ctx, new(store.Batch).Save(newNode("a"))))
	_, err = s.Read(ctx, "a")
	assert.NoError(t, err)
}

func TestOpenReplaysCommittedBatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// A batch that was logged and committed but never applied.
	record, err := newNode("a").Encode()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gone.json"), []byte("{}"), 0644))

	j := &journal.Journal{Path: filepath.Join(dir, JournalName)}
	require.NoError(t, j.Open())
	_, err = j.LogBatch([]journal.Entry{
		{Op: journal.OpSave, ID: "a", Record: record},
		{Op: journal.OpDelete, ID: "gone"},
		{Op: journal.OpDelete, ID: "never-existed"},
	})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	s, err := Open(dir, Options{Journal: true})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Read(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID())

	_, err = os.Stat(filepath.Join(dir, "gone.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestCommitReplaysPartiallyAppliedBatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir, Options{Journal: true})
	require.NoError(t, err)
	defer s.Close()

	// A directory in place of b.json makes the rename for b fail.
	blocker := filepath.Join(dir, "b.json")
	require.NoError(t, os.Mkdir(blocker, 0755))

	err = s.Commit(ctx, new(store.Batch).Save(newNode("a")).Save(newNode("b")))
	require.Error(t, err)

	// Still blocked: the next commit must not run ahead of the failed batch.
	err = s.Commit(ctx, new(store.Batch).Save(newNode("c")))
	require.Error(t, err)
	_, err = s.Read(ctx, "c")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, s.Commit(ctx, new(store.Batch).Save(newNode("c"))))

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Read(ctx, id)
		assert.NoError(t, err, id)
	}
	pending, err := s.journal.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)

	changes := make(chan Change, 16)
	ready := make(chan error, 1)
	go func() {
		ready <- s.Watch(ctx, func(c Change) { changes <- c })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ext.json"), []byte("{}"), 0644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.ID == "ext" && c.Kind == ChangeWritten {
				cancel()
				assert.NoError(t, <-ready)
				return
			}
		case err := <-ready:
			t.Fatalf("watch returned early: %v", err)
		case <-deadline:
			t.Fatal("no change observed")
		}
	}
}

func TestChangeForIgnoresTemporaryFiles(t *testing.T) {
	_, ok := changeFor(fsnotifyEvent(".a.123.tmp"))
	assert.False(t, ok)
	_, ok = changeFor(fsnotifyEvent(JournalName))
	assert.False(t, ok)
	c, ok := changeFor(fsnotifyEvent("a.json"))
	assert.True(t, ok)
	assert.Equal(t, "a", c.ID)
}

func fsnotifyEvent(name string) fsnotify.Event {
	return fsnotify.Event{Name: filepath.Join("/nodes", name), Op: fsnotify.Create}
}
