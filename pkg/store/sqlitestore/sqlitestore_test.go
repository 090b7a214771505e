package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "outline.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newNode(id string) *node.ContentNode {
	return node.New(node.Value{
		Meta: node.Meta{
			CreatedAt: time.Date(2024, 5, 5, 8, 30, 0, 0, time.UTC),
			Title:     id,
			UUID:      id,
			BaseURL:   "https://example.com/data",
		},
		Body: node.ReferenceBody{Href: "https://example.com/data/ref.json"},
	})
}

func TestSaveReadOverwrite(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	n := newNode("a")
	require.NoError(t, s.Save(ctx, n))

	n.Child = node.Ref("https://example.com/data/c.json")
	require.NoError(t, s.Save(ctx, n))

	got, err := s.Read(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/data/c.json", node.Deref(got.Child))
	assert.Equal(t, node.ReferenceBody{Href: "https://example.com/data/ref.json"}, got.Value.Body)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReadAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Read(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "nope"), store.ErrNotFound)
}

func TestCommitRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	bad := node.New(node.Value{Body: node.TextBody{Text: "no id"}})
	err := s.Commit(ctx, new(store.Batch).Save(newNode("a")).Save(bad))
	require.Error(t, err)

	_, err = s.Read(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommitBatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Save(ctx, newNode("old")))

	require.NoError(t, s.Commit(ctx, new(store.Batch).Save(newNode("a")).Delete("old")))

	_, err := s.Read(ctx, "old")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Read(ctx, "a")
	assert.NoError(t, err)
}
