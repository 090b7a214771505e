package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/nainya/outlinestore/pkg/node"
)

// ChangeKind describes what happened to a node file.
type ChangeKind string

const (
	ChangeWritten ChangeKind = "written"
	ChangeRemoved ChangeKind = "removed"
)

// Change is a node file event observed in the store directory.
type Change struct {
	ID   string
	Kind ChangeKind
}

// Watch reports changes to node files until ctx is done. Temporary files and
// the journal are ignored; a save shows up as a single write of the final name.
func (s *Store) Watch(ctx context.Context, fn func(Change)) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("filestore: mkdir %s: %w", s.dir, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filestore: watch: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("filestore: watch %s: %w", s.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if c, ok := changeFor(ev); ok {
				fn(c)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("filestore: watch: %w", err)
		}
	}
}

func changeFor(ev fsnotify.Event) (Change, bool) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, node.FileExt) {
		return Change{}, false
	}
	id := strings.TrimSuffix(name, node.FileExt)

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return Change{ID: id, Kind: ChangeRemoved}, true
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		return Change{ID: id, Kind: ChangeWritten}, true
	}
	return Change{}, false
}
