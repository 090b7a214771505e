// ABOUTME: Outline manager: CRUD plus structural edits over first-child/next-sibling records
// ABOUTME: Each edit reads the affected records, rewrites their pointers, and commits one batch

// Package outline edits an outline persisted as first-child/next-sibling
// records. Every structural operation touches at most three records and never
// walks the tree, so callers name the adjacent record (the "parent") that
// currently points at the target.
package outline

import (
	"context"
	"errors"
	"fmt"

	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/store"
)

// Manager is stateless apart from its configuration and is safe for
// concurrent use. Concurrent edits touching the same records race; callers
// serialize them.
type Manager struct {
	baseURL string
	store   store.Store
	opts    Options
}

// New returns a manager that derives references from baseURL and persists through s.
func New(baseURL string, s store.Store, opts Options) *Manager {
	return &Manager{
		baseURL: baseURL,
		store:   s,
		opts:    opts.withDefaults(),
	}
}

// BaseURL returns the base address used to derive references.
func (m *Manager) BaseURL() string {
	return m.baseURL
}

// Store returns the underlying record store.
func (m *Manager) Store() store.Store {
	return m.store
}

// Create persists a detached record for value. A missing uuid, createdAt or
// baseUrl is filled in before saving.
func (m *Manager) Create(ctx context.Context, value node.Value) (*node.ContentNode, error) {
	n, err := m.newNode("create", value)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, n); err != nil {
		return nil, fmt.Errorf("outline: create %s: %w", n.ID(), err)
	}
	return n, nil
}

// Read returns the record stored under id.
func (m *Manager) Read(ctx context.Context, id string) (*node.ContentNode, error) {
	id = IDFromReference(id)
	if id == "" {
		return nil, invalidArg("read", "empty identifier")
	}
	n, err := m.store.Read(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("outline: node %s: %w", id, err)
		}
		return nil, fmt.Errorf("outline: read %s: %w", id, err)
	}
	return n, nil
}

// Update replaces the stored record with n wholesale, pointers included.
func (m *Manager) Update(ctx context.Context, n *node.ContentNode) error {
	if n == nil || n.ID() == "" {
		return invalidArg("update", "node has no identifier")
	}
	if err := checkID("update", n.ID()); err != nil {
		return err
	}
	if n.Value.Body == nil {
		return invalidArg("update", "node %s has no body", n.ID())
	}
	if err := m.store.Save(ctx, n); err != nil {
		return fmt.Errorf("outline: update %s: %w", n.ID(), err)
	}
	return nil
}

// Delete removes id. When parent is given, the parent's pointer to id is
// replaced by id's next sibling first. Whatever id.child referenced is left
// unreferenced; deleting subtrees is up to the caller.
func (m *Manager) Delete(ctx context.Context, id, parent string) error {
	id, parent = IDFromReference(id), IDFromReference(parent)
	if id == "" {
		return invalidArg("delete", "empty identifier")
	}
	if id == parent {
		return invalidArg("delete", "node %s cannot be its own parent", id)
	}

	b := new(store.Batch)
	if parent != "" {
		x, p, err := m.readPair(ctx, id, parent)
		if err != nil {
			return err
		}
		switch {
		case refersTo(p.Next, id):
			p.Next = x.Next
		case refersTo(p.Child, id):
			p.Child = x.Next
		case m.opts.TrustAdjacency:
			p.Next = x.Next
		default:
			return &InvariantError{Op: "delete", ID: id, Parent: parent, Reason: "parent does not reference node"}
		}
		b.Save(p)
	} else if _, err := m.Read(ctx, id); err != nil {
		// Committers treat staged deletes of absent ids as done.
		return err
	}
	b.Delete(id)
	return m.commit(ctx, "delete", b)
}

// MoveUp swaps id with its preceding sibling parent, so that parent now
// follows id. The record pointing at parent, if any, must be named with
// WithPredecessor to be relinked to id.
func (m *Manager) MoveUp(ctx context.Context, id, parent string, opts ...EditOption) error {
	id, parent = IDFromReference(id), IDFromReference(parent)
	if err := checkPair("moveUp", id, parent); err != nil {
		return err
	}
	cfg := applyEditOptions(opts)

	x, p, err := m.readPair(ctx, id, parent)
	if err != nil {
		return err
	}
	if !m.opts.TrustAdjacency && !refersTo(p.Next, id) {
		return &InvariantError{Op: "moveUp", ID: id, Parent: parent, Reason: "parent.next does not reference node"}
	}

	p.Next = x.Next
	x.Next = node.Ref(m.Reference(parent))

	b := new(store.Batch).Save(x).Save(p)
	if err := m.relinkPredecessor(ctx, b, "moveUp", cfg.predecessor, parent, id, x, p); err != nil {
		return err
	}
	return m.commit(ctx, "moveUp", b)
}

// MoveDown swaps id with its following sibling. It is a no-op when id has no
// next sibling. The record pointing at id, if any, must be named with
// WithPredecessor to be relinked to the sibling.
func (m *Manager) MoveDown(ctx context.Context, id string, opts ...EditOption) error {
	id = IDFromReference(id)
	if id == "" {
		return invalidArg("moveDown", "empty identifier")
	}
	cfg := applyEditOptions(opts)

	x, err := m.Read(ctx, id)
	if err != nil {
		return err
	}
	if x.Next == nil {
		return nil
	}
	nextID := IDFromReference(*x.Next)
	if nextID == id {
		return &InvariantError{Op: "moveDown", ID: id, Reason: "node references itself"}
	}
	y, err := m.Read(ctx, nextID)
	if err != nil {
		return err
	}

	x.Next = y.Next
	y.Next = node.Ref(m.Reference(id))

	b := new(store.Batch).Save(x).Save(y)
	if err := m.relinkPredecessor(ctx, b, "moveDown", cfg.predecessor, id, nextID, x, y); err != nil {
		return err
	}
	return m.commit(ctx, "moveDown", b)
}

// Indent makes id the first child of its preceding sibling parent. The
// siblings that followed id now follow parent.
func (m *Manager) Indent(ctx context.Context, id, parent string) error {
	id, parent = IDFromReference(id), IDFromReference(parent)
	if err := checkPair("indent", id, parent); err != nil {
		return err
	}

	x, p, err := m.readPair(ctx, id, parent)
	if err != nil {
		return err
	}
	if !m.opts.TrustAdjacency {
		if !refersTo(p.Next, id) {
			return &InvariantError{Op: "indent", ID: id, Parent: parent, Reason: "parent.next does not reference node"}
		}
		if p.Child != nil {
			return &InvariantError{Op: "indent", ID: id, Parent: parent, Reason: "parent already has children"}
		}
	}

	p.Child = node.Ref(m.Reference(id))
	p.Next = x.Next
	x.Next = nil

	return m.commit(ctx, "indent", new(store.Batch).Save(x).Save(p))
}

// UnIndent lifts id, the first child of parent, to become parent's next
// sibling. Siblings that followed id remain children of parent.
func (m *Manager) UnIndent(ctx context.Context, id, parent string) error {
	id, parent = IDFromReference(id), IDFromReference(parent)
	if err := checkPair("unIndent", id, parent); err != nil {
		return err
	}

	x, p, err := m.readPair(ctx, id, parent)
	if err != nil {
		return err
	}
	if !m.opts.TrustAdjacency && !refersTo(p.Child, id) {
		return &InvariantError{Op: "unIndent", ID: id, Parent: parent, Reason: "parent.child does not reference node"}
	}

	parentNext := p.Next
	p.Child = x.Next
	p.Next = node.Ref(m.Reference(id))
	x.Next = parentNext

	return m.commit(ctx, "unIndent", new(store.Batch).Save(x).Save(p))
}

// Add creates a record for value and links it directly after parent, or as
// parent's first child when asChild is set. Existing siblings or children
// follow the new record.
func (m *Manager) Add(ctx context.Context, value node.Value, parent string, asChild bool) (*node.ContentNode, error) {
	parent = IDFromReference(parent)
	if parent == "" {
		return nil, invalidArg("add", "empty parent identifier")
	}
	n, err := m.newNode("add", value)
	if err != nil {
		return nil, err
	}
	if n.ID() == parent {
		return nil, invalidArg("add", "node %s cannot be its own parent", parent)
	}
	p, err := m.Read(ctx, parent)
	if err != nil {
		return nil, err
	}

	ref := node.Ref(m.Reference(n.ID()))
	if asChild {
		n.Next = p.Child
		p.Child = ref
	} else {
		n.Next = p.Next
		p.Next = ref
	}

	if err := m.commit(ctx, "add", new(store.Batch).Save(n).Save(p)); err != nil {
		return nil, err
	}
	return n, nil
}

// Children returns the direct children of id in order.
func (m *Manager) Children(ctx context.Context, id string) ([]*node.ContentNode, error) {
	x, err := m.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	var out []*node.ContentNode
	seen := map[string]bool{x.ID(): true}
	for ptr := x.Child; ptr != nil; {
		cid := IDFromReference(*ptr)
		if seen[cid] {
			return nil, &InvariantError{Op: "children", ID: x.ID(), Reason: fmt.Sprintf("cycle at %s", cid)}
		}
		seen[cid] = true

		c, err := m.Read(ctx, cid)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		ptr = c.Next
	}
	return out, nil
}

func (m *Manager) newNode(op string, value node.Value) (*node.ContentNode, error) {
	if value.Body == nil {
		return nil, invalidArg(op, "value has no body")
	}
	if value.Meta.UUID == "" {
		value.Meta.UUID = m.opts.NewID()
	} else if err := checkID(op, value.Meta.UUID); err != nil {
		return nil, err
	}
	if value.Meta.CreatedAt.IsZero() {
		value.Meta.CreatedAt = m.opts.Now()
	}
	if value.Meta.BaseURL == "" {
		value.Meta.BaseURL = m.baseURL
	}
	return node.New(value), nil
}

// readPair loads both records before anything is written.
func (m *Manager) readPair(ctx context.Context, id, parent string) (*node.ContentNode, *node.ContentNode, error) {
	x, err := m.Read(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := m.Read(ctx, parent)
	if err != nil {
		return nil, nil, err
	}
	return x, p, nil
}

// relinkPredecessor repoints pred from first to second. The pair records are
// passed in so a predecessor equal to neither is read fresh.
func (m *Manager) relinkPredecessor(ctx context.Context, b *store.Batch, op, pred, first, second string, pair ...*node.ContentNode) error {
	if pred == "" {
		return nil
	}
	for _, n := range pair {
		if n.ID() == pred {
			return invalidArg(op, "predecessor %s is part of the swapped pair", pred)
		}
	}
	g, err := m.Read(ctx, pred)
	if err != nil {
		return err
	}
	ref := node.Ref(m.Reference(second))
	switch {
	case refersTo(g.Next, first):
		g.Next = ref
	case refersTo(g.Child, first):
		g.Child = ref
	case m.opts.TrustAdjacency:
		g.Next = ref
	default:
		return &InvariantError{Op: op, ID: first, Parent: pred, Reason: "predecessor does not reference node"}
	}
	b.Save(g)
	return nil
}

func (m *Manager) commit(ctx context.Context, op string, b *store.Batch) error {
	var err error
	if c, ok := m.store.(store.Committer); ok && m.opts.Commit == CommitAtomic {
		err = c.Commit(ctx, b)
	} else {
		err = store.Apply(ctx, m.store, b)
	}
	if err != nil {
		return fmt.Errorf("outline: %s: %w", op, err)
	}
	return nil
}

func checkPair(op, id, parent string) error {
	if id == "" || parent == "" {
		return invalidArg(op, "identifier and parent are required")
	}
	if id == parent {
		return invalidArg(op, "node %s cannot be its own parent", id)
	}
	return nil
}
