package outline

import (
	"time"

	"github.com/google/uuid"
)

// CommitPolicy selects how the writes of one edit reach the store.
type CommitPolicy int

const (
	// CommitSequential issues each write in order and stops at the first
	// failure. Earlier writes are not rolled back.
	CommitSequential CommitPolicy = iota

	// CommitAtomic hands the whole edit to the store in one call when the
	// store implements store.Committer, and falls back to sequential otherwise.
	CommitAtomic
)

func (p CommitPolicy) String() string {
	if p == CommitAtomic {
		return "atomic"
	}
	return "sequential"
}

// Options tune a Manager. The zero value validates adjacency and commits sequentially.
type Options struct {
	// TrustAdjacency skips checking that the caller-supplied parent actually
	// points at the target. Edits then rewrite pointers blindly.
	TrustAdjacency bool

	Commit CommitPolicy

	// NewID allocates identifiers for created nodes. Defaults to random UUIDs.
	NewID func() string

	// Now stamps createdAt on created nodes. Defaults to time.Now in UTC.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// EditOption adjusts a single positional edit.
type EditOption func(*editConfig)

type editConfig struct {
	predecessor string
}

// WithPredecessor names the record that points at the first node of the
// pair being swapped by MoveUp or MoveDown. That record is relinked in the
// same edit so the swapped node is not lost.
func WithPredecessor(id string) EditOption {
	return func(c *editConfig) {
		c.predecessor = IDFromReference(id)
	}
}

func applyEditOptions(opts []EditOption) editConfig {
	var c editConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
