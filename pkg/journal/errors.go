// Package journal implements the write-ahead intent log used to commit several
// record writes as one unit on stores without native transactions.
package journal

import "errors"

var (
	// ErrCorrupted indicates a checksum mismatch in an entry
	ErrCorrupted = errors.New("journal: corrupted entry")

	// ErrTruncated indicates an entry cut short, usually a torn tail after a crash
	ErrTruncated = errors.New("journal: truncated entry")

	// ErrClosed indicates an operation on a closed journal
	ErrClosed = errors.New("journal: closed")
)
