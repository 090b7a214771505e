package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultCompactSize is the journal size above which a checkpoint truncates the file.
const DefaultCompactSize = 4 << 20

// Journal is a single append-only intent log file.
type Journal struct {
	// Path is the journal file, e.g. "/data/nodes/.journal"
	Path string

	// CompactSize overrides DefaultCompactSize when non-zero
	CompactSize int64

	mu     sync.Mutex
	fd     *os.File
	seq    uint64
	batch  uint64
	size   int64
	closed bool
}

// Open opens or creates the journal and resumes sequence numbering after the
// last readable entry.
func (j *Journal) Open() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.Path), 0755); err != nil {
		return err
	}
	fd, err := os.OpenFile(j.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	entries, end, err := readAll(fd)
	if err != nil {
		fd.Close()
		return err
	}
	for _, e := range entries {
		if e.Seq > j.seq {
			j.seq = e.Seq
		}
		if e.Batch > j.batch {
			j.batch = e.Batch
		}
	}

	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return err
	}
	// Drop a torn tail so new entries are not appended behind garbage.
	if stat.Size() > end {
		if err := fd.Truncate(end); err != nil {
			fd.Close()
			return err
		}
	}

	j.fd = fd
	j.size = end
	j.closed = false
	return nil
}

// LogBatch appends a batch of save/delete entries followed by a commit marker
// and syncs the file. The returned batch ID identifies the batch in Pending.
func (j *Journal) LogBatch(entries []Entry) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.fd == nil {
		return 0, ErrClosed
	}

	j.batch++
	id := j.batch
	now := time.Now()

	var buf []byte
	for _, e := range entries {
		j.seq++
		e.Seq = j.seq
		e.Batch = id
		e.Time = now
		buf = append(buf, e.Encode()...)
	}
	j.seq++
	commit := Entry{Seq: j.seq, Batch: id, Op: OpCommit, Time: now}
	buf = append(buf, commit.Encode()...)

	if err := j.writeNoLock(buf); err != nil {
		return 0, err
	}
	return id, j.fd.Sync()
}

// Checkpoint records that every batch logged so far has been applied. Once the
// journal grows past its compaction size it is truncated instead.
func (j *Journal) Checkpoint() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.fd == nil {
		return ErrClosed
	}

	limit := j.CompactSize
	if limit == 0 {
		limit = DefaultCompactSize
	}
	if j.size >= limit {
		return j.resetNoLock()
	}

	j.seq++
	e := Entry{Seq: j.seq, Op: OpCheckpoint, Time: time.Now()}
	if err := j.writeNoLock(e.Encode()); err != nil {
		return err
	}
	return j.fd.Sync()
}

// Reset truncates the journal. Callers must have applied every pending batch.
func (j *Journal) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.fd == nil {
		return ErrClosed
	}
	return j.resetNoLock()
}

// Size returns the current file size in bytes.
func (j *Journal) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.size
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.fd == nil {
		return nil
	}
	j.closed = true
	return j.fd.Close()
}

// writeNoLock appends buf to the file (caller must hold mu)
func (j *Journal) writeNoLock(buf []byte) error {
	n, err := j.fd.Write(buf)
	j.size += int64(n)
	if err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// resetNoLock truncates the file (caller must hold mu)
func (j *Journal) resetNoLock() error {
	if err := j.fd.Truncate(0); err != nil {
		return fmt.Errorf("journal: truncate: %w", err)
	}
	if err := j.fd.Sync(); err != nil {
		return err
	}
	j.size = 0
	return nil
}
