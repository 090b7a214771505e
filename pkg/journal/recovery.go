package journal

import "fmt"

// Batch is a group of entries logged together by LogBatch.
type Batch struct {
	ID        uint64
	StartSeq  uint64
	Entries   []*Entry // save/delete entries in log order
	Committed bool
}

// ReplayFunc applies one save or delete during recovery.
type ReplayFunc func(op Op, id string, record []byte) error

// Pending returns the committed batches logged after the last checkpoint, in
// log order. Batches without a commit marker were interrupted before their
// intent became durable and are skipped.
func (j *Journal) Pending() ([]*Batch, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.fd == nil {
		return nil, ErrClosed
	}
	entries, _, err := readAll(j.fd)
	if err != nil {
		return nil, err
	}
	return pendingBatches(entries), nil
}

// Replay calls fn for every operation of every pending batch.
func (j *Journal) Replay(fn ReplayFunc) (int, error) {
	batches, err := j.Pending()
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, b := range batches {
		for _, e := range b.Entries {
			if err := fn(e.Op, e.ID, e.Record); err != nil {
				return replayed, fmt.Errorf("journal: replay failed at seq %d: %w", e.Seq, err)
			}
			replayed++
		}
	}
	return replayed, nil
}

func pendingBatches(entries []*Entry) []*Batch {
	start := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Op == OpCheckpoint {
			start = i + 1
			break
		}
	}

	byID := make(map[uint64]*Batch)
	var order []*Batch
	for _, e := range entries[start:] {
		if e.Op == OpCheckpoint {
			continue
		}
		b, ok := byID[e.Batch]
		if !ok {
			b = &Batch{ID: e.Batch, StartSeq: e.Seq}
			byID[e.Batch] = b
			order = append(order, b)
		}
		switch e.Op {
		case OpCommit:
			b.Committed = true
		case OpSave, OpDelete:
			b.Entries = append(b.Entries, e)
		}
	}

	var committed []*Batch
	for _, b := range order {
		if b.Committed {
			committed = append(committed, b)
		}
	}
	return committed
}
