package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j := &Journal{Path: filepath.Join(t.TempDir(), "nodes.journal")}
	if err := j.Open(); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestEntryEncodeDecode(t *testing.T) {
	entry := &Entry{
		Seq:    42,
		Batch:  7,
		Op:     OpSave,
		ID:     "node-1",
		Record: []byte(`{"value":{},"next":null,"child":null}`),
		Time:   time.Unix(0, 1700000000123456789),
	}

	decoded, err := DecodeEntry(entry.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.Seq != entry.Seq || decoded.Batch != entry.Batch || decoded.Op != entry.Op {
		t.Errorf("header mismatch: got %v, want %v", decoded, entry)
	}
	if decoded.ID != entry.ID {
		t.Errorf("ID mismatch: got %q, want %q", decoded.ID, entry.ID)
	}
	if string(decoded.Record) != string(entry.Record) {
		t.Errorf("Record mismatch: got %s", decoded.Record)
	}
	if !decoded.Time.Equal(entry.Time) {
		t.Errorf("Time mismatch: got %v, want %v", decoded.Time, entry.Time)
	}
}

func TestDecodeCorrupted(t *testing.T) {
	entry := &Entry{Seq: 1, Batch: 1, Op: OpDelete, ID: "x"}
	data := entry.Encode()
	data[HeaderSize] ^= 0xff

	if _, err := DecodeEntry(data); err != ErrCorrupted {
		t.Errorf("expected ErrCorrupted, got %v", err)
	}
	if _, err := DecodeEntry(data[:10]); err != ErrTruncated {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestLogBatchPending(t *testing.T) {
	j := openTestJournal(t)

	id, err := j.LogBatch([]Entry{
		{Op: OpSave, ID: "a", Record: []byte("A")},
		{Op: OpSave, ID: "b", Record: []byte("B")},
	})
	if err != nil {
		t.Fatalf("LogBatch failed: %v", err)
	}

	batches, err := j.Pending()
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 pending batch, got %d", len(batches))
	}
	if batches[0].ID != id || len(batches[0].Entries) != 2 {
		t.Errorf("unexpected batch: %+v", batches[0])
	}
	if batches[0].Entries[1].ID != "b" {
		t.Errorf("entries out of order")
	}
}

func TestCheckpointClearsPending(t *testing.T) {
	j := openTestJournal(t)

	if _, err := j.LogBatch([]Entry{{Op: OpDelete, ID: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := j.Checkpoint(); err != nil {
		t.Fatal(err)
	}
	if _, err := j.LogBatch([]Entry{{Op: OpSave, ID: "b", Record: []byte("B")}}); err != nil {
		t.Fatal(err)
	}

	batches, err := j.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 || batches[0].Entries[0].ID != "b" {
		t.Fatalf("expected only batch after checkpoint, got %+v", batches)
	}
}

func TestCheckpointCompacts(t *testing.T) {
	j := openTestJournal(t)
	j.CompactSize = 1

	if _, err := j.LogBatch([]Entry{{Op: OpSave, ID: "a", Record: []byte("A")}}); err != nil {
		t.Fatal(err)
	}
	if err := j.Checkpoint(); err != nil {
		t.Fatal(err)
	}
	if j.Size() != 0 {
		t.Errorf("expected truncated journal, size=%d", j.Size())
	}

	batches, err := j.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 0 {
		t.Errorf("expected no pending batches, got %d", len(batches))
	}
}

func TestUncommittedBatchIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.journal")

	// A save without its commit marker, as left by a crash mid-append.
	e := Entry{Seq: 1, Batch: 1, Op: OpSave, ID: "a", Record: []byte("A"), Time: time.Now()}
	if err := os.WriteFile(path, e.Encode(), 0644); err != nil {
		t.Fatal(err)
	}

	j := &Journal{Path: path}
	if err := j.Open(); err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	batches, err := j.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 0 {
		t.Errorf("uncommitted batch should not be pending")
	}

	// Numbering resumes after the existing entry.
	id, err := j.LogBatch([]Entry{{Op: OpDelete, ID: "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Errorf("expected batch id 2, got %d", id)
	}
}

func TestTornTailIsDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.journal")

	j := &Journal{Path: path}
	if err := j.Open(); err != nil {
		t.Fatal(err)
	}
	if _, err := j.LogBatch([]Entry{{Op: OpSave, ID: "a", Record: []byte("A")}}); err != nil {
		t.Fatal(err)
	}
	j.Close()

	// Simulate a partial write after the committed batch.
	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	fd.Write([]byte{1, 2, 3, 4, 5})
	fd.Close()

	j = &Journal{Path: path}
	if err := j.Open(); err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	if _, err := j.LogBatch([]Entry{{Op: OpSave, ID: "b", Record: []byte("B")}}); err != nil {
		t.Fatal(err)
	}

	batches, err := j.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 pending batches after torn tail, got %d", len(batches))
	}
}

func TestReplay(t *testing.T) {
	j := openTestJournal(t)

	j.LogBatch([]Entry{{Op: OpSave, ID: "a", Record: []byte("A")}, {Op: OpDelete, ID: "z"}})
	j.LogBatch([]Entry{{Op: OpSave, ID: "b", Record: []byte("B")}})

	var seen []string
	n, err := j.Replay(func(op Op, id string, record []byte) error {
		seen = append(seen, op.String()+":"+id)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 replayed operations, got %d", n)
	}
	want := []string{"SAVE:a", "DELETE:z", "SAVE:b"}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("replay[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestClosedJournal(t *testing.T) {
	j := openTestJournal(t)
	j.Close()

	if _, err := j.LogBatch(nil); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := j.Checkpoint(); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
