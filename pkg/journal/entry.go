package journal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

// Op is the kind of a journal entry.
type Op byte

const (
	// OpSave stages a record write
	OpSave Op = 1

	// OpDelete stages a record removal
	OpDelete Op = 2

	// OpCommit marks every entry of its batch as durable intent
	OpCommit Op = 3

	// OpCheckpoint marks every earlier batch as applied
	OpCheckpoint Op = 4
)

func (o Op) String() string {
	switch o {
	case OpSave:
		return "SAVE"
	case OpDelete:
		return "DELETE"
	case OpCommit:
		return "COMMIT"
	case OpCheckpoint:
		return "CHECKPOINT"
	default:
		return "UNKNOWN"
	}
}

// HeaderSize is the fixed entry header:
// Seq(8) + Batch(8) + Op(1) + Reserved(3) + IDLen(4) + RecordLen(4) + UnixNano(8)
const HeaderSize = 36

// Entry is one framed journal record.
type Entry struct {
	Seq    uint64 // position in the journal, strictly increasing
	Batch  uint64 // batch the entry belongs to, 0 for checkpoints
	Op     Op
	ID     string // record identifier for save/delete
	Record []byte // encoded record for save
	Time   time.Time
}

// Encode frames the entry as [header][id][record][crc32].
func (e *Entry) Encode() []byte {
	idLen := len(e.ID)
	recLen := len(e.Record)
	buf := make([]byte, HeaderSize+idLen+recLen+4)

	binary.LittleEndian.PutUint64(buf[0:8], e.Seq)
	binary.LittleEndian.PutUint64(buf[8:16], e.Batch)
	buf[16] = byte(e.Op)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(idLen))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(recLen))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(e.Time.UnixNano()))

	off := HeaderSize
	off += copy(buf[off:], e.ID)
	off += copy(buf[off:], e.Record)

	binary.LittleEndian.PutUint32(buf[off:], crc32.ChecksumIEEE(buf[:off]))
	return buf
}

// bodyLen returns the number of bytes following a header, checksum included.
func bodyLen(header []byte) int {
	idLen := binary.LittleEndian.Uint32(header[20:24])
	recLen := binary.LittleEndian.Uint32(header[24:28])
	return int(idLen) + int(recLen) + 4
}

// DecodeEntry parses a framed entry and verifies its checksum.
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < HeaderSize+4 {
		return nil, ErrTruncated
	}
	if len(data) < HeaderSize+bodyLen(data) {
		return nil, ErrTruncated
	}

	n := len(data)
	if binary.LittleEndian.Uint32(data[n-4:]) != crc32.ChecksumIEEE(data[:n-4]) {
		return nil, ErrCorrupted
	}

	idLen := int(binary.LittleEndian.Uint32(data[20:24]))
	recLen := int(binary.LittleEndian.Uint32(data[24:28]))

	e := &Entry{
		Seq:   binary.LittleEndian.Uint64(data[0:8]),
		Batch: binary.LittleEndian.Uint64(data[8:16]),
		Op:    Op(data[16]),
		Time:  time.Unix(0, int64(binary.LittleEndian.Uint64(data[28:36]))),
	}

	off := HeaderSize
	e.ID = string(data[off : off+idLen])
	off += idLen
	if recLen > 0 {
		e.Record = make([]byte, recLen)
		copy(e.Record, data[off:off+recLen])
	}
	return e, nil
}

// Size returns the encoded size of the entry.
func (e *Entry) Size() int {
	return HeaderSize + len(e.ID) + len(e.Record) + 4
}

func (e *Entry) String() string {
	return fmt.Sprintf("journal[seq=%d batch=%d op=%s id=%q record=%dB]",
		e.Seq, e.Batch, e.Op, e.ID, len(e.Record))
}
