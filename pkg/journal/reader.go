package journal

import (
	"errors"
	"io"
	"os"
)

// ReadFile reads every intact entry of a journal file. A missing file yields no entries.
func ReadFile(path string) ([]*Entry, error) {
	fd, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer fd.Close()
	entries, _, err := readAll(fd)
	return entries, err
}

// readAll reads entries from the start of f and returns the offset just past the
// last intact entry. Reading stops at the first torn or corrupted entry:
// everything after it was written by an interrupted append.
func readAll(f *os.File) ([]*Entry, int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}

	var entries []*Entry
	var end int64
	for {
		e, err := readEntry(f)
		if err == io.EOF {
			return entries, end, nil
		}
		if errors.Is(err, ErrTruncated) || errors.Is(err, ErrCorrupted) {
			return entries, end, nil
		}
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
		end += int64(e.Size())
	}
}

// maxBodySize bounds the length claimed by a header before allocating.
const maxBodySize = 64 << 20

// readEntry reads one framed entry from r.
func readEntry(r io.Reader) (*Entry, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrTruncated
		}
		return nil, err
	}

	n := bodyLen(header)
	if n > maxBodySize {
		return nil, ErrCorrupted
	}
	data := make([]byte, HeaderSize+n)
	copy(data, header)
	if _, err := io.ReadFull(r, data[HeaderSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrTruncated
		}
		return nil, err
	}
	return DecodeEntry(data)
}
