package applicator

import (
	"fmt"

	"github.com/skdltmxn/pdb-apply/codeview"
)

// Stream is a replayable cursor over decoded symbol records.
// It is not safe for concurrent use; each run needs its own cursor.
type Stream struct {
	records []codeview.Record
	pos     int

	// byOffset maps record byte offsets to indices. Built on first use.
	byOffset map[uint32]int
}

// NewStream creates a Stream over records. The slice is not copied and
// must not be modified while the stream is in use.
func NewStream(records []codeview.Record) *Stream {
	return &Stream{records: records}
}

// Next returns the record at the cursor and advances past it.
func (s *Stream) Next() (codeview.Record, error) {
	rec, err := s.Peek()
	if err != nil {
		return nil, err
	}
	s.pos++
	return rec, nil
}

// Peek returns the record at the cursor without advancing.
func (s *Stream) Peek() (codeview.Record, error) {
	if s.pos >= len(s.records) {
		return nil, ErrEndOfStream
	}
	return s.records[s.pos], nil
}

// Position returns the index of the record at the cursor.
func (s *Stream) Position() int {
	return s.pos
}

// Len returns the total number of records.
func (s *Stream) Len() int {
	return len(s.records)
}

// Remaining returns the number of records not yet consumed.
func (s *Stream) Remaining() int {
	return len(s.records) - s.pos
}

// Seek moves the cursor to index. The cursor only moves forward; a target
// before the current position or past the end fails with ErrInvalidSeek
// and leaves the cursor unchanged.
func (s *Stream) Seek(index int) error {
	if index < s.pos || index > len(s.records) {
		return fmt.Errorf("%w: index %d (position %d, length %d)", ErrInvalidSeek, index, s.pos, len(s.records))
	}
	s.pos = index
	return nil
}

// advancePast moves the cursor just past index pos unless it is already
// beyond it, and reports whether it moved.
func (s *Stream) advancePast(pos int) bool {
	if s.pos > pos {
		return false
	}
	s.pos = min(pos+1, len(s.records))
	return true
}

// IndexOf returns the index of the record starting at the given byte offset,
// as referenced by scope end pointers.
func (s *Stream) IndexOf(offset uint32) (int, bool) {
	if s.byOffset == nil {
		s.byOffset = make(map[uint32]int, len(s.records))
		for i, rec := range s.records {
			if _, dup := s.byOffset[rec.StreamOffset()]; !dup {
				s.byOffset[rec.StreamOffset()] = i
			}
		}
	}
	i, ok := s.byOffset[offset]
	return i, ok
}

// Reset rewinds the cursor for another run.
func (s *Stream) Reset() {
	s.pos = 0
}
