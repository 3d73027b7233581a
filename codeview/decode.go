package codeview

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/pdb-apply/internal/stream"
)

// Errors
var (
	ErrInvalidRecord = errors.New("codeview: invalid symbol record")
	ErrTruncated     = errors.New("codeview: truncated symbol stream")
)

// DecodeError reports where decoding of a symbol stream stopped.
type DecodeError struct {
	Offset uint32 // stream offset of the record that could not be framed
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codeview: record at offset 0x%x: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// recordHeaderSize is the size of the length and kind prefix.
const recordHeaderSize = 4

// Decode decodes every record in a symbol stream. Offsets are relative to
// the start of data.
func Decode(data []byte) ([]Record, error) {
	return DecodeAt(data, 0)
}

// DecodeAt decodes every record in data, reporting each record offset as
// base plus its position in data. Module streams use base 4 because the
// record area follows a 4-byte signature, and scope end pointers are
// relative to the start of the stream.
//
// On a malformed length DecodeAt returns the records decoded so far together
// with a *DecodeError wrapping ErrTruncated or ErrInvalidRecord.
func DecodeAt(data []byte, base uint32) ([]Record, error) {
	var records []Record
	offset := 0
	for len(data)-offset >= recordHeaderSize {
		rec, size, err := DecodeRecord(data[offset:], base+uint32(offset))
		if err != nil {
			return records, &DecodeError{Offset: base + uint32(offset), Err: err}
		}
		records = append(records, rec)
		offset += size
	}
	return records, nil
}

// DecodeRecord decodes a single record from the start of data.
// It returns the record and the number of bytes consumed.
func DecodeRecord(data []byte, pos uint32) (Record, int, error) {
	r := stream.NewReader(data)

	// Record length does not include the length field itself.
	length, err := r.ReadU16()
	if err != nil {
		return nil, 0, ErrTruncated
	}
	kind, err := r.ReadU16()
	if err != nil {
		return nil, 0, ErrTruncated
	}
	if length < 2 {
		return nil, 0, ErrInvalidRecord
	}

	totalSize := int(length) + 2
	if totalSize > len(data) {
		return nil, 0, ErrTruncated
	}

	hdr := Header{Type: Kind(kind), Pos: pos}
	payload := data[recordHeaderSize:totalSize]

	rec, err := decodePayload(hdr, payload)
	if err != nil {
		raw := make([]byte, len(payload))
		copy(raw, payload)
		rec = &RawSym{Header: hdr, Data: raw}
	}
	return rec, totalSize, nil
}

func decodePayload(hdr Header, payload []byte) (Record, error) {
	f := stream.NewFields(payload)

	var rec Record
	switch hdr.Type {
	case S_SECTION:
		s := &SectionSym{Header: hdr}
		s.SectionNumber = f.U16()
		s.Alignment = f.U8()
		f.U8() // reserved
		s.RVA = f.U32()
		s.Length = f.U32()
		s.Characteristics = f.U32()
		s.Name = f.CString()
		rec = s

	case S_COFFGROUP:
		s := &CoffGroupSym{Header: hdr}
		s.Size = f.U32()
		s.Characteristics = f.U32()
		s.Offset = f.U32()
		s.Segment = f.U16()
		s.Name = f.CString()
		rec = s

	case S_GPROC32, S_LPROC32, S_GPROC32_ID, S_LPROC32_ID:
		s := &ProcSym{Header: hdr}
		s.Parent = f.U32()
		s.End = f.U32()
		s.Next = f.U32()
		s.CodeSize = f.U32()
		s.DbgStart = f.U32()
		s.DbgEnd = f.U32()
		s.TypeIndex = f.U32()
		s.CodeOffset = f.U32()
		s.Segment = f.U16()
		s.Flags = ProcFlags(f.U8())
		s.Name = f.CString()
		rec = s

	case S_THUNK32:
		s := &ThunkSym{Header: hdr}
		s.Parent = f.U32()
		s.End = f.U32()
		s.Next = f.U32()
		s.Offset = f.U32()
		s.Segment = f.U16()
		s.Length = f.U16()
		s.Ordinal = f.U8()
		s.Name = f.CString()
		rec = s

	case S_BLOCK32:
		s := &BlockSym{Header: hdr}
		s.Parent = f.U32()
		s.End = f.U32()
		s.CodeSize = f.U32()
		s.CodeOffset = f.U32()
		s.Segment = f.U16()
		s.Name = f.CString()
		rec = s

	case S_INLINESITE:
		s := &InlineSiteSym{Header: hdr}
		s.Parent = f.U32()
		s.End = f.U32()
		s.Inlinee = f.U32()
		// Binary annotations follow; the applier does not use them.
		rec = s

	case S_END, S_PROC_ID_END, S_INLINESITE_END:
		rec = &EndSym{Header: hdr}

	case S_GDATA32, S_LDATA32, S_GTHREAD32, S_LTHREAD32:
		s := &DataSym{Header: hdr}
		s.TypeIndex = f.U32()
		s.Offset = f.U32()
		s.Segment = f.U16()
		s.Name = f.CString()
		rec = s

	case S_PUB32:
		s := &PublicSym{Header: hdr}
		s.Flags = PublicFlags(f.U32())
		s.Offset = f.U32()
		s.Segment = f.U16()
		s.Name = f.CString()
		rec = s

	case S_LABEL32:
		s := &LabelSym{Header: hdr}
		s.Offset = f.U32()
		s.Segment = f.U16()
		s.Flags = ProcFlags(f.U8())
		s.Name = f.CString()
		rec = s

	case S_OBJNAME:
		s := &ObjNameSym{Header: hdr}
		s.Signature = f.U32()
		s.Name = f.CString()
		rec = s

	case S_COMPILE3:
		s := &CompileSym{Header: hdr}
		s.Flags = f.U32()
		s.Machine = f.U16()
		s.FrontendMajor = f.U16()
		s.FrontendMinor = f.U16()
		s.FrontendBuild = f.U16()
		s.FrontendQFE = f.U16()
		s.BackendMajor = f.U16()
		s.BackendMinor = f.U16()
		s.BackendBuild = f.U16()
		s.BackendQFE = f.U16()
		s.Version = f.CString()
		rec = s

	default:
		return &RawSym{Header: hdr, Data: f.Rest()}, nil
	}

	if err := f.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}
