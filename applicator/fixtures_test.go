package applicator

import "github.com/skdltmxn/pdb-apply/codeview"

// recs builds record sequences with increasing byte offsets, so End fields
// can refer to records appended later.
type recs struct {
	list []codeview.Record
}

func (b *recs) hdr(k codeview.Kind) codeview.Header {
	return codeview.Header{Type: k, Pos: uint32(len(b.list)) * 0x10}
}

func (b *recs) add(r codeview.Record) {
	b.list = append(b.list, r)
}

func (b *recs) section(num uint16, rva, length uint32) *codeview.SectionSym {
	s := &codeview.SectionSym{Header: b.hdr(codeview.S_SECTION), SectionNumber: num, RVA: rva, Length: length, Name: ".text"}
	b.add(s)
	return s
}

func (b *recs) proc(k codeview.Kind, name string, seg uint16, off, size uint32) *codeview.ProcSym {
	p := &codeview.ProcSym{Header: b.hdr(k), Name: name, Segment: seg, CodeOffset: off, CodeSize: size}
	b.add(p)
	return p
}

func (b *recs) block(seg uint16, off, size uint32) *codeview.BlockSym {
	s := &codeview.BlockSym{Header: b.hdr(codeview.S_BLOCK32), Segment: seg, CodeOffset: off, CodeSize: size}
	b.add(s)
	return s
}

func (b *recs) thunk(name string, seg uint16, off uint32) *codeview.ThunkSym {
	s := &codeview.ThunkSym{Header: b.hdr(codeview.S_THUNK32), Name: name, Segment: seg, Offset: off, Length: 5}
	b.add(s)
	return s
}

func (b *recs) inlineSite(inlinee uint32) *codeview.InlineSiteSym {
	s := &codeview.InlineSiteSym{Header: b.hdr(codeview.S_INLINESITE), Inlinee: inlinee}
	b.add(s)
	return s
}

// end appends an end record and returns its offset.
func (b *recs) end(k codeview.Kind) uint32 {
	h := b.hdr(k)
	b.add(&codeview.EndSym{Header: h})
	return h.Pos
}

func (b *recs) data(k codeview.Kind, name string, seg uint16, off uint32) *codeview.DataSym {
	s := &codeview.DataSym{Header: b.hdr(k), Name: name, Segment: seg, Offset: off, TypeIndex: 0x74}
	b.add(s)
	return s
}

func (b *recs) public(name string, seg uint16, off uint32) *codeview.PublicSym {
	s := &codeview.PublicSym{Header: b.hdr(codeview.S_PUB32), Name: name, Segment: seg, Offset: off, Flags: 0x2}
	b.add(s)
	return s
}

func (b *recs) label(name string, seg uint16, off uint32) *codeview.LabelSym {
	s := &codeview.LabelSym{Header: b.hdr(codeview.S_LABEL32), Name: name, Segment: seg, Offset: off}
	b.add(s)
	return s
}

func (b *recs) raw(k codeview.Kind) *codeview.RawSym {
	s := &codeview.RawSym{Header: b.hdr(k)}
	b.add(s)
	return s
}

func (b *recs) stream() *Stream {
	return NewStream(b.list)
}
