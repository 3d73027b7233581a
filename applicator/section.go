package applicator

import (
	"math"

	"github.com/skdltmxn/pdb-apply/codeview"
)

// maxAlignmentLog2 is the largest section alignment PE/COFF can express (8192).
const maxAlignmentLog2 = 13

// sectionApplier applies S_SECTION records, registering the section and
// resolving its base when the layout knows it.
type sectionApplier struct{}

func (sectionApplier) Apply(s *Stream, c *Context) error {
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.SectionSym)
	if !ok {
		return mismatch("*codeview.SectionSym", rec)
	}

	if sym.SectionNumber == 0 {
		return malformed("section %q has number 0", sym.Name)
	}
	if sym.Alignment > maxAlignmentLog2 {
		return malformed("section %d alignment 2^%d exceeds 2^%d", sym.SectionNumber, sym.Alignment, maxAlignmentLog2)
	}
	if uint64(sym.RVA)+uint64(sym.Length) > math.MaxUint32 {
		return malformed("section %d [0x%x, +0x%x) overflows the 32-bit address space", sym.SectionNumber, sym.RVA, sym.Length)
	}

	var align uint32
	if sym.Alignment > 0 {
		align = 1 << sym.Alignment
	}
	c.defineSection(Section{
		Index:           sym.SectionNumber,
		Name:            sym.Name,
		RVA:             sym.RVA,
		Length:          sym.Length,
		Characteristics: sym.Characteristics,
		Alignment:       align,
	})
	return nil
}

// coffGroupApplier applies S_COFFGROUP records into the group table.
type coffGroupApplier struct{}

func (coffGroupApplier) Apply(s *Stream, c *Context) error {
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.CoffGroupSym)
	if !ok {
		return mismatch("*codeview.CoffGroupSym", rec)
	}

	if sym.Name == "" {
		return malformed("COFF group in segment %d has no name", sym.Segment)
	}
	if sym.Segment == 0 {
		return malformed("COFF group %q has segment 0", sym.Name)
	}
	if uint64(sym.Offset)+uint64(sym.Size) > math.MaxUint32 {
		return malformed("COFF group %q [0x%x, +0x%x) overflows its section", sym.Name, sym.Offset, sym.Size)
	}

	c.addGroup(sym.Name, sym.Segment, sym.Offset, sym.Size, sym.Characteristics)
	return nil
}
