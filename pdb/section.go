package pdb

import (
	"fmt"

	"github.com/skdltmxn/pdb-apply/applicator"
	"github.com/skdltmxn/pdb-apply/internal/dbi"
	"github.com/skdltmxn/pdb-apply/internal/stream"
)

// Section characteristics used for display.
const (
	ScnCntCode              uint32 = 0x00000020
	ScnCntInitializedData   uint32 = 0x00000040
	ScnCntUninitializedData uint32 = 0x00000080
	ScnMemExecute           uint32 = 0x20000000
	ScnMemRead              uint32 = 0x40000000
	ScnMemWrite             uint32 = 0x80000000
)

// sectionHeaderSize is the size of IMAGE_SECTION_HEADER.
const sectionHeaderSize = 40

// SectionHeader is a PE section header as copied into the PDB by the linker.
type SectionHeader struct {
	Name                 string
	VirtualSize          uint32
	VirtualAddress       uint32 // RVA of the section
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// Flags renders the R/W/X memory permissions, e.g. "r-x".
func (s *SectionHeader) Flags() string {
	b := []byte("---")
	if s.Characteristics&ScnMemRead != 0 {
		b[0] = 'r'
	}
	if s.Characteristics&ScnMemWrite != 0 {
		b[1] = 'w'
	}
	if s.Characteristics&ScnMemExecute != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// SectionHeaders holds the PE section headers stored in the PDB.
type SectionHeaders struct {
	sections []SectionHeader
}

// Count returns the number of sections.
func (sh *SectionHeaders) Count() int {
	return len(sh.sections)
}

// All returns all section headers. Section numbers in symbols are 1-based
// indices into this slice.
func (sh *SectionHeaders) All() []SectionHeader {
	return sh.sections
}

// Get returns the header of the 1-based section number.
func (sh *SectionHeaders) Get(section uint16) (*SectionHeader, bool) {
	if section == 0 || int(section) > len(sh.sections) {
		return nil, false
	}
	return &sh.sections[section-1], true
}

// ToRVA converts section:offset to an RVA. It returns false for unknown
// sections.
func (sh *SectionHeaders) ToRVA(section uint16, offset uint32) (uint32, bool) {
	sec, ok := sh.Get(section)
	if !ok {
		return 0, false
	}
	return sec.VirtualAddress + offset, true
}

// FindSection returns the section number and offset containing rva.
func (sh *SectionHeaders) FindSection(rva uint32) (uint16, uint32, bool) {
	for i, sec := range sh.sections {
		if rva >= sec.VirtualAddress && uint64(rva) < uint64(sec.VirtualAddress)+uint64(sec.VirtualSize) {
			return uint16(i + 1), rva - sec.VirtualAddress, true
		}
	}
	return 0, 0, false
}

// Layout returns an applicator layout placing every section named by the
// headers relative to imageBase. Sections the headers do not list stay
// unresolved in the applicator.
func (sh *SectionHeaders) Layout(imageBase uint64) applicator.Layout {
	m := make(applicator.LayoutMap, len(sh.sections))
	for i := range sh.sections {
		m[uint16(i+1)] = imageBase
	}
	return m
}

func parseSectionHeaders(data []byte) (*SectionHeaders, error) {
	if len(data)%sectionHeaderSize != 0 {
		return nil, &ParseError{Stream: "section headers", Offset: int64(len(data) - len(data)%sectionHeaderSize), Message: "trailing partial header"}
	}
	f := stream.NewFields(data)
	sections := make([]SectionHeader, len(data)/sectionHeaderSize)
	for i := range sections {
		s := &sections[i]
		s.Name = f.FixedString(8)
		s.VirtualSize = f.U32()
		s.VirtualAddress = f.U32()
		s.SizeOfRawData = f.U32()
		s.PointerToRawData = f.U32()
		s.PointerToRelocations = f.U32()
		s.PointerToLinenumbers = f.U32()
		s.NumberOfRelocations = f.U16()
		s.NumberOfLinenumbers = f.U16()
		s.Characteristics = f.U32()
	}
	if err := f.Err(); err != nil {
		return nil, &ParseError{Stream: "section headers", Offset: int64(f.Offset()), Message: "short read", Err: err}
	}
	return &SectionHeaders{sections: sections}, nil
}

// Sections returns the PE section headers.
func (f *File) Sections() (*SectionHeaders, error) {
	f.sectionsOnce.Do(func() {
		f.sections, f.sectionsErr = f.loadSectionHeaders()
	})
	return f.sections, f.sectionsErr
}

func (f *File) loadSectionHeaders() (*SectionHeaders, error) {
	d, err := f.getDBI()
	if err != nil {
		return nil, err
	}
	idx := d.Debug.SectionHeaders
	if idx == dbi.NoStream {
		return nil, ErrNoSectionHeaders
	}
	data, err := f.readStream(uint32(idx))
	if err != nil {
		return nil, fmt.Errorf("pdb: failed to read section header stream: %w", err)
	}
	return parseSectionHeaders(data)
}
