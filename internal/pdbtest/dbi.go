// Package pdbtest builds DBI streams and section header streams for tests.
package pdbtest

import (
	"encoding/binary"

	"github.com/skdltmxn/pdb-apply/internal/cvtest"
)

// Module describes one module info entry.
type Module struct {
	Name       string
	ObjectName string
	SymStream  uint16
	SymBytes   uint32
}

// DBI builds a DBI stream holding mods and an optional debug header whose
// section header entry is sectionHeaders.
func DBI(machine uint16, mods []Module, sectionHeaders uint16) []byte {
	var modInfo []byte
	for _, m := range mods {
		p := new(cvtest.Payload).
			U32(0).
			U16(1).U16(0).U32(0x10).U32(0x20).U32(0x60000020).U16(0).U16(0).U32(0).U32(0).
			U16(0).U16(m.SymStream).U32(m.SymBytes).U32(0).U32(0).
			U16(0).U16(0).U32(0).U32(0).U32(0).
			CString(m.Name).CString(m.ObjectName)
		b := p.Bytes()
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		modInfo = append(modInfo, b...)
	}

	dbg := make([]byte, 0, 22)
	for i := 0; i < 11; i++ {
		idx := uint16(0xFFFF)
		if i == 5 {
			idx = sectionHeaders
		}
		dbg = binary.LittleEndian.AppendUint16(dbg, idx)
	}

	h := new(cvtest.Payload).
		U32(0xFFFFFFFF).U32(19990903).U32(1).
		U16(0xFFFF).U16(0x8e1d).U16(0xFFFF).U16(0).U16(0xFFFF).U16(0).
		U32(uint32(len(modInfo))).U32(0).U32(0).U32(0).U32(0).U32(0).
		U32(uint32(len(dbg))).U32(0).
		U16(0).U16(machine).U32(0)

	out := append(h.Bytes(), modInfo...)
	return append(out, dbg...)
}

// Section is one IMAGE_SECTION_HEADER.
type Section struct {
	Name            string
	VirtualSize     uint32
	VirtualAddress  uint32
	RawSize         uint32
	Characteristics uint32
}

// SectionHeaders encodes a section header stream.
func SectionHeaders(secs ...Section) []byte {
	var out []byte
	for _, s := range secs {
		name := make([]byte, 8)
		copy(name, s.Name)
		p := new(cvtest.Payload).
			U32(s.VirtualSize).U32(s.VirtualAddress).U32(s.RawSize).U32(0x400).
			U32(0).U32(0).U16(0).U16(0).U32(s.Characteristics)
		out = append(out, name...)
		out = append(out, p.Bytes()...)
	}
	return out
}

// SymbolStream prefixes CodeView records with the C13 signature, as found
// in a module symbol stream.
func SymbolStream(records ...[]byte) []byte {
	return append(binary.LittleEndian.AppendUint32(nil, 4), cvtest.Stream(records...)...)
}
