// Package dbi parses the parts of the DBI (debug information) stream the
// applicator needs: the header, the module list and the optional debug
// header.
package dbi

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/pdb-apply/internal/stream"
)

// HeaderSize is the encoded size of the DBI header.
const HeaderSize = 64

// Machine types found in Header.Machine.
const (
	MachineI386  uint16 = 0x014c
	MachineAMD64 uint16 = 0x8664
	MachineARM64 uint16 = 0xaa64
)

// NoStream marks an absent stream index.
const NoStream uint16 = 0xFFFF

var (
	ErrInvalidHeader   = errors.New("dbi: invalid DBI header")
	ErrTruncatedStream = errors.New("dbi: truncated stream")
)

// Header is the fixed DBI header.
type Header struct {
	VersionSignature int32 // always -1
	Version          uint32
	Age              uint32

	GlobalStreamIndex    uint16
	BuildNumber          uint16
	PublicStreamIndex    uint16
	PDBDllVersion        uint16
	SymRecordStreamIndex uint16
	PDBDllRbld           uint16

	ModInfoSize             uint32
	SectionContributionSize uint32
	SectionMapSize          uint32
	SourceInfoSize          uint32
	TypeServerMapSize       uint32
	MFCTypeServerIndex      uint32
	OptionalDbgHeaderSize   uint32
	ECSubstreamSize         uint32

	Flags   uint16
	Machine uint16
}

// IsStripped reports whether private symbols were removed from the PDB.
func (h *Header) IsStripped() bool {
	return h.Flags&0x02 != 0
}

// Contribution is the first section contribution of a module.
type Contribution struct {
	Section         uint16
	Offset          int32
	Size            int32
	Characteristics uint32
}

// Module describes one compiland.
type Module struct {
	Index           int
	Name            string
	ObjectName      string
	Contribution    Contribution
	Flags           uint16
	SymStream       uint16 // NoStream when the module has no symbols
	SymByteSize     uint32
	C11ByteSize     uint32
	C13ByteSize     uint32
	SourceFileCount uint16
}

// HasSymbols reports whether the module has a symbol stream.
func (m *Module) HasSymbols() bool {
	return m.SymStream != NoStream && m.SymByteSize > 4
}

// DebugStreams lists the streams referenced by the optional debug header.
// Absent entries are NoStream.
type DebugStreams struct {
	FPO               uint16
	Exception         uint16
	Fixup             uint16
	OmapToSrc         uint16
	OmapFromSrc       uint16
	SectionHeaders    uint16
	TokenRIDMap       uint16
	XData             uint16
	PData             uint16
	NewFPO            uint16
	OrigSectionHeader uint16
}

// Stream is a parsed DBI stream.
type Stream struct {
	Header  Header
	Modules []Module
	Debug   DebugStreams
}

// Parse parses a DBI stream.
func Parse(data []byte) (*Stream, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(data))
	}
	s := &Stream{}
	if err := s.parseHeader(data[:HeaderSize]); err != nil {
		return nil, err
	}

	h := &s.Header
	sizes := []uint32{
		h.ModInfoSize,
		h.SectionContributionSize,
		h.SectionMapSize,
		h.SourceInfoSize,
		h.TypeServerMapSize,
		h.ECSubstreamSize,
		h.OptionalDbgHeaderSize,
	}
	subs := make([][]byte, len(sizes))
	off := uint64(HeaderSize)
	for i, n := range sizes {
		end := off + uint64(n)
		if end > uint64(len(data)) {
			return nil, fmt.Errorf("%w: substream %d ends at %d of %d", ErrTruncatedStream, i, end, len(data))
		}
		subs[i] = data[off:end]
		off = end
	}

	mods, err := parseModules(subs[0])
	if err != nil {
		return nil, fmt.Errorf("dbi: failed to parse module info: %w", err)
	}
	s.Modules = mods
	s.Debug = parseDebugStreams(subs[len(subs)-1])
	return s, nil
}

func (s *Stream) parseHeader(data []byte) error {
	f := stream.NewFields(data)
	h := &s.Header
	h.VersionSignature = f.I32()
	h.Version = f.U32()
	h.Age = f.U32()
	h.GlobalStreamIndex = f.U16()
	h.BuildNumber = f.U16()
	h.PublicStreamIndex = f.U16()
	h.PDBDllVersion = f.U16()
	h.SymRecordStreamIndex = f.U16()
	h.PDBDllRbld = f.U16()
	h.ModInfoSize = f.U32()
	h.SectionContributionSize = f.U32()
	h.SectionMapSize = f.U32()
	h.SourceInfoSize = f.U32()
	h.TypeServerMapSize = f.U32()
	h.MFCTypeServerIndex = f.U32()
	h.OptionalDbgHeaderSize = f.U32()
	h.ECSubstreamSize = f.U32()
	h.Flags = f.U16()
	h.Machine = f.U16()
	if err := f.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if h.VersionSignature != -1 {
		return fmt.Errorf("%w: version signature %d", ErrInvalidHeader, h.VersionSignature)
	}
	return nil
}

func parseModules(data []byte) ([]Module, error) {
	f := stream.NewFields(data)
	var mods []Module
	for f.Remaining() > 0 {
		m := Module{Index: len(mods)}
		f.Skip(4) // opened
		m.Contribution.Section = f.U16()
		f.Skip(2)
		m.Contribution.Offset = f.I32()
		m.Contribution.Size = f.I32()
		m.Contribution.Characteristics = f.U32()
		f.Skip(4 + 4 + 4) // module index and padding, data and reloc CRCs
		m.Flags = f.U16()
		m.SymStream = f.U16()
		m.SymByteSize = f.U32()
		m.C11ByteSize = f.U32()
		m.C13ByteSize = f.U32()
		m.SourceFileCount = f.U16()
		f.Skip(2 + 4 + 4 + 4) // padding, unused, source file name and PDB path indices
		m.Name = f.CString()
		m.ObjectName = f.CString()
		f.Align(4)
		if err := f.Err(); err != nil {
			return mods, fmt.Errorf("module %d at offset %d: %w", len(mods), f.Offset(), err)
		}
		mods = append(mods, m)
	}
	return mods, nil
}

// parseDebugStreams reads as many stream indices as the header holds.
func parseDebugStreams(data []byte) DebugStreams {
	d := DebugStreams{}
	fields := []*uint16{
		&d.FPO, &d.Exception, &d.Fixup, &d.OmapToSrc, &d.OmapFromSrc,
		&d.SectionHeaders, &d.TokenRIDMap, &d.XData, &d.PData, &d.NewFPO,
		&d.OrigSectionHeader,
	}
	f := stream.NewFields(data)
	for _, p := range fields {
		*p = NoStream
		if f.Remaining() >= 2 {
			*p = f.U16()
		}
	}
	return d
}
