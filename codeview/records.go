package codeview

// Record is a decoded symbol record. The set of implementations is closed:
// every variant embeds Header and is declared in this package.
type Record interface {
	// Kind returns the record kind as stored in the stream.
	Kind() Kind
	// StreamOffset returns the byte offset of the record within its symbol
	// stream. Variants with a code offset field name it Offset.
	StreamOffset() uint32

	record()
}

// Header carries the fields shared by every record.
type Header struct {
	Type Kind
	Pos  uint32
}

func (h Header) Kind() Kind           { return h.Type }
func (h Header) StreamOffset() uint32 { return h.Pos }
func (Header) record()                {}

// ProcFlags describes procedure attributes.
type ProcFlags uint8

func (pf ProcFlags) HasFP() bool           { return (pf & 0x01) != 0 }
func (pf ProcFlags) HasIRET() bool         { return (pf & 0x02) != 0 }
func (pf ProcFlags) HasFRET() bool         { return (pf & 0x04) != 0 }
func (pf ProcFlags) IsNoReturn() bool      { return (pf & 0x08) != 0 }
func (pf ProcFlags) IsUnreachable() bool   { return (pf & 0x10) != 0 }
func (pf ProcFlags) IsNoInline() bool      { return (pf & 0x40) != 0 }
func (pf ProcFlags) HasOptDebugInfo() bool { return (pf & 0x80) != 0 }

// PublicFlags describes public symbol attributes.
type PublicFlags uint32

func (pf PublicFlags) IsCode() bool     { return (pf & 0x01) != 0 }
func (pf PublicFlags) IsFunction() bool { return (pf & 0x02) != 0 }
func (pf PublicFlags) IsManaged() bool  { return (pf & 0x04) != 0 }
func (pf PublicFlags) IsMSIL() bool     { return (pf & 0x08) != 0 }

// SectionSym represents S_SECTION, emitted by the linker for every image section.
type SectionSym struct {
	Header
	SectionNumber   uint16
	Alignment       uint8 // log2 of the section alignment
	RVA             uint32
	Length          uint32
	Characteristics uint32
	Name            string
}

// CoffGroupSym represents S_COFFGROUP, a named sub-range of a section.
type CoffGroupSym struct {
	Header
	Size            uint32
	Characteristics uint32
	Offset          uint32
	Segment         uint16
	Name            string
}

// ProcSym represents S_GPROC32, S_LPROC32 and their _ID variants.
type ProcSym struct {
	Header
	Parent     uint32
	End        uint32
	Next       uint32
	CodeSize   uint32
	DbgStart   uint32
	DbgEnd     uint32
	TypeIndex  uint32
	CodeOffset uint32
	Segment    uint16
	Flags      ProcFlags
	Name       string
}

// ThunkSym represents S_THUNK32.
type ThunkSym struct {
	Header
	Parent  uint32
	End     uint32
	Next    uint32
	Offset  uint32
	Segment uint16
	Length  uint16
	Ordinal uint8
	Name    string
}

// BlockSym represents S_BLOCK32.
type BlockSym struct {
	Header
	Parent     uint32
	End        uint32
	CodeSize   uint32
	CodeOffset uint32
	Segment    uint16
	Name       string
}

// InlineSiteSym represents S_INLINESITE.
type InlineSiteSym struct {
	Header
	Parent  uint32
	End     uint32
	Inlinee uint32
}

// EndSym represents S_END, S_PROC_ID_END and S_INLINESITE_END.
type EndSym struct {
	Header
}

// DataSym represents S_GDATA32, S_LDATA32, S_GTHREAD32 and S_LTHREAD32.
type DataSym struct {
	Header
	TypeIndex uint32
	Offset    uint32
	Segment   uint16
	Name      string
}

// PublicSym represents S_PUB32.
type PublicSym struct {
	Header
	Flags   PublicFlags
	Offset  uint32
	Segment uint16
	Name    string
}

// LabelSym represents S_LABEL32.
type LabelSym struct {
	Header
	Offset  uint32
	Segment uint16
	Flags   ProcFlags
	Name    string
}

// ObjNameSym represents S_OBJNAME.
type ObjNameSym struct {
	Header
	Signature uint32
	Name      string
}

// CompileSym represents S_COMPILE3.
type CompileSym struct {
	Header
	Flags         uint32
	Machine       uint16
	FrontendMajor uint16
	FrontendMinor uint16
	FrontendBuild uint16
	FrontendQFE   uint16
	BackendMajor  uint16
	BackendMinor  uint16
	BackendBuild  uint16
	BackendQFE    uint16
	Version       string
}

// Language returns the CV_CFL_LANG source language code.
func (s *CompileSym) Language() uint8 {
	return uint8(s.Flags & 0xff)
}

// RawSym holds a record this package does not decode, or one whose payload
// did not match its kind's layout.
type RawSym struct {
	Header
	Data []byte
}
