package applicator

import (
	"slices"

	"github.com/skdltmxn/pdb-apply/codeview"
)

// Section is one image section as described by S_SECTION.
type Section struct {
	Index           uint16
	Name            string
	RVA             uint32
	Length          uint32
	Characteristics uint32
	Alignment       uint32 // in bytes, 0 when unspecified

	// Base is the absolute address of the section start. Valid only when
	// Resolved is set; otherwise resolution is pending on the layout.
	Base     uint64
	Resolved bool
}

// Group is a named COFF group spanning one or more sections.
type Group struct {
	Name            string
	Characteristics uint32
	Size            uint32
	Offset          uint32
	Sections        []uint16 // unique, in order of first appearance
}

// Placement locates a symbol as segment:offset and, when the segment is a
// resolved section, as an absolute address.
type Placement struct {
	Segment  uint16
	Offset   uint32
	Address  uint64
	Resolved bool
}

// Procedure is a function recovered from S_GPROC32/S_LPROC32 and the _ID variants.
type Procedure struct {
	Name        string
	Kind        codeview.Kind
	Global      bool
	Placement   Placement
	Length      uint32
	DebugStart  uint32
	DebugEnd    uint32
	TypeIndex   uint32
	Flags       codeview.ProcFlags
	CompileUnit int // index into CompileUnits, -1 if none
	Blocks      int // number of lexical blocks nested in the body
}

// Block is a lexical block from S_BLOCK32.
type Block struct {
	Name      string
	Placement Placement
	Length    uint32
	Procedure int // index into Procedures, -1 if none
	Parent    int // index into Blocks of the enclosing block, -1 if none
}

// Thunk is a code thunk from S_THUNK32.
type Thunk struct {
	Name      string
	Placement Placement
	Length    uint32
	Ordinal   uint8
}

// InlineSite is an inlined call site from S_INLINESITE.
type InlineSite struct {
	Inlinee   uint32
	Procedure int // index into Procedures, -1 if none
}

// Data is a global, static or thread-local variable.
type Data struct {
	Name        string
	Kind        codeview.Kind
	Global      bool
	ThreadLocal bool
	Placement   Placement
	TypeIndex   uint32
	Procedure   int // index into Procedures for function statics, -1 otherwise
}

// Public is an S_PUB32 public symbol.
type Public struct {
	Name      string
	Placement Placement
	Flags     codeview.PublicFlags
}

// Label is a code label from S_LABEL32.
type Label struct {
	Name      string
	Placement Placement
	Procedure int // index into Procedures, -1 if none
}

// CompileUnit describes an object file contribution (S_OBJNAME, S_COMPILE3).
type CompileUnit struct {
	ObjectName string
	Signature  uint32
	Machine    uint16
	Language   uint8
	Compiler   string
	Frontend   [4]uint16
	Backend    [4]uint16
	hasCompile bool
}

// Context is the mutable state of an application session. It is owned by
// a single run at a time and must not be mutated concurrently.
type Context struct {
	Sections map[uint16]*Section
	Groups   map[string]*Group

	Procedures   []*Procedure
	Blocks       []*Block
	Thunks       []*Thunk
	InlineSites  []*InlineSite
	Data         []*Data
	Publics      []*Public
	Labels       []*Label
	CompileUnits []*CompileUnit

	layout   Layout
	scopes   []ScopeFrame
	overflow int // refused scopes whose end record is still to come
}

// NewContext creates an empty Context. layout may be nil, in which case
// every section stays pending until ResolvePending is given a layout.
func NewContext(layout Layout) *Context {
	return &Context{
		Sections: make(map[uint16]*Section),
		Groups:   make(map[string]*Group),
		layout:   layout,
	}
}

// Section returns the section with the given index.
func (c *Context) Section(index uint16) (*Section, bool) {
	sec, ok := c.Sections[index]
	return sec, ok
}

// Resolve translates segment:offset to an absolute address. It fails if the
// segment is unknown or its base is not resolved yet.
func (c *Context) Resolve(segment uint16, offset uint32) (uint64, bool) {
	sec, ok := c.Sections[segment]
	if !ok || !sec.Resolved {
		return 0, false
	}
	return sec.Base + uint64(offset), true
}

// Pending returns the indices of registered sections whose base is not
// resolved, in ascending order.
func (c *Context) Pending() []uint16 {
	var pending []uint16
	for idx, sec := range c.Sections {
		if !sec.Resolved {
			pending = append(pending, idx)
		}
	}
	slices.Sort(pending)
	return pending
}

// ResolvePending retries base resolution of pending sections. A non-nil
// layout replaces the context's layout first. It returns the number of
// sections resolved.
func (c *Context) ResolvePending(layout Layout) int {
	if layout != nil {
		c.layout = layout
	}
	n := 0
	for _, idx := range c.Pending() {
		if c.resolveSection(c.Sections[idx]) {
			n++
		}
	}
	return n
}

// Unresolved returns the placements of recovered symbols that name a
// section but have no address yet, typically because the section record
// had not been applied when the symbol was.
func (c *Context) Unresolved() []*Placement {
	var out []*Placement
	c.eachPlacement(func(p *Placement) {
		if p.Segment != 0 && !p.Resolved {
			out = append(out, p)
		}
	})
	return out
}

// ResolvePlacements retries address resolution of unresolved placements
// against the current section table and returns how many succeeded.
func (c *Context) ResolvePlacements() int {
	n := 0
	for _, p := range c.Unresolved() {
		if addr, ok := c.Resolve(p.Segment, p.Offset); ok {
			p.Address = addr
			p.Resolved = true
			n++
		}
	}
	return n
}

func (c *Context) eachPlacement(fn func(*Placement)) {
	for _, p := range c.Procedures {
		fn(&p.Placement)
	}
	for _, b := range c.Blocks {
		fn(&b.Placement)
	}
	for _, t := range c.Thunks {
		fn(&t.Placement)
	}
	for _, d := range c.Data {
		fn(&d.Placement)
	}
	for _, p := range c.Publics {
		fn(&p.Placement)
	}
	for _, l := range c.Labels {
		fn(&l.Placement)
	}
}

func (c *Context) place(segment uint16, offset uint32) Placement {
	p := Placement{Segment: segment, Offset: offset}
	if addr, ok := c.Resolve(segment, offset); ok {
		p.Address = addr
		p.Resolved = true
	}
	return p
}

func (c *Context) resolveSection(sec *Section) bool {
	if c.layout == nil {
		return false
	}
	base, ok := c.layout.SectionBase(sec.Index)
	if !ok {
		return false
	}
	sec.Base = base + uint64(sec.RVA)
	sec.Resolved = true
	return true
}

// defineSection registers or updates a section and attempts to resolve it.
func (c *Context) defineSection(sec Section) *Section {
	cur, ok := c.Sections[sec.Index]
	if !ok {
		cur = &Section{Index: sec.Index}
		c.Sections[sec.Index] = cur
	}
	if !ok || cur.RVA != sec.RVA {
		cur.Resolved = false
		cur.Base = 0
	}
	cur.Name = sec.Name
	cur.RVA = sec.RVA
	cur.Length = sec.Length
	cur.Characteristics = sec.Characteristics
	cur.Alignment = sec.Alignment
	if !cur.Resolved {
		c.resolveSection(cur)
	}
	return cur
}

// addGroup records a COFF group contribution in segment.
func (c *Context) addGroup(name string, segment uint16, offset, size, characteristics uint32) *Group {
	g, ok := c.Groups[name]
	if !ok {
		g = &Group{
			Name:            name,
			Characteristics: characteristics,
			Size:            size,
			Offset:          offset,
		}
		c.Groups[name] = g
	}
	if !slices.Contains(g.Sections, segment) {
		g.Sections = append(g.Sections, segment)
	}
	return g
}

// currentUnit returns the index of the latest compile unit, or -1.
func (c *Context) currentUnit() int {
	return len(c.CompileUnits) - 1
}
