package applicator

import (
	"github.com/skdltmxn/pdb-apply/codeview"
)

// scopeApplier holds what the nestable appliers share: the run config and
// the logic to open a scope.
type scopeApplier struct {
	cfg Config
}

// admit checks the nesting limit before a scope record has any effect. A
// refused scope is counted as overflow so its end record closes nothing.
func (sa *scopeApplier) admit(c *Context, kind ScopeKind, name string) error {
	if c.Depth() < sa.cfg.MaxScopeDepth {
		return nil
	}
	c.overflow++
	return malformed("%s %q nested deeper than %d scopes", kind, name, sa.cfg.MaxScopeDepth)
}

// open pushes f and, when the config skips this scope kind, moves the
// cursor to the matching end record so it is applied next.
func (sa *scopeApplier) open(s *Stream, c *Context, f ScopeFrame) error {
	c.pushScope(f)

	if !sa.cfg.skips(f.Kind) {
		return nil
	}
	idx, ok := s.IndexOf(f.End)
	if !ok || idx < s.Position() {
		return malformed("%s %q end offset 0x%x does not point forward in the stream", f.Kind, f.Name, f.End)
	}
	return s.Seek(idx)
}

// procApplier applies procedure begin records.
type procApplier struct {
	*scopeApplier
}

func (a procApplier) Apply(s *Stream, c *Context) error {
	pos := s.Position()
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.ProcSym)
	if !ok {
		return mismatch("*codeview.ProcSym", rec)
	}

	kind := ScopeProcedure
	if sym.Kind().IsProcID() {
		kind = ScopeProcedureID
	}
	if err := a.admit(c, kind, sym.Name); err != nil {
		return err
	}

	// A bad debug range is reported but the scope still opens, otherwise the
	// matching end record would unbalance the stack.
	var rangeErr error
	if sym.DbgStart > sym.DbgEnd || (sym.CodeSize > 0 && sym.DbgEnd > sym.CodeSize) {
		rangeErr = malformed("procedure %q debug range [0x%x, 0x%x] outside code size 0x%x", sym.Name, sym.DbgStart, sym.DbgEnd, sym.CodeSize)
	}

	proc := &Procedure{
		Name:        sym.Name,
		Kind:        sym.Kind(),
		Global:      sym.Kind().IsGlobal(),
		Placement:   c.place(sym.Segment, sym.CodeOffset),
		Length:      sym.CodeSize,
		DebugStart:  sym.DbgStart,
		DebugEnd:    sym.DbgEnd,
		TypeIndex:   sym.TypeIndex,
		Flags:       sym.Flags,
		CompileUnit: c.currentUnit(),
	}
	c.Procedures = append(c.Procedures, proc)

	if err := a.open(s, c, ScopeFrame{
		Kind:      kind,
		Name:      sym.Name,
		Placement: proc.Placement,
		End:       sym.End,
		Position:  pos,
		Symbol:    len(c.Procedures) - 1,
	}); err != nil {
		return err
	}
	return rangeErr
}

// thunkApplier applies S_THUNK32 records.
type thunkApplier struct {
	*scopeApplier
}

func (a thunkApplier) Apply(s *Stream, c *Context) error {
	pos := s.Position()
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.ThunkSym)
	if !ok {
		return mismatch("*codeview.ThunkSym", rec)
	}
	if err := a.admit(c, ScopeThunk, sym.Name); err != nil {
		return err
	}

	thunk := &Thunk{
		Name:      sym.Name,
		Placement: c.place(sym.Segment, sym.Offset),
		Length:    uint32(sym.Length),
		Ordinal:   sym.Ordinal,
	}
	c.Thunks = append(c.Thunks, thunk)

	return a.open(s, c, ScopeFrame{
		Kind:      ScopeThunk,
		Name:      sym.Name,
		Placement: thunk.Placement,
		End:       sym.End,
		Position:  pos,
		Symbol:    len(c.Thunks) - 1,
	})
}

// blockApplier applies S_BLOCK32 records.
type blockApplier struct {
	*scopeApplier
}

func (a blockApplier) Apply(s *Stream, c *Context) error {
	pos := s.Position()
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.BlockSym)
	if !ok {
		return mismatch("*codeview.BlockSym", rec)
	}
	if err := a.admit(c, ScopeBlock, sym.Name); err != nil {
		return err
	}

	block := &Block{
		Name:      sym.Name,
		Placement: c.place(sym.Segment, sym.CodeOffset),
		Length:    sym.CodeSize,
		Procedure: c.enclosingProcedure(),
		Parent:    c.enclosingBlock(),
	}
	c.Blocks = append(c.Blocks, block)

	// Same as procedures: a block outside its procedure is kept as recorded.
	var rangeErr error
	if block.Procedure >= 0 {
		proc := c.Procedures[block.Procedure]
		proc.Blocks++
		if !contains(proc.Placement, proc.Length, block.Placement, block.Length) {
			rangeErr = malformed("block at %04x:%08x+0x%x outside procedure %q", sym.Segment, sym.CodeOffset, sym.CodeSize, proc.Name)
		}
	}

	if err := a.open(s, c, ScopeFrame{
		Kind:      ScopeBlock,
		Name:      sym.Name,
		Placement: block.Placement,
		End:       sym.End,
		Position:  pos,
		Symbol:    len(c.Blocks) - 1,
	}); err != nil {
		return err
	}
	return rangeErr
}

// inlineSiteApplier applies S_INLINESITE records.
type inlineSiteApplier struct {
	*scopeApplier
}

func (a inlineSiteApplier) Apply(s *Stream, c *Context) error {
	pos := s.Position()
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.InlineSiteSym)
	if !ok {
		return mismatch("*codeview.InlineSiteSym", rec)
	}
	if err := a.admit(c, ScopeInlineSite, ""); err != nil {
		return err
	}

	c.InlineSites = append(c.InlineSites, &InlineSite{
		Inlinee:   sym.Inlinee,
		Procedure: c.enclosingProcedure(),
	})
	return a.open(s, c, ScopeFrame{
		Kind:     ScopeInlineSite,
		End:      sym.End,
		Position: pos,
		Symbol:   len(c.InlineSites) - 1,
	})
}

// endApplier applies S_END, S_PROC_ID_END and S_INLINESITE_END.
type endApplier struct{}

func (endApplier) Apply(s *Stream, c *Context) error {
	rec, err := s.Next()
	if err != nil {
		return err
	}
	if _, ok := rec.(*codeview.EndSym); !ok {
		return mismatch("*codeview.EndSym", rec)
	}
	_, err = c.closeScope(rec.Kind())
	return err
}

// contains reports whether inner lies within outer. Placements in different
// segments never contain each other.
func contains(outer Placement, outerLen uint32, inner Placement, innerLen uint32) bool {
	if outer.Segment != inner.Segment {
		return false
	}
	start := uint64(outer.Offset)
	end := start + uint64(outerLen)
	return uint64(inner.Offset) >= start && uint64(inner.Offset)+uint64(innerLen) <= end
}
