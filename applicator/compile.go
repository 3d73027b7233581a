package applicator

import "github.com/skdltmxn/pdb-apply/codeview"

// objNameApplier starts a new compile unit for each S_OBJNAME.
type objNameApplier struct{}

func (objNameApplier) Apply(s *Stream, c *Context) error {
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.ObjNameSym)
	if !ok {
		return mismatch("*codeview.ObjNameSym", rec)
	}

	c.CompileUnits = append(c.CompileUnits, &CompileUnit{
		ObjectName: sym.Name,
		Signature:  sym.Signature,
	})
	return nil
}

// compileApplier annotates the current compile unit with S_COMPILE3 build
// information. A unit that already has it, or no unit at all, means the
// object name record is missing, so an anonymous unit is started.
type compileApplier struct{}

func (compileApplier) Apply(s *Stream, c *Context) error {
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.CompileSym)
	if !ok {
		return mismatch("*codeview.CompileSym", rec)
	}

	var cu *CompileUnit
	if i := c.currentUnit(); i >= 0 && !c.CompileUnits[i].hasCompile {
		cu = c.CompileUnits[i]
	} else {
		cu = &CompileUnit{}
		c.CompileUnits = append(c.CompileUnits, cu)
	}

	cu.Machine = sym.Machine
	cu.Language = sym.Language()
	cu.Compiler = sym.Version
	cu.Frontend = [4]uint16{sym.FrontendMajor, sym.FrontendMinor, sym.FrontendBuild, sym.FrontendQFE}
	cu.Backend = [4]uint16{sym.BackendMajor, sym.BackendMinor, sym.BackendBuild, sym.BackendQFE}
	cu.hasCompile = true
	return nil
}
