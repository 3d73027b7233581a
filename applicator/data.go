package applicator

import "github.com/skdltmxn/pdb-apply/codeview"

// dataApplier applies global, static and thread-local data records.
type dataApplier struct{}

func (dataApplier) Apply(s *Stream, c *Context) error {
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.DataSym)
	if !ok {
		return mismatch("*codeview.DataSym", rec)
	}
	if sym.Name == "" {
		return malformed("%s at %04x:%08x has no name", sym.Kind(), sym.Segment, sym.Offset)
	}

	c.Data = append(c.Data, &Data{
		Name:        sym.Name,
		Kind:        sym.Kind(),
		Global:      sym.Kind().IsGlobal(),
		ThreadLocal: sym.Kind().IsThreadLocal(),
		Placement:   c.place(sym.Segment, sym.Offset),
		TypeIndex:   sym.TypeIndex,
		Procedure:   c.enclosingProcedure(),
	})
	return nil
}

// publicApplier applies S_PUB32 records.
type publicApplier struct{}

func (publicApplier) Apply(s *Stream, c *Context) error {
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.PublicSym)
	if !ok {
		return mismatch("*codeview.PublicSym", rec)
	}
	if sym.Name == "" {
		return malformed("public at %04x:%08x has no name", sym.Segment, sym.Offset)
	}

	c.Publics = append(c.Publics, &Public{
		Name:      sym.Name,
		Placement: c.place(sym.Segment, sym.Offset),
		Flags:     sym.Flags,
	})
	return nil
}

// labelApplier applies S_LABEL32 records.
type labelApplier struct{}

func (labelApplier) Apply(s *Stream, c *Context) error {
	rec, err := s.Next()
	if err != nil {
		return err
	}
	sym, ok := rec.(*codeview.LabelSym)
	if !ok {
		return mismatch("*codeview.LabelSym", rec)
	}
	if sym.Name == "" {
		return malformed("label at %04x:%08x has no name", sym.Segment, sym.Offset)
	}

	c.Labels = append(c.Labels, &Label{
		Name:      sym.Name,
		Placement: c.place(sym.Segment, sym.Offset),
		Procedure: c.enclosingProcedure(),
	})
	return nil
}
