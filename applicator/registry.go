package applicator

import (
	"slices"

	"github.com/skdltmxn/pdb-apply/codeview"
)

// Applier applies the record at the stream cursor to the context. It must
// consume at least that record. A returned error is recorded as a fault for
// the record; it never stops the run.
type Applier interface {
	Apply(s *Stream, c *Context) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(s *Stream, c *Context) error

func (f ApplierFunc) Apply(s *Stream, c *Context) error { return f(s, c) }

// Registry maps record kinds to appliers.
type Registry struct {
	appliers map[codeview.Kind]Applier
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{appliers: make(map[codeview.Kind]Applier)}
}

// DefaultRegistry returns a registry with an applier for every record kind
// this package understands.
func DefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()
	scopes := &scopeApplier{cfg: cfg}

	r.Register(codeview.S_SECTION, sectionApplier{})
	r.Register(codeview.S_COFFGROUP, coffGroupApplier{})

	for _, k := range []codeview.Kind{codeview.S_GPROC32, codeview.S_LPROC32, codeview.S_GPROC32_ID, codeview.S_LPROC32_ID} {
		r.Register(k, procApplier{scopes})
	}
	r.Register(codeview.S_THUNK32, thunkApplier{scopes})
	r.Register(codeview.S_BLOCK32, blockApplier{scopes})
	r.Register(codeview.S_INLINESITE, inlineSiteApplier{scopes})
	for _, k := range []codeview.Kind{codeview.S_END, codeview.S_PROC_ID_END, codeview.S_INLINESITE_END} {
		r.Register(k, endApplier{})
	}

	for _, k := range []codeview.Kind{codeview.S_GDATA32, codeview.S_LDATA32, codeview.S_GTHREAD32, codeview.S_LTHREAD32} {
		r.Register(k, dataApplier{})
	}
	r.Register(codeview.S_PUB32, publicApplier{})
	r.Register(codeview.S_LABEL32, labelApplier{})

	r.Register(codeview.S_OBJNAME, objNameApplier{})
	r.Register(codeview.S_COMPILE3, compileApplier{})
	return r
}

// Register adds or replaces the applier for kind.
func (r *Registry) Register(kind codeview.Kind, a Applier) {
	r.appliers[kind] = a
}

// Lookup returns the applier registered for kind.
func (r *Registry) Lookup(kind codeview.Kind) (Applier, bool) {
	a, ok := r.appliers[kind]
	return a, ok
}

// Supports reports whether an applier is registered for kind.
func (r *Registry) Supports(kind codeview.Kind) bool {
	_, ok := r.appliers[kind]
	return ok
}

// Kinds returns the registered kinds in ascending order.
func (r *Registry) Kinds() []codeview.Kind {
	kinds := make([]codeview.Kind, 0, len(r.appliers))
	for k := range r.appliers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
