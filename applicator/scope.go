package applicator

import "github.com/skdltmxn/pdb-apply/codeview"

// ScopeKind identifies the lexical construct a ScopeFrame stands for.
type ScopeKind int

const (
	ScopeProcedure   ScopeKind = iota // S_GPROC32, S_LPROC32: closed by S_END
	ScopeProcedureID                  // S_GPROC32_ID, S_LPROC32_ID: closed by S_PROC_ID_END
	ScopeThunk
	ScopeBlock
	ScopeInlineSite
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeProcedure:
		return "procedure"
	case ScopeProcedureID:
		return "procedure_id"
	case ScopeThunk:
		return "thunk"
	case ScopeBlock:
		return "block"
	case ScopeInlineSite:
		return "inline_site"
	default:
		return "unknown"
	}
}

// closedBy reports whether an end record of the given kind closes this scope.
func (k ScopeKind) closedBy(end codeview.Kind) bool {
	switch end {
	case codeview.S_END:
		return k == ScopeProcedure || k == ScopeThunk || k == ScopeBlock
	case codeview.S_PROC_ID_END:
		return k == ScopeProcedureID
	case codeview.S_INLINESITE_END:
		return k == ScopeInlineSite
	}
	return false
}

// ScopeFrame is one open scope on the context's scope stack.
type ScopeFrame struct {
	Kind      ScopeKind
	Name      string
	Placement Placement
	End       uint32 // byte offset of the matching end record
	Position  int    // stream index of the begin record
	Parent    int    // stack index of the enclosing frame, -1 at top level
	Symbol    int    // index of the recovered symbol in its Context slice
}

// Scopes returns a copy of the scope stack, outermost first.
func (c *Context) Scopes() []ScopeFrame {
	out := make([]ScopeFrame, len(c.scopes))
	copy(out, c.scopes)
	return out
}

// Depth returns the number of open scopes.
func (c *Context) Depth() int {
	return len(c.scopes)
}

func (c *Context) pushScope(f ScopeFrame) {
	f.Parent = len(c.scopes) - 1
	c.scopes = append(c.scopes, f)
}

// closeScope pops the innermost frame closed by end. When the top frame is
// not compatible, the stack is unwound to the nearest compatible frame, or
// cleared when there is none, and an ErrScopeImbalance error is returned
// alongside the closed frame (if any). The end of a scope refused for
// depth closes nothing.
func (c *Context) closeScope(end codeview.Kind) (*ScopeFrame, error) {
	if c.overflow > 0 {
		c.overflow--
		return nil, nil
	}
	n := len(c.scopes)
	if n == 0 {
		return nil, imbalance("%s with no open scope", end)
	}

	top := c.scopes[n-1]
	if top.Kind.closedBy(end) {
		c.scopes = c.scopes[:n-1]
		return &top, nil
	}

	for i := n - 2; i >= 0; i-- {
		if c.scopes[i].Kind.closedBy(end) {
			f := c.scopes[i]
			c.scopes = c.scopes[:i]
			return &f, imbalance("%s closed %s %q with %d inner scope(s) still open", end, f.Kind, f.Name, n-1-i)
		}
	}

	c.scopes = c.scopes[:0]
	return nil, imbalance("%s does not match open %s %q, discarded %d scope(s)", end, top.Kind, top.Name, n)
}

// enclosing returns the Symbol index of the innermost open frame of kind k,
// or -1.
func (c *Context) enclosing(kinds ...ScopeKind) int {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		for _, k := range kinds {
			if c.scopes[i].Kind == k {
				return c.scopes[i].Symbol
			}
		}
	}
	return -1
}

func (c *Context) enclosingProcedure() int {
	return c.enclosing(ScopeProcedure, ScopeProcedureID)
}

// enclosingBlock returns the innermost block nested in the innermost
// procedure, or -1.
func (c *Context) enclosingBlock() int {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		switch c.scopes[i].Kind {
		case ScopeBlock:
			return c.scopes[i].Symbol
		case ScopeProcedure, ScopeProcedureID:
			return -1
		}
	}
	return -1
}

// DiscardScopes empties the scope stack and returns how many frames were
// still open. Callers applying several symbol streams to one Context use it
// between streams, since End offsets are only meaningful within a stream.
func (c *Context) DiscardScopes() int {
	n := len(c.scopes)
	c.scopes = c.scopes[:0]
	c.overflow = 0
	return n
}
