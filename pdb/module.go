package pdb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/skdltmxn/pdb-apply/codeview"
	"github.com/skdltmxn/pdb-apply/internal/dbi"
)

// cvSignatureC13 starts every module symbol stream written by current
// toolchains.
const cvSignatureC13 = 4

// Module is a compilation unit (object file) in the PDB.
type Module struct {
	pdb  *File
	info *dbi.Module
}

// Index returns the module index.
func (m *Module) Index() int { return m.info.Index }

// Name returns the module name, typically the object file path.
func (m *Module) Name() string { return m.info.Name }

// ObjectFileName returns the library or object file the module came from.
func (m *Module) ObjectFileName() string { return m.info.ObjectName }

// Section returns the section of the module's first contribution.
func (m *Module) Section() uint16 { return m.info.Contribution.Section }

// HasSymbols reports whether the module has a symbol stream.
func (m *Module) HasSymbols() bool { return m.info.HasSymbols() }

// SymbolBytes returns the size of the symbol substream, signature included.
func (m *Module) SymbolBytes() uint32 { return m.info.SymByteSize }

// Records decodes the module's symbol records. Record offsets are relative
// to the start of the module stream, matching the End pointers of scope
// records. When the stream is damaged part way, the records before the
// damage are returned together with a *ParseError.
func (m *Module) Records() ([]codeview.Record, error) {
	if !m.HasSymbols() {
		return nil, nil
	}
	name := fmt.Sprintf("module %d symbols", m.info.Index)

	data, err := m.pdb.readStream(uint32(m.info.SymStream))
	if err != nil {
		return nil, fmt.Errorf("pdb: failed to read %s: %w", name, err)
	}
	if uint32(len(data)) < m.info.SymByteSize {
		return nil, &ParseError{Stream: name, Offset: int64(len(data)), Message: fmt.Sprintf("stream shorter than symbol size %d", m.info.SymByteSize)}
	}
	data = data[:m.info.SymByteSize]
	if sig := binary.LittleEndian.Uint32(data); sig != cvSignatureC13 {
		return nil, &ParseError{Stream: name, Message: fmt.Sprintf("unsupported CodeView signature %d", sig)}
	}

	records, err := codeview.DecodeAt(data[4:], 4)
	if err != nil {
		perr := &ParseError{Stream: name, Message: "bad record framing", Err: err}
		var derr *codeview.DecodeError
		if errors.As(err, &derr) {
			perr.Offset = int64(derr.Offset)
		}
		return records, perr
	}
	return records, nil
}
