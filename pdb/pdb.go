package pdb

import (
	"fmt"
	"io"
	"sync"

	"github.com/skdltmxn/pdb-apply/internal/dbi"
	"github.com/skdltmxn/pdb-apply/internal/stream"
	"github.com/skdltmxn/pdb-apply/msf"
)

// File is an opened PDB file. It is safe for concurrent read access.
type File struct {
	msf    *msf.File
	mu     sync.RWMutex
	closed bool

	infoOnce sync.Once
	info     *Info
	infoErr  error

	dbiOnce sync.Once
	dbi     *dbi.Stream
	dbiErr  error

	sectionsOnce sync.Once
	sections     *SectionHeaders
	sectionsErr  error
}

// Info is the content of the PDB info stream.
type Info struct {
	Version   uint32
	Signature uint32
	Age       uint32
	GUID      [16]byte
}

// Open opens a PDB file from the given path.
func Open(path string) (*File, error) {
	mf, err := msf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdb: failed to open file: %w", err)
	}
	return &File{msf: mf}, nil
}

// OpenReader opens a PDB from an io.ReaderAt.
func OpenReader(r io.ReaderAt, size int64) (*File, error) {
	mf, err := msf.NewFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("pdb: failed to open file: %w", err)
	}
	return &File{msf: mf}, nil
}

// Close releases resources associated with the PDB file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.msf.Close()
}

// BlockSize returns the MSF block size.
func (f *File) BlockSize() uint32 { return f.msf.SuperBlock().BlockSize }

// NumStreams returns the number of streams in the MSF directory.
func (f *File) NumStreams() int { return f.msf.NumStreams() }

func (f *File) readStream(index uint32) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrFileClosed
	}
	return f.msf.ReadStream(index)
}

// Info returns the PDB info stream.
func (f *File) Info() (*Info, error) {
	f.infoOnce.Do(func() {
		data, err := f.readStream(msf.StreamPDBInfo)
		if err != nil {
			f.infoErr = fmt.Errorf("pdb: failed to read PDB info stream: %w", err)
			return
		}
		r := stream.NewFields(data)
		info := &Info{Version: r.U32(), Signature: r.U32(), Age: r.U32()}
		for i := range info.GUID {
			info.GUID[i] = r.U8()
		}
		if err := r.Err(); err != nil {
			f.infoErr = &ParseError{Stream: "PDB info", Offset: int64(r.Offset()), Message: "stream too short", Err: err}
			return
		}
		f.info = info
	})
	return f.info, f.infoErr
}

func (f *File) getDBI() (*dbi.Stream, error) {
	f.dbiOnce.Do(func() {
		data, err := f.readStream(msf.StreamDBI)
		if err != nil {
			f.dbiErr = fmt.Errorf("pdb: failed to read DBI stream: %w", err)
			return
		}
		f.dbi, f.dbiErr = dbi.Parse(data)
	})
	return f.dbi, f.dbiErr
}

// Machine returns the target machine recorded in the DBI header.
func (f *File) Machine() (uint16, error) {
	d, err := f.getDBI()
	if err != nil {
		return 0, err
	}
	return d.Header.Machine, nil
}

// Modules returns all modules (compilands) in the PDB.
func (f *File) Modules() ([]*Module, error) {
	d, err := f.getDBI()
	if err != nil {
		return nil, err
	}
	mods := make([]*Module, len(d.Modules))
	for i := range d.Modules {
		mods[i] = &Module{pdb: f, info: &d.Modules[i]}
	}
	return mods, nil
}

// Module returns the module at index.
func (f *File) Module(index int) (*Module, error) {
	d, err := f.getDBI()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(d.Modules) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrModuleNotFound, index, len(d.Modules))
	}
	return &Module{pdb: f, info: &d.Modules[index]}, nil
}
