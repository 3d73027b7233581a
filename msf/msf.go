package msf

import (
	"fmt"
	"io"
	"os"
)

// File is an opened MSF container. It is safe for concurrent use when the
// underlying io.ReaderAt is.
type File struct {
	ra     io.ReaderAt
	closer io.Closer
	sb     *SuperBlock
	dir    *directory
}

// Open opens the MSF file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("msf: failed to open file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("msf: failed to stat file: %w", err)
	}

	mf, err := NewFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	mf.closer = f
	return mf, nil
}

// NewFile reads the super block and stream directory from r. The caller
// keeps ownership of r.
func NewFile(r io.ReaderAt, size int64) (*File, error) {
	if size < SuperBlockSize {
		return nil, ErrTruncatedFile
	}
	head := make([]byte, SuperBlockSize)
	if _, err := r.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("msf: failed to read super block: %w", err)
	}
	sb, err := ParseSuperBlock(head)
	if err != nil {
		return nil, err
	}
	if size < sb.FileSize() {
		return nil, fmt.Errorf("%w: %d bytes, super block describes %d", ErrTruncatedFile, size, sb.FileSize())
	}

	dir, err := readDirectory(r, sb)
	if err != nil {
		return nil, err
	}
	return &File{ra: r, sb: sb, dir: dir}, nil
}

// Close closes the file if it was opened by Open.
func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// SuperBlock returns the parsed super block.
func (f *File) SuperBlock() SuperBlock {
	return *f.sb
}

// NumStreams returns the number of directory entries.
func (f *File) NumStreams() int {
	return len(f.dir.sizes)
}

// StreamExists reports whether index names a stream with data.
func (f *File) StreamExists(index uint32) bool {
	if index >= uint32(len(f.dir.sizes)) {
		return false
	}
	size := f.dir.sizes[index]
	return size != NilStreamSize && size > 0
}

// StreamSize returns the stream size in bytes, 0 for nil streams.
func (f *File) StreamSize(index uint32) uint32 {
	if index >= uint32(len(f.dir.sizes)) || f.dir.sizes[index] == NilStreamSize {
		return 0
	}
	return f.dir.sizes[index]
}

// OpenStream returns a reader over stream index.
func (f *File) OpenStream(index uint32) (*io.SectionReader, error) {
	if index >= uint32(len(f.dir.sizes)) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidStreamIndex, index, len(f.dir.sizes))
	}
	size := f.dir.sizes[index]
	if size == NilStreamSize {
		return nil, fmt.Errorf("%w: %d", ErrNilStream, index)
	}
	return newBlockReader(f.ra, f.sb.BlockSize, f.dir.blocks[index], size), nil
}

// ReadStream reads stream index into memory.
func (f *File) ReadStream(index uint32) ([]byte, error) {
	sr, err := f.OpenStream(index)
	if err != nil {
		return nil, err
	}
	data := make([]byte, sr.Size())
	if _, err := io.ReadFull(sr, data); err != nil {
		return nil, fmt.Errorf("msf: failed to read stream %d: %w", index, err)
	}
	return data, nil
}
