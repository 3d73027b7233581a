package msf

import (
	"fmt"
	"io"
)

// blockReader reads a stream scattered over fixed-size blocks.
type blockReader struct {
	ra        io.ReaderAt
	blockSize uint32
	blocks    []uint32
	size      uint32
}

func newBlockReader(ra io.ReaderAt, blockSize uint32, blocks []uint32, size uint32) *io.SectionReader {
	br := &blockReader{ra: ra, blockSize: blockSize, blocks: blocks, size: size}
	return io.NewSectionReader(br, 0, int64(size))
}

// ReadAt implements io.ReaderAt, crossing block boundaries as needed.
func (br *blockReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("msf: negative offset %d", off)
	}
	if off >= int64(br.size) {
		return 0, io.EOF
	}

	n := 0
	pos := uint32(off)
	for n < len(p) && pos < br.size {
		idx := pos / br.blockSize
		within := pos % br.blockSize
		if int(idx) >= len(br.blocks) {
			return n, io.ErrUnexpectedEOF
		}

		chunk := min(uint32(len(p)-n), br.blockSize-within, br.size-pos)
		fileOff := int64(br.blocks[idx])*int64(br.blockSize) + int64(within)
		m, err := br.ra.ReadAt(p[n:n+int(chunk)], fileOff)
		n += m
		pos += uint32(m)
		if err != nil && !(err == io.EOF && uint32(m) == chunk) {
			return n, err
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
