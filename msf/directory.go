package msf

import (
	"errors"
	"fmt"
	"io"

	"github.com/skdltmxn/pdb-apply/internal/stream"
)

// NilStreamSize marks a deleted stream in the directory.
const NilStreamSize = 0xFFFFFFFF

// Fixed stream indices of a PDB.
const (
	StreamPDBInfo = 1
	StreamTPI     = 2
	StreamDBI     = 3
	StreamIPI     = 4
)

var (
	ErrTruncatedDirectory = errors.New("msf: truncated stream directory")
	ErrInvalidStreamIndex = errors.New("msf: invalid stream index")
	ErrInvalidBlockIndex  = errors.New("msf: invalid block index")
	ErrNilStream          = errors.New("msf: nil stream")
)

// directory lists the size and the blocks of every stream.
type directory struct {
	sizes  []uint32
	blocks [][]uint32
}

// parseDirectory decodes the directory and checks every block index
// against numBlocks.
func parseDirectory(data []byte, sb *SuperBlock) (*directory, error) {
	r := stream.NewReader(data)
	n, err := r.ReadU32()
	if err != nil {
		return nil, ErrTruncatedDirectory
	}
	if uint64(n)*4 > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: %d streams", ErrTruncatedDirectory, n)
	}

	d := &directory{
		sizes:  make([]uint32, n),
		blocks: make([][]uint32, n),
	}
	for i := range d.sizes {
		d.sizes[i], _ = r.ReadU32()
	}
	for i, size := range d.sizes {
		if size == NilStreamSize || size == 0 {
			continue
		}
		count := sb.blocksFor(size)
		if uint64(count)*4 > uint64(r.Remaining()) {
			return nil, fmt.Errorf("%w: stream %d needs %d blocks", ErrTruncatedDirectory, i, count)
		}
		list := make([]uint32, count)
		for j := range list {
			list[j], _ = r.ReadU32()
			if list[j] >= sb.NumBlocks {
				return nil, fmt.Errorf("%w: stream %d block %d >= %d", ErrInvalidBlockIndex, i, list[j], sb.NumBlocks)
			}
		}
		d.blocks[i] = list
	}
	return d, nil
}

// readDirectory follows the block map at sb.BlockMapAddr to the directory
// blocks and decodes them.
func readDirectory(ra io.ReaderAt, sb *SuperBlock) (*directory, error) {
	numDirBlocks := sb.blocksFor(sb.NumDirectoryBytes)
	mapBytes := make([]byte, numDirBlocks*4)
	if _, err := ra.ReadAt(mapBytes, sb.blockOffset(sb.BlockMapAddr)); err != nil {
		return nil, fmt.Errorf("msf: failed to read directory block map: %w", err)
	}

	mr := stream.NewReader(mapBytes)
	dirBlocks := make([]uint32, numDirBlocks)
	for i := range dirBlocks {
		dirBlocks[i], _ = mr.ReadU32()
		if dirBlocks[i] >= sb.NumBlocks {
			return nil, fmt.Errorf("%w: directory block %d >= %d", ErrInvalidBlockIndex, dirBlocks[i], sb.NumBlocks)
		}
	}

	data, err := io.ReadAll(newBlockReader(ra, sb.BlockSize, dirBlocks, sb.NumDirectoryBytes))
	if err != nil {
		return nil, fmt.Errorf("msf: failed to read directory: %w", err)
	}
	return parseDirectory(data, sb)
}
