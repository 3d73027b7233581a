// Package msf reads the MSF 7.00 multi-stream container that holds the
// streams of a PDB file.
package msf

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/pdb-apply/internal/stream"
)

// Magic is the signature at offset 0 of every MSF 7.00 file.
const Magic = "Microsoft C/C++ MSF 7.00\r\n\x1a\x44\x53\x00\x00\x00"

// SuperBlockSize is the encoded size of the super block.
const SuperBlockSize = 56

const (
	minBlockSize = 512
	maxBlockSize = 65536
)

var (
	ErrInvalidMagic     = errors.New("msf: invalid magic signature, not a PDB 7.00 file")
	ErrInvalidBlockSize = errors.New("msf: invalid block size")
	ErrInvalidFPMBlock  = errors.New("msf: invalid free page map block")
	ErrTruncatedFile    = errors.New("msf: file is truncated")
)

// SuperBlock is the fixed header of an MSF file.
type SuperBlock struct {
	BlockSize         uint32
	FreeBlockMapBlock uint32 // 1 or 2
	NumBlocks         uint32
	NumDirectoryBytes uint32
	BlockMapAddr      uint32 // first block holding the directory block list
}

// ParseSuperBlock decodes and validates a super block.
func ParseSuperBlock(data []byte) (*SuperBlock, error) {
	r := stream.NewReader(data)
	magic, err := r.ReadBytes(len(Magic))
	if err != nil {
		return nil, ErrTruncatedFile
	}
	if string(magic) != Magic {
		return nil, ErrInvalidMagic
	}

	var sb SuperBlock
	var reserved uint32
	for _, f := range []*uint32{&sb.BlockSize, &sb.FreeBlockMapBlock, &sb.NumBlocks, &sb.NumDirectoryBytes, &reserved, &sb.BlockMapAddr} {
		if *f, err = r.ReadU32(); err != nil {
			return nil, ErrTruncatedFile
		}
	}
	if err := sb.Validate(); err != nil {
		return nil, err
	}
	return &sb, nil
}

// Validate checks the super block for internal consistency.
func (sb *SuperBlock) Validate() error {
	if sb.BlockSize < minBlockSize || sb.BlockSize > maxBlockSize || sb.BlockSize&(sb.BlockSize-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBlockSize, sb.BlockSize)
	}
	if sb.FreeBlockMapBlock != 1 && sb.FreeBlockMapBlock != 2 {
		return fmt.Errorf("%w: %d", ErrInvalidFPMBlock, sb.FreeBlockMapBlock)
	}
	if sb.BlockMapAddr == 0 || sb.BlockMapAddr >= sb.NumBlocks {
		return fmt.Errorf("%w: block map at %d of %d blocks", ErrInvalidBlockIndex, sb.BlockMapAddr, sb.NumBlocks)
	}
	return nil
}

// blocksFor returns the number of blocks needed to hold n bytes.
func (sb *SuperBlock) blocksFor(n uint32) uint32 {
	return uint32((uint64(n) + uint64(sb.BlockSize) - 1) / uint64(sb.BlockSize))
}

// FileSize returns the size implied by NumBlocks.
func (sb *SuperBlock) FileSize() int64 {
	return int64(sb.NumBlocks) * int64(sb.BlockSize)
}

func (sb *SuperBlock) blockOffset(block uint32) int64 {
	return int64(block) * int64(sb.BlockSize)
}
