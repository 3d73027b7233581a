// Package msftest builds in-memory MSF 7.00 images for tests.
package msftest

import "encoding/binary"

const magic = "Microsoft C/C++ MSF 7.00\r\n\x1a\x44\x53\x00\x00\x00"

// Build lays out streams in an MSF image with the given block size. A nil
// entry becomes a nil stream. The directory block list must fit in one block.
func Build(blockSize uint32, streams [][]byte) []byte {
	bs := int(blockSize)
	// Block 0 is the super block, 1 and 2 the free page maps.
	blocks := [][]byte{make([]byte, bs), make([]byte, bs), make([]byte, bs)}
	alloc := func(data []byte) []uint32 {
		var idx []uint32
		for off := 0; off < len(data); off += bs {
			b := make([]byte, bs)
			copy(b, data[off:])
			idx = append(idx, uint32(len(blocks)))
			blocks = append(blocks, b)
		}
		return idx
	}

	le := binary.LittleEndian
	dir := le.AppendUint32(nil, uint32(len(streams)))
	var lists [][]uint32
	for _, s := range streams {
		if s == nil {
			dir = le.AppendUint32(dir, 0xFFFFFFFF)
			lists = append(lists, nil)
			continue
		}
		dir = le.AppendUint32(dir, uint32(len(s)))
		lists = append(lists, alloc(s))
	}
	for _, list := range lists {
		for _, b := range list {
			dir = le.AppendUint32(dir, b)
		}
	}

	var blockMap []byte
	for _, b := range alloc(dir) {
		blockMap = le.AppendUint32(blockMap, b)
	}
	mapAddr := alloc(blockMap)[0]

	sb := blocks[0]
	copy(sb, magic)
	le.PutUint32(sb[32:], blockSize)
	le.PutUint32(sb[36:], 1)
	le.PutUint32(sb[40:], uint32(len(blocks)))
	le.PutUint32(sb[44:], uint32(len(dir)))
	le.PutUint32(sb[52:], mapAddr)

	out := make([]byte, 0, len(blocks)*bs)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}
