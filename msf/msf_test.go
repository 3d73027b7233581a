package msf

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/pdb-apply/internal/msftest"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestReadStreams(t *testing.T) {
	big := pattern(1300)
	img := msftest.Build(512, [][]byte{{}, []byte("info"), nil, big})

	f, err := NewFile(bytes.NewReader(img), int64(len(img)))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, uint32(512), f.SuperBlock().BlockSize)
	assert.Equal(t, 4, f.NumStreams())
	assert.False(t, f.StreamExists(0))
	assert.True(t, f.StreamExists(1))
	assert.False(t, f.StreamExists(2))
	assert.False(t, f.StreamExists(9))
	assert.Equal(t, uint32(1300), f.StreamSize(3))
	assert.Equal(t, uint32(0), f.StreamSize(2))

	data, err := f.ReadStream(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("info"), data)

	data, err = f.ReadStream(3)
	require.NoError(t, err)
	assert.Equal(t, big, data)

	empty, err := f.ReadStream(0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.ReadStream(2)
	assert.ErrorIs(t, err, ErrNilStream)
	_, err = f.ReadStream(4)
	assert.ErrorIs(t, err, ErrInvalidStreamIndex)
}

func TestStreamReadAtAcrossBlocks(t *testing.T) {
	big := pattern(1300)
	img := msftest.Build(512, [][]byte{big})
	f, err := NewFile(bytes.NewReader(img), int64(len(img)))
	require.NoError(t, err)

	sr, err := f.OpenStream(0)
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := sr.ReadAt(buf, 480)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, big[480:580], buf)

	n, err = sr.ReadAt(buf, 1250)
	assert.Equal(t, 50, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewFileErrors(t *testing.T) {
	img := msftest.Build(512, [][]byte{[]byte("x")})

	_, err := NewFile(bytes.NewReader(img[:40]), 40)
	assert.ErrorIs(t, err, ErrTruncatedFile)

	_, err = NewFile(bytes.NewReader(img), int64(len(img)-1))
	assert.ErrorIs(t, err, ErrTruncatedFile)

	bad := bytes.Clone(img)
	bad[0] = 'm'
	_, err = NewFile(bytes.NewReader(bad), int64(len(bad)))
	assert.ErrorIs(t, err, ErrInvalidMagic)

	bad = bytes.Clone(img)
	bad[32] = 0x01 // block size 513
	_, err = NewFile(bytes.NewReader(bad), int64(len(bad)))
	assert.ErrorIs(t, err, ErrInvalidBlockSize)

	bad = bytes.Clone(img)
	bad[36] = 3
	_, err = NewFile(bytes.NewReader(bad), int64(len(bad)))
	assert.ErrorIs(t, err, ErrInvalidFPMBlock)
}
