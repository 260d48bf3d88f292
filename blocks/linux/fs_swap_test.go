// +build linux

package linux_test

import (
	"encoding/binary"
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blocks "machinerun.io/blockconv"
	"machinerun.io/blockconv/blocks/linux"
)

func writeSwapHeader(t *testing.T, order binary.ByteOrder, lastPage uint32) string {
	t.Helper()

	size := blocks.SwapMagicOffset + len(blocks.SwapMagic)
	header := make([]byte, size)
	copy(header[blocks.SwapMagicOffset:], blocks.SwapMagic)
	order.PutUint32(header[blocks.SwapVersionOffset:], 1)
	order.PutUint32(header[blocks.SwapLastPageOffset:], lastPage)

	f, err := ioutil.TempFile("", "swap-*.img")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Name()) })

	_, err = f.Write(header)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	return f.Name()
}

func TestSwapFsReadSuperblockBigEndian(t *testing.T) {
	path := writeSwapHeader(t, binary.BigEndian, 255)

	s := linux.NewSwapFs(linux.NewDevice(path))
	require.NoError(t, s.ReadSuperblock())

	assert.Equal(t, uint64(256)*blocks.SwapPageSize, s.Fssize())
}

func TestSwapFsReadSuperblockLittleEndian(t *testing.T) {
	path := writeSwapHeader(t, binary.LittleEndian, 255)

	s := linux.NewSwapFs(linux.NewDevice(path))
	require.NoError(t, s.ReadSuperblock())

	assert.Equal(t, uint64(256)*blocks.SwapPageSize, s.Fssize())
}

func TestSwapFsReadSuperblockRejectsBadMagic(t *testing.T) {
	path := writeSwapHeader(t, binary.BigEndian, 255)

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("NOMAGIC!!!"), blocks.SwapMagicOffset)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s := linux.NewSwapFs(linux.NewDevice(path))
	err = s.ReadSuperblock()
	require.Error(t, err)
	assert.ErrorIs(t, err, blocks.ErrUnsupportedSuperblock)
}

func TestSwapFsResizeRewritesHeader(t *testing.T) {
	path := writeSwapHeader(t, binary.BigEndian, 255)

	s := linux.NewSwapFs(linux.NewDevice(path))
	require.NoError(t, s.ReadSuperblock())

	newSize := uint64(512) * blocks.SwapPageSize
	require.NoError(t, s.Resize(newSize))
	assert.Equal(t, newSize, s.Fssize())

	reread := linux.NewSwapFs(linux.NewDevice(path))
	require.NoError(t, reread.ReadSuperblock())
	assert.Equal(t, newSize, reread.Fssize())
}
