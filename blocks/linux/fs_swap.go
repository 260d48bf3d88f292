// +build linux

package linux

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// SwapFs is the blocks.FsAdapter for a v1 swap area. Resize is done
// directly against the header bytes, no external tool: rewrite version
// and last_page at offset 1024.
type SwapFs struct {
	Dev blocks.Device

	order    binary.ByteOrder
	version  uint32
	lastPage uint32
}

// NewSwapFs returns a SwapFs FsAdapter wrapping dev.
func NewSwapFs(dev blocks.Device) *SwapFs {
	return &SwapFs{Dev: dev}
}

func (s *SwapFs) ReadSuperblock() error {
	f, err := os.Open(s.Dev.Path())
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, blocks.SwapMagicOffset+len(blocks.SwapMagic))
	if _, err := f.ReadAt(header, 0); err != nil {
		return errors.Wrap(err, "failed to read swap header")
	}

	if string(header[blocks.SwapMagicOffset:blocks.SwapMagicOffset+10]) != blocks.SwapMagic {
		return errors.Wrapf(blocks.ErrUnsupportedSuperblock, "%s: no swap magic", s.Dev.Path())
	}

	// The endianness of the version/last_page fields is not recorded
	// anywhere else in the header, so it's discovered by trying
	// big-endian first and falling back to little-endian.
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		version := order.Uint32(header[blocks.SwapVersionOffset:])
		if version == 1 {
			s.order = order
			s.version = version
			s.lastPage = order.Uint32(header[blocks.SwapLastPageOffset:])

			return nil
		}
	}

	return errors.Errorf("%s: swap header version is neither big nor little endian 1", s.Dev.Path())
}

func (s *SwapFs) CanShrink() bool { return true }

func (s *SwapFs) ResizeNeedsMountPoint() bool { return false }

func (s *SwapFs) BlockSize() uint64 { return blocks.SwapPageSize }

func (s *SwapFs) Fssize() uint64 { return uint64(s.lastPage+1) * blocks.SwapPageSize }

func (s *SwapFs) VfsType() string { return "swap" }

// Label always returns "": this adapter does not parse the v1 swap
// header's volume_name field.
func (s *SwapFs) Label() string { return "" }

func (s *SwapFs) Grow(upperBound uint64) error {
	return blocks.Grow(s, Mounter(), s.Dev, upperBound)
}

func (s *SwapFs) ReserveEndArea(pos uint64) error {
	return blocks.ReserveEndArea(s, Mounter(), s.Dev, pos)
}

func (s *SwapFs) Resize(target uint64) error {
	f, err := os.OpenFile(s.Dev.Path(), os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	lastPage := uint32(target/blocks.SwapPageSize) - 1

	buf := make([]byte, 8)
	s.order.PutUint32(buf[0:4], s.version)
	s.order.PutUint32(buf[4:8], lastPage)

	if _, err := f.WriteAt(buf, blocks.SwapVersionOffset); err != nil {
		return errors.Wrap(err, "failed to rewrite swap header")
	}

	s.lastPage = lastPage

	return nil
}

var (
	_ blocks.FsAdapter = (*SwapFs)(nil)
	_ blocks.Resizer   = (*SwapFs)(nil)
)
