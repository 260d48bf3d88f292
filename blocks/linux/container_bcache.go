// +build linux

package linux

import (
	"bytes"
	"encoding/binary"
	"os"
	"path"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// BcacheBacking is the linux implementation of blocks.ContainerAdapter
// for a bcache backing device.
type BcacheBacking struct {
	blocks.SimpleContainer

	version  uint64
	csetUUID string
	name     string // /dev/bcacheN once activated
}

// NewBcacheBacking returns a BcacheBacking ContainerAdapter wrapping dev.
func NewBcacheBacking(dev blocks.Device) *BcacheBacking {
	return &BcacheBacking{SimpleContainer: blocks.SimpleContainer{Dev: dev}}
}

func (b *BcacheBacking) ReadSuperblock() error {
	f, err := os.Open(b.Dev.Path())
	if err != nil {
		return err
	}
	defer f.Close()

	sb := make([]byte, 4096+256)
	if _, err := f.ReadAt(sb, 0); err != nil {
		return errors.Wrap(err, "failed to read bcache superblock")
	}

	if !bytes.Equal(sb[blocks.BcacheMagicOffset:blocks.BcacheMagicOffset+16], blocks.BcacheMagic[:]) {
		return errors.Wrapf(blocks.ErrUnsupportedSuperblock, "%s: no bcache magic", b.Dev.Path())
	}

	b.version = binary.LittleEndian.Uint64(sb[4096+16 : 4096+24])
	if b.version != 1 && b.version != 4 {
		return errors.Errorf("%s: unsupported bcache backing version %d", b.Dev.Path(), b.version)
	}

	firstSector := binary.LittleEndian.Uint64(sb[4096+184 : 4096+192])
	b.SetOffset(firstSector * blocks.SectorSize)

	return nil
}

// Grow requires upperBound to equal the backing device's own size (a
// bcache backing device's capacity is whatever the device beneath it
// is; there is no notion of resizing to some smaller value), and writes
// "max" to the live sysfs resize knob so the kernel picks up the new
// size immediately. If the device is not currently registered, there is
// nothing to notify — bcache will see the new size on next
// registration.
func (b *BcacheBacking) Grow(upperBound uint64) error {
	devSize, err := b.Dev.Size()
	if err != nil {
		return err
	}

	if upperBound != devSize {
		return errors.Errorf("bcache resize to a size other than the device size is not implemented (upperBound=%d size=%d)", upperBound, devSize)
	}

	syspath, err := b.Dev.Sysfspath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path.Join(syspath, "bcache")); err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	if err := writeSysfs(path.Join(syspath, "bcache", "resize"), "max"); err != nil {
		return errors.Wrap(err, "failed to write bcache resize")
	}

	cached, err := b.CleartextDevice()
	if err != nil {
		return err
	}

	cached.ResetSize()

	cachedSize, err := cached.Size()
	if err != nil {
		return err
	}

	if cachedSize+b.Offset() != upperBound {
		return errors.Errorf("bcache resize failed: cached device size %d + offset %d != upper_bound %d", cachedSize, b.Offset(), upperBound)
	}

	return nil
}

func (b *BcacheBacking) ReserveEndArea(pos uint64) error {
	return nil
}

func (b *BcacheBacking) CleartextDevice() (blocks.Device, error) {
	if b.name == "" {
		return nil, errors.New("bcache backing device is not activated")
	}

	return blocks.Device(NewDevice(path.Join("/dev", b.name))), nil
}

func (b *BcacheBacking) Activate(name string) error {
	if err := registerBcache(b.Dev.Path()); err != nil {
		return err
	}

	b.name = name

	return nil
}

func (b *BcacheBacking) Deactivate() error {
	if b.name == "" {
		return nil
	}

	syspath, err := sysPathForDevice(b.name)
	if err != nil {
		return err
	}

	if err := writeSysfs(path.Join(syspath, "bcache", "stop"), "1"); err != nil {
		return errors.Wrap(err, "failed to stop bcache device")
	}

	b.name = ""

	return nil
}

func registerBcache(devPath string) error {
	return writeSysfs("/sys/fs/bcache/register", devPath)
}

func writeSysfs(p, value string) error {
	f, err := os.OpenFile(p, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(value)

	return err
}

var _ blocks.ContainerAdapter = (*BcacheBacking)(nil)
