// +build linux

package linux

import (
	blocks "machinerun.io/blockconv"
)

// NewContainer is the blocks.ContainerFactory for this package: "bcache"
// and "crypto_LUKS" are the only two recognized container kinds.
func NewContainer(kind string, dev blocks.Device) (blocks.ContainerAdapter, error) {
	switch kind {
	case "crypto_LUKS":
		return NewLUKS(dev), nil
	case "bcache":
		return NewBcacheBacking(dev), nil
	default:
		return nil, blocks.UnsupportedSuperblockError(dev.Path(), kind)
	}
}

// NewFs is the blocks.FsFactory for this package: ext2/3/4, xfs, btrfs,
// reiserfs, nilfs2 and swap.
func NewFs(kind string, dev blocks.Device) (blocks.FsAdapter, error) {
	switch kind {
	case "ext2", "ext3", "ext4":
		return NewExtFs(dev, kind), nil
	case "xfs":
		return NewXfsFs(dev), nil
	case "btrfs":
		return NewBtrfsFs(dev), nil
	case "reiserfs":
		return NewReiserFs(dev), nil
	case "nilfs2":
		return NewNilfsFs(dev), nil
	case "swap":
		return NewSwapFs(dev), nil
	default:
		return nil, blocks.UnsupportedSuperblockError(dev.Path(), kind)
	}
}

// Discover wraps blocks.Discover, closing over this package's
// NewContainer/NewFs factories so callers don't need to thread them
// through by hand every time.
func Discover(dev blocks.Device) (*blocks.BlockStack, error) {
	return blocks.Discover(dev, NewContainer, NewFs)
}

// deviceResizer is the linux implementation of blocks.DeviceResizer. It
// does not move partition boundaries or resize LVs. For a partition,
// GrowDevice asks the kernel to reread the partition table (blockdev
// --rereadpt) and returns the size the device then reports, and
// ShrinkDevice only drops the cached size. For any other device (a whole
// disk, a LV, a dm-crypt/bcache mapping), GrowDevice returns the current
// size and ShrinkDevice does nothing.
type deviceResizer struct{}

func (deviceResizer) GrowDevice(dev blocks.Device, newSize uint64) (uint64, error) {
	isPart, err := dev.IsPartition()
	if err != nil {
		return 0, err
	}

	if !isPart {
		return dev.Size()
	}

	if err := runOK("blockdev", "--rereadpt", dev.Path()); err != nil {
		dev.ResetSize()
		return dev.Size()
	}

	dev.ResetSize()

	return dev.Size()
}

func (deviceResizer) ShrinkDevice(dev blocks.Device, newSize uint64) error {
	isPart, err := dev.IsPartition()
	if err != nil {
		return err
	}

	if !isPart {
		return nil
	}

	dev.ResetSize()

	return nil
}

// System bundles every OS-backed capability the root package's
// injectors and resize driver need: device probing, volume management,
// mounting, bcache superblock synthesis and partition-table editing. It
// carries no state of its own; every method returns the corresponding
// package-level singleton, giving callers one place to wire against
// instead of importing this package's free functions directly.
type System struct{}

func (System) NewDevice(path string) blocks.Device { return NewDevice(path) }

func (System) VolumeManager() blocks.VolumeManager { return VolumeManager() }

func (System) Mounter() blocks.Mounter { return Mounter() }

func (System) BcacheMaker() blocks.BcacheMaker { return BcacheMaker() }

func (System) LvmMaker() blocks.LvmMaker { return LvmMaker() }

func (System) PartitionMover() blocks.PartitionMover { return PartitionMover() }

func (System) DeviceResizer() blocks.DeviceResizer { return deviceResizer{} }

func (System) Discover(dev blocks.Device) (*blocks.BlockStack, error) { return Discover(dev) }
