package blocks

// Device is a block device identified by a path under /dev. Every value
// is computed lazily by a probing backend (see blocks/linux) and cached
// per Device instance until ResetSize invalidates it; two Device values
// for the same path never share a cache.
type Device interface {
	// Path is the filesystem path under /dev this Device was opened with.
	Path() string

	// Size returns the device size in bytes, always a multiple of 512.
	Size() (uint64, error)

	// SuperblockType returns the superblock type recognized at offset 0
	// ("", ext2, ext3, ext4, xfs, btrfs, reiserfs, nilfs2, swap,
	// crypto_LUKS, LVM2_member, bcache, ...).
	SuperblockType() (string, error)

	// SuperblockAt probes for a recognized superblock at a byte offset,
	// used to look past a container's header at its payload.
	SuperblockAt(offset uint64) (string, error)

	// HasBcacheSuperblock reports whether the bcache magic is present at
	// BcacheMagicOffset. Always false for devices <= 8192 bytes.
	HasBcacheSuperblock() (bool, error)

	// Sysfspath returns /sys/dev/block/<major>:<minor> for this device.
	Sysfspath() (string, error)

	// IterHolders lists the devices layered on top of this one, found via
	// sysfs holders/.
	IterHolders() ([]string, error)

	// IsPartition reports whether sysfs carries a nonempty partition file
	// for this device.
	IsPartition() (bool, error)

	// IsLV reports whether the device is a device-mapper node whose dm
	// uuid carries LVM's "LVM-" prefix.
	IsLV() (bool, error)

	// DevNum returns the (major, minor) device number pair.
	DevNum() (int, int, error)

	// ResetSize invalidates any cached size/superblock-type value. Must
	// be called after any operation that may have changed the device's
	// size or contents at offset 0.
	ResetSize()
}

// PhysicalWriter is the minimal random-access read/write capability
// SyntheticDevice.CopyToPhysical needs from a real device handle. *os.File
// satisfies it directly.
type PhysicalWriter interface {
	WriteAt(p []byte, off int64) (int, error)
	ReadAt(p []byte, off int64) (int, error)
}

// Mounter abstracts the scoped-mount behavior FsAdapter.ReserveEndArea
// needs without tying the algorithm in fsadapter.go to real syscalls,
// so it can be exercised with a fake in tests.
type Mounter interface {
	// IsMounted reports whether dev is currently mounted, and where.
	IsMounted(dev Device) (bool, string, error)

	// MountScoped mounts dev (vfstype) on a fresh temporary mount point
	// with noatime,noexec,nodev and returns it along with a release func
	// that must be called exactly once to unmount and remove it.
	MountScoped(dev Device, vfstype string) (mountpoint string, release func() error, err error)
}
