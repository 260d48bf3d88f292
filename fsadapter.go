package blocks

import "github.com/pkg/errors"

// FsAdapter is the uniform contract over every filesystem kind this
// module understands: ext2/3/4, XFS, btrfs, reiserfs, nilfs2 and swap.
type FsAdapter interface {
	ReadSuperblock() error
	CanShrink() bool
	ResizeNeedsMountPoint() bool
	BlockSize() uint64
	Fssize() uint64
	Grow(upperBound uint64) error
	ReserveEndArea(pos uint64) error
	VfsType() string

	// Label returns the filesystem's volume label, or "" if it has
	// none (or the filesystem kind doesn't carry one).
	Label() string
}

// Resizer is the other half of the FsAdapter contract: the thing every
// concrete adapter's ReserveEndArea/Grow delegate to after the shared
// shrink-path bookkeeping below. Split out as its own interface (rather
// than an unexported method on FsAdapter) so linux-package adapters can
// implement it directly.
type Resizer interface {
	FsAdapter
	Resize(target uint64) error
}

// ReserveEndArea implements the algorithm shared by every FsAdapter's
// ReserveEndArea method:
//  1. pos is aligned down to the filesystem's block size.
//  2. if Fssize() is already <= pos, it's a no-op.
//  3. if the filesystem can't shrink, fail with ErrCantShrink.
//  4. otherwise mount (if needed) and resize.
//
// Concrete adapters call this instead of duplicating the bookkeeping;
// Go has no base-class method reuse, so the shared algorithm lives here
// as a free function taking the resizer and a Mounter.
func ReserveEndArea(fs Resizer, mounter Mounter, dev Device, pos uint64) error {
	target := AlignDown(pos, fs.BlockSize())

	if fs.Fssize() <= target {
		return nil
	}

	if !fs.CanShrink() {
		return errors.Wrapf(ErrCantShrink, "fssize=%d target=%d", fs.Fssize(), target)
	}

	return mountAndResize(fs, mounter, dev, target)
}

// Grow implements the algorithm shared by every FsAdapter's Grow method:
// align upperBound down to the block size and, if that's past the
// current fssize, mount (if needed) and resize up to it. Unlike
// ReserveEndArea there is no CanShrink gate, since every adapter this
// module supports can grow.
func Grow(fs Resizer, mounter Mounter, dev Device, upperBound uint64) error {
	target := AlignDown(upperBound, fs.BlockSize())

	if fs.Fssize() >= target {
		return nil
	}

	return mountAndResize(fs, mounter, dev, target)
}

// mountAndResize acquires a scoped mount when the adapter needs one and
// is not already mounted, invokes the adapter's Resize, then
// re-reads the superblock and asserts the result.
func mountAndResize(fs Resizer, mounter Mounter, dev Device, target uint64) error {
	var cleanup cleanupStack
	defer cleanup.unwind() //nolint:errcheck

	if fs.ResizeNeedsMountPoint() {
		mounted, _, err := mounter.IsMounted(dev)
		if err != nil {
			return err
		}

		if !mounted {
			_, release, err := mounter.MountScoped(dev, fs.VfsType())
			if err != nil {
				return errors.Wrap(err, "failed to acquire scoped mount")
			}

			cleanup.push(release)
		}
	}

	if err := fs.Resize(target); err != nil {
		return errors.Wrap(err, "filesystem resize failed")
	}

	if err := fs.ReadSuperblock(); err != nil {
		return errors.Wrap(err, "failed to re-read superblock after resize")
	}

	if fs.Fssize() != target {
		return errors.Errorf("resize did not converge: fssize=%d target=%d", fs.Fssize(), target)
	}

	return nil
}
