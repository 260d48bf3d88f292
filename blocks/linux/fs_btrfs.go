// +build linux

package linux

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// BtrfsFs is the blocks.FsAdapter for btrfs. Resize is byte-granular and
// runs against the filesystem's current mount point: an existing mount is
// reused, and a temporary mount is made only when the filesystem is not
// mounted. A mount that predates the resize is not replaced by a fresh one.
type BtrfsFs struct {
	Dev blocks.Device

	devID uint64
	size  uint64
	label string
}

// NewBtrfsFs returns a BtrfsFs FsAdapter wrapping dev.
func NewBtrfsFs(dev blocks.Device) *BtrfsFs {
	return &BtrfsFs{Dev: dev}
}

func (b *BtrfsFs) ReadSuperblock() error {
	out, err := run("btrfs-show-super", "-f", b.Dev.Path())
	if err != nil {
		return errors.Wrap(err, "btrfs-show-super failed")
	}

	fields := parseColonFields(string(out))

	devID, err := strconv.ParseUint(strings.TrimSpace(fields["dev_item.devid"]), 10, 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse btrfs devid")
	}

	size, err := strconv.ParseUint(strings.TrimSpace(fields["dev_item.total_bytes"]), 10, 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse btrfs total_bytes")
	}

	b.devID = devID
	b.size = size
	b.label = strings.TrimSpace(fields["label"])

	return nil
}

func (b *BtrfsFs) CanShrink() bool { return true }

func (b *BtrfsFs) ResizeNeedsMountPoint() bool { return true }

func (b *BtrfsFs) BlockSize() uint64 { return blocks.SectorSize }

func (b *BtrfsFs) Fssize() uint64 { return b.size }

func (b *BtrfsFs) VfsType() string { return "btrfs" }

func (b *BtrfsFs) Label() string { return b.label }

func (b *BtrfsFs) Grow(upperBound uint64) error {
	return blocks.Grow(b, Mounter(), b.Dev, upperBound)
}

func (b *BtrfsFs) ReserveEndArea(pos uint64) error {
	return blocks.ReserveEndArea(b, Mounter(), b.Dev, pos)
}

func (b *BtrfsFs) Resize(target uint64) error {
	mounted, mountpoint, err := Mounter().IsMounted(b.Dev)
	if err != nil {
		return err
	}

	if !mounted {
		return errors.New("btrfs resize requires a mount point")
	}

	sizeArg := strconv.FormatUint(b.devID, 10) + ":" + strconv.FormatUint(target, 10)

	_, err = run("btrfs", "filesystem", "resize", sizeArg, mountpoint)

	return errors.Wrap(err, "btrfs filesystem resize failed")
}

var (
	_ blocks.FsAdapter = (*BtrfsFs)(nil)
	_ blocks.Resizer   = (*BtrfsFs)(nil)
)
