// +build linux

package linux

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// ReiserFs is the blocks.FsAdapter for reiserfs, byte-granular via
// resize_reiserfs -s, read via reiserfstune.
type ReiserFs struct {
	Dev blocks.Device

	blockSize uint64
	size      uint64
}

// NewReiserFs returns a ReiserFs FsAdapter wrapping dev.
func NewReiserFs(dev blocks.Device) *ReiserFs {
	return &ReiserFs{Dev: dev}
}

func (r *ReiserFs) ReadSuperblock() error {
	out, err := run("reiserfstune", r.Dev.Path())
	if err != nil {
		return errors.Wrap(err, "reiserfstune failed")
	}

	fields := parseColonFields(string(out))

	bs, err := strconv.ParseUint(strings.TrimSpace(fields["Blocksize"]), 10, 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse reiserfs blocksize")
	}

	count, err := strconv.ParseUint(strings.TrimSpace(fields["Count of blocks on the device"]), 10, 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse reiserfs block count")
	}

	r.blockSize = bs
	r.size = bs * count

	return nil
}

func (r *ReiserFs) CanShrink() bool { return true }

func (r *ReiserFs) ResizeNeedsMountPoint() bool { return false }

func (r *ReiserFs) BlockSize() uint64 { return r.blockSize }

func (r *ReiserFs) Fssize() uint64 { return r.size }

func (r *ReiserFs) VfsType() string { return "reiserfs" }

// Label always returns "": reiserfstune exposes no volume label field.
func (r *ReiserFs) Label() string { return "" }

func (r *ReiserFs) Grow(upperBound uint64) error {
	return blocks.Grow(r, Mounter(), r.Dev, upperBound)
}

func (r *ReiserFs) ReserveEndArea(pos uint64) error {
	return blocks.ReserveEndArea(r, Mounter(), r.Dev, pos)
}

func (r *ReiserFs) Resize(target uint64) error {
	_, err := run("resize_reiserfs", "-s", strconv.FormatUint(target, 10), r.Dev.Path())
	return errors.Wrap(err, "resize_reiserfs failed")
}

var (
	_ blocks.FsAdapter = (*ReiserFs)(nil)
	_ blocks.Resizer   = (*ReiserFs)(nil)
)
