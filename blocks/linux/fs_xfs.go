// +build linux

package linux

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// XfsFs is the blocks.FsAdapter for XFS: grow-only, resized via
// xfs_growfs against a mount point.
type XfsFs struct {
	Dev blocks.Device

	blockSize  uint64
	blockCount uint64
	label      string
}

// NewXfsFs returns an XfsFs FsAdapter wrapping dev.
func NewXfsFs(dev blocks.Device) *XfsFs {
	return &XfsFs{Dev: dev}
}

func (x *XfsFs) ReadSuperblock() error {
	out, err := run("xfs_db", "-r", "-c", "sb 0", "-c", "print", x.Dev.Path())
	if err != nil {
		return errors.Wrap(err, "xfs_db failed")
	}

	fields := parseEqualFields(string(out))

	bs, err := strconv.ParseUint(fields["blocksize"], 10, 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse xfs blocksize")
	}

	bc, err := strconv.ParseUint(fields["dblocks"], 10, 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse xfs dblocks")
	}

	x.blockSize = bs
	x.blockCount = bc
	x.label = parseXfsFname(fields["fname"])

	return nil
}

// parseXfsFname strips the surrounding quotes xfs_db prints the label
// field in and the trailing run of escaped NUL padding ("\000") the
// fixed-width on-disk field leaves behind.
func parseXfsFname(raw string) string {
	name := strings.Trim(raw, `"`)
	if idx := strings.Index(name, `\000`); idx >= 0 {
		name = name[:idx]
	}

	return name
}

func (x *XfsFs) CanShrink() bool { return false }

func (x *XfsFs) ResizeNeedsMountPoint() bool { return true }

func (x *XfsFs) BlockSize() uint64 { return x.blockSize }

func (x *XfsFs) Fssize() uint64 { return x.blockSize * x.blockCount }

func (x *XfsFs) VfsType() string { return "xfs" }

func (x *XfsFs) Label() string { return x.label }

func (x *XfsFs) Grow(upperBound uint64) error {
	return blocks.Grow(x, Mounter(), x.Dev, upperBound)
}

func (x *XfsFs) ReserveEndArea(pos uint64) error {
	return blocks.ReserveEndArea(x, Mounter(), x.Dev, pos)
}

// Resize requires a mount point (enforced by mountAndResize via
// ResizeNeedsMountPoint, which acquires one before calling Resize);
// xfs_growfs takes the mount point, not the device, and a block count
// via -D.
func (x *XfsFs) Resize(target uint64) error {
	mounted, mountpoint, err := Mounter().IsMounted(x.Dev)
	if err != nil {
		return err
	}

	if !mounted {
		return errors.New("xfs resize requires a mount point")
	}

	blockCount := target / x.blockSize

	_, err = run("xfs_growfs", "-D", strconv.FormatUint(blockCount, 10), mountpoint)

	return errors.Wrap(err, "xfs_growfs failed")
}

func parseEqualFields(s string) map[string]string {
	fields := map[string]string{}

	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)

		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		fields[key] = val
	}

	return fields
}

var (
	_ blocks.FsAdapter = (*XfsFs)(nil)
	_ blocks.Resizer   = (*XfsFs)(nil)
)
