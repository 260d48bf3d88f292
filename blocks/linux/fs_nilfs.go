// +build linux

package linux

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// NilfsFs is the blocks.FsAdapter for nilfs2, byte-granular via
// nilfs-resize --yes, requiring a mount point.
type NilfsFs struct {
	Dev blocks.Device

	blockSize uint64
	size      uint64
	label     string
}

// NewNilfsFs returns a NilfsFs FsAdapter wrapping dev.
func NewNilfsFs(dev blocks.Device) *NilfsFs {
	return &NilfsFs{Dev: dev}
}

func (n *NilfsFs) ReadSuperblock() error {
	out, err := run("nilfs-tune", "-l", n.Dev.Path())
	if err != nil {
		return errors.Wrap(err, "nilfs-tune -l failed")
	}

	fields := parseColonFields(string(out))

	bs, err := strconv.ParseUint(strings.TrimSpace(fields["Block size"]), 10, 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse nilfs2 block size")
	}

	size, err := strconv.ParseUint(strings.TrimSpace(fields["Device size"]), 10, 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse nilfs2 device size")
	}

	n.blockSize = bs
	n.size = size
	n.label = strings.TrimSpace(fields["Label"])

	return nil
}

func (n *NilfsFs) CanShrink() bool { return true }

func (n *NilfsFs) ResizeNeedsMountPoint() bool { return true }

func (n *NilfsFs) BlockSize() uint64 { return n.blockSize }

func (n *NilfsFs) Fssize() uint64 { return n.size }

func (n *NilfsFs) VfsType() string { return "nilfs2" }

func (n *NilfsFs) Label() string { return n.label }

func (n *NilfsFs) Grow(upperBound uint64) error {
	return blocks.Grow(n, Mounter(), n.Dev, upperBound)
}

func (n *NilfsFs) ReserveEndArea(pos uint64) error {
	return blocks.ReserveEndArea(n, Mounter(), n.Dev, pos)
}

func (n *NilfsFs) Resize(target uint64) error {
	mounted, _, err := Mounter().IsMounted(n.Dev)
	if err != nil {
		return err
	}

	if !mounted {
		return errors.New("nilfs2 resize requires a mount point")
	}

	_, err = run("nilfs-resize", "--yes", n.Dev.Path(), strconv.FormatUint(target, 10))

	return errors.Wrap(err, "nilfs-resize failed")
}

var (
	_ blocks.FsAdapter = (*NilfsFs)(nil)
	_ blocks.Resizer   = (*NilfsFs)(nil)
)
