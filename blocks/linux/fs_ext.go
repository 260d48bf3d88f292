// +build linux

package linux

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// ExtFs is the blocks.FsAdapter for ext2/3/4, driven by tune2fs, e2fsck
// and resize2fs.
type ExtFs struct {
	Dev blocks.Device

	vfstype    string
	blockSize  uint64
	blockCount uint64
	state      string
	lastCheck  time.Time
	lastMount  time.Time
	label      string
}

// NewExtFs returns an ExtFs FsAdapter wrapping dev. vfstype must be one
// of "ext2", "ext3", "ext4" as reported by SuperblockType.
func NewExtFs(dev blocks.Device, vfstype string) *ExtFs {
	return &ExtFs{Dev: dev, vfstype: vfstype}
}

func (e *ExtFs) ReadSuperblock() error {
	out, err := run("tune2fs", "-l", e.Dev.Path())
	if err != nil {
		return errors.Wrap(err, "tune2fs -l failed")
	}

	fields := parseColonFields(string(out))

	bs, err := strconv.ParseUint(strings.TrimSpace(fields["Block size"]), 10, 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse ext block size")
	}

	bc, err := strconv.ParseUint(strings.TrimSpace(fields["Block count"]), 10, 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse ext block count")
	}

	e.blockSize = bs
	e.blockCount = bc
	e.state = strings.TrimSpace(fields["Filesystem state"])

	e.lastCheck = parseE2Time(fields["Last checked"])
	e.lastMount = parseE2Time(fields["Last mount time"])

	if name := strings.TrimSpace(fields["Filesystem volume name"]); name != "<none>" {
		e.label = name
	} else {
		e.label = ""
	}

	return nil
}

func (e *ExtFs) CanShrink() bool { return true }

func (e *ExtFs) ResizeNeedsMountPoint() bool { return false }

func (e *ExtFs) BlockSize() uint64 { return e.blockSize }

func (e *ExtFs) Fssize() uint64 { return e.blockSize * e.blockCount }

func (e *ExtFs) VfsType() string { return e.vfstype }

func (e *ExtFs) Label() string { return e.label }

func (e *ExtFs) Grow(upperBound uint64) error {
	return blocks.Grow(e, Mounter(), e.Dev, upperBound)
}

func (e *ExtFs) ReserveEndArea(pos uint64) error {
	return blocks.ReserveEndArea(e, Mounter(), e.Dev, pos)
}

// Resize runs e2fsck -f first when the filesystem is not mounted and isn't
// already known clean and checked after its last mount, then resize2fs to
// the target block count.
func (e *ExtFs) Resize(target uint64) error {
	mounted, _, err := Mounter().IsMounted(e.Dev)
	if err != nil {
		return err
	}

	if !mounted && (e.state != "clean" || e.lastCheck.Before(e.lastMount)) {
		if _, err := run("e2fsck", "-f", "-y", e.Dev.Path()); err != nil {
			return errors.Wrap(err, "e2fsck -f failed")
		}
	}

	blockCount := target / e.blockSize

	_, err := run("resize2fs", e.Dev.Path(), strconv.FormatUint(blockCount, 10))

	return errors.Wrap(err, "resize2fs failed")
}

func parseColonFields(s string) map[string]string {
	fields := map[string]string{}

	for _, line := range strings.Split(s, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		fields[key] = val
	}

	return fields
}

// parseE2Time parses tune2fs's "Day Mon DD HH:MM:SS YYYY" timestamps,
// treating "n/a" (never checked/mounted) as the zero time so it always
// compares as before any real timestamp.
func parseE2Time(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" || s == "n/a" {
		return time.Time{}
	}

	t, err := time.Parse("Mon Jan  2 15:04:05 2006", s)
	if err != nil {
		return time.Time{}
	}

	return t
}

var (
	_ blocks.FsAdapter = (*ExtFs)(nil)
	_ blocks.Resizer   = (*ExtFs)(nil)
)
