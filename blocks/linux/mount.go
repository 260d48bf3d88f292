// +build linux

package linux

import (
	"bufio"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	blocks "machinerun.io/blockconv"
)

// mounter is the linux implementation of blocks.Mounter, backed directly
// by the mount(2)/umount(2) syscalls and /proc/mounts and /proc/swaps.
type mounter struct{}

// Mounter returns the linux implementation of blocks.Mounter.
func Mounter() blocks.Mounter { return mounter{} }

func (mounter) IsMounted(dev blocks.Device) (bool, string, error) {
	if swapped, err := isSwappedOn(dev.Path()); err != nil {
		return false, "", err
	} else if swapped {
		return true, "[SWAP]", nil
	}

	entries, err := readProcMounts()
	if err != nil {
		return false, "", err
	}

	for _, e := range entries {
		if e.source == dev.Path() {
			return true, e.target, nil
		}
	}

	return false, "", nil
}

func (mounter) MountScoped(dev blocks.Device, vfstype string) (string, func() error, error) {
	mountpoint, err := ioutil.TempDir("", "blockconv-mnt-")
	if err != nil {
		return "", nil, err
	}

	if err := unix.Mount(dev.Path(), mountpoint, vfstype, unix.MS_NOATIME|unix.MS_NOEXEC|unix.MS_NODEV, ""); err != nil {
		os.Remove(mountpoint) //nolint:errcheck
		return "", nil, errors.Wrapf(err, "mount %s at %s failed", dev.Path(), mountpoint)
	}

	release := func() error {
		if err := unix.Unmount(mountpoint, 0); err != nil {
			return errors.Wrapf(err, "unmount %s failed", mountpoint)
		}

		return os.Remove(mountpoint)
	}

	return mountpoint, release, nil
}

type mountEntry struct {
	source string
	target string
	fstype string
}

// readProcMounts parses /proc/mounts, resolving symlinked device paths
// (e.g. /dev/mapper/foo vs its /dev/dm-N backing kname) isn't attempted
// here: callers compare against the path originally passed to Device.
func readProcMounts() ([]mountEntry, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []mountEntry

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}

		entries = append(entries, mountEntry{
			source: unescapeOctal(fields[0]),
			target: unescapeOctal(fields[1]),
			fstype: fields[2],
		})
	}

	return entries, scanner.Err()
}

// isSwappedOn reports whether devPath appears as an active swap area in
// /proc/swaps. A filesystem on top of a device never shows up here, so
// this is the only reliable signal for Open Question #3: "is a swap
// device mounted" means "is it currently swapon'd". /proc/swaps entries
// are compared against devPath by device-number tuple, not by path
// string, so a differently-spelled path to the same device (a
// /dev/mapper/ alias vs its /dev/dm-N kname) is still recognized.
func isSwappedOn(devPath string) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(devPath, &st); err != nil {
		return false, errors.Wrapf(err, "stat %s failed", devPath)
	}

	f, err := os.Open("/proc/swaps")
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var swapSt unix.Stat_t
		if err := unix.Stat(fields[0], &swapSt); err != nil {
			continue
		}

		if swapSt.Rdev == st.Rdev {
			return true, nil
		}
	}

	return false, scanner.Err()
}

// unescapeOctal undoes the \NNN octal escaping /proc/mounts applies to
// spaces, tabs, backslashes and newlines in paths.
func unescapeOctal(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}

	var b strings.Builder

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3

				continue
			}
		}

		b.WriteByte(s[i])
	}

	return b.String()
}

var _ blocks.Mounter = mounter{}
