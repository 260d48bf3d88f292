// +build linux

package linux

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// sysPathForDevice returns /sys/class/block/<kname> for a kname or a
// /dev path, resolving symlinks first.
func sysPathForDevice(dev string) (string, error) {
	const sysdir = "/sys/class/block"

	var syspath string

	if strings.Contains(dev, "/") {
		devpath, err := filepath.EvalSymlinks(dev)
		if err != nil {
			return "", err
		}

		syspath = path.Join(sysdir, path.Base(devpath))
	} else {
		syspath = path.Join(sysdir, dev)
	}

	if _, err := os.Stat(syspath); err != nil {
		return "", err
	}

	return syspath, nil
}

func knameForDevice(dev string) (string, error) {
	syspath, err := sysPathForDevice(dev)
	if err != nil {
		return "", err
	}

	return path.Base(syspath), nil
}

// wholeDiskKname returns the block device name ("sda") given "sda1",
// "/dev/sda1", or "/dev/sda": partitions carry a "partition" sysfs
// attribute, plain devices do not.
func wholeDiskKname(dev string) (string, error) {
	syspath, err := sysPathForDevice(dev)
	if err != nil {
		return "", err
	}

	if _, err := ioutil.ReadFile(path.Join(syspath, "partition")); err != nil {
		return path.Base(syspath), nil
	}

	sysfull, err := filepath.EvalSymlinks(syspath)
	if err != nil {
		return "", err
	}

	return path.Base(path.Dir(sysfull)), nil
}

func isPartition(dev string) (bool, error) {
	syspath, err := sysPathForDevice(dev)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path.Join(syspath, "partition")); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func isDM(dev string) (bool, error) {
	syspath, err := sysPathForDevice(dev)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path.Join(syspath, "dm"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func isLV(dev string) (bool, error) {
	syspath, err := sysPathForDevice(dev)
	if err != nil {
		return false, err
	}

	content, err := ioutil.ReadFile(path.Join(syspath, "dm", "uuid"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	return strings.HasPrefix(string(content), "LVM-"), nil
}

// iterHolders returns the /dev paths of every device layered on top of
// dev, found via /sys/class/block/<kname>/holders.
func iterHolders(dev string) ([]string, error) {
	syspath, err := sysPathForDevice(dev)
	if err != nil {
		return nil, err
	}

	entries, err := ioutil.ReadDir(path.Join(syspath, "holders"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	holders := make([]string, 0, len(entries))
	for _, e := range entries {
		holders = append(holders, path.Join("/dev", e.Name()))
	}

	return holders, nil
}

func devnum(dev string) (int, int, error) {
	syspath, err := sysPathForDevice(dev)
	if err != nil {
		return 0, 0, err
	}

	content, err := ioutil.ReadFile(path.Join(syspath, "dev"))
	if err != nil {
		return 0, 0, err
	}

	var major, minor int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(content)), "%d:%d", &major, &minor); err != nil {
		return 0, 0, errors.Wrapf(err, "failed to parse dev file for %s", dev)
	}

	return major, minor, nil
}
