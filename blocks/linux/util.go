// +build linux

package linux

import (
	"io"
	"os"
	"path"
)

// fileSize returns the size of an open file or block device without
// disturbing its current seek position.
func fileSize(file *os.File) (uint64, error) {
	cur, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}

	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}

	if _, err := file.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}

	return uint64(end), nil
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func lvPath(vgName, lvName string) string {
	return path.Join("/dev", vgName, lvName)
}

func vgLv(vgName, lvName string) string {
	return path.Join(vgName, lvName)
}
