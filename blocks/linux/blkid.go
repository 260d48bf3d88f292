// +build linux

package linux

import (
	"bufio"
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// superblockType runs blkid against devPath and returns its TYPE=
// field, or "" if blkid found no recognizable superblock.
func superblockType(devPath string) (string, error) {
	out, err := run("blkid", "-o", "export", devPath)
	if err != nil {
		if cmdErr, ok := err.(*blocks.CommandError); ok && cmdErr.ExitCode == 2 {
			// blkid exits 2 when it finds no signature at all.
			return "", nil
		}

		return "", err
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "TYPE=") {
			return strings.TrimPrefix(line, "TYPE="), nil
		}
	}

	return "", nil
}

// superblockAt sniffs known magic byte sequences at a given byte offset
// of devPath, for probing inside a container's payload without
// constructing a loop device. blkid can't be aimed at an arbitrary
// byte offset directly, so the containers this module itself
// understands (LUKS, bcache) are detected here at the byte level using
// the same constants documented for their on-disk headers.
func superblockAt(devPath string, offset uint64) (string, error) {
	f, err := os.Open(devPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	magic := make([]byte, 6)
	if _, err := f.ReadAt(magic, int64(offset)); err != nil {
		return "", err
	}

	if bytes.Equal(magic, blocks.LuksMagic[:]) {
		return "crypto_LUKS", nil
	}

	hasBcache, err := hasBcacheSuperblockAt(f, offset)
	if err != nil {
		return "", err
	}

	if hasBcache {
		return "bcache", nil
	}

	swapMagic := make([]byte, len(blocks.SwapMagic))
	if _, err := f.ReadAt(swapMagic, int64(offset+blocks.SwapMagicOffset)); err == nil {
		if string(swapMagic) == blocks.SwapMagic {
			return "swap", nil
		}
	}

	return "", nil
}

func hasBcacheSuperblockAt(f *os.File, offset uint64) (bool, error) {
	magic := make([]byte, len(blocks.BcacheMagic))
	if _, err := f.ReadAt(magic, int64(offset+blocks.BcacheMagicOffset)); err != nil {
		return false, errors.Wrap(err, "failed to read bcache magic")
	}

	return bytes.Equal(magic, blocks.BcacheMagic[:]), nil
}
