// +build linux

package linux

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rekby/gpt"
	"github.com/rekby/mbr"

	blocks "machinerun.io/blockconv"
	"machinerun.io/blockconv/partid"
)

// partitionMover is the linux implementation of blocks.PartitionMover,
// editing GPT/MBR tables directly (a native substitute for libparted).
type partitionMover struct{}

// PartitionMover returns the linux implementation of blocks.PartitionMover.
func PartitionMover() blocks.PartitionMover { return partitionMover{} }

func (partitionMover) ShiftPartitionStart(devPath string, partIndex int, bsbSize uint64) (uint64, error) {
	fp, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	defer fp.Close()

	if table, ssize, err := readGPTTableSearch(fp, []uint{512, 4096}); err == nil {
		return shiftGPTPartitionStart(fp, table, ssize, partIndex, bsbSize)
	}

	return shiftMBRPartitionStart(fp, partIndex, bsbSize)
}

func readGPTTableSearch(fp io.ReadSeeker, sizes []uint) (gpt.Table, uint, error) {
	var lastErr error

	for _, size := range sizes {
		if _, err := fp.Seek(int64(size), io.SeekStart); err != nil {
			return gpt.Table{}, size, err
		}

		table, err := gpt.ReadTable(fp, uint64(size))
		if err == nil {
			return table, size, nil
		}

		lastErr = err
	}

	return gpt.Table{}, 0, lastErr
}

func shiftGPTPartitionStart(fp *os.File, table gpt.Table, ssize uint, partIndex int, bsbSize uint64) (uint64, error) {
	if partIndex < 1 || partIndex > len(table.Partitions) {
		return 0, errors.Errorf("partition %d out of range", partIndex)
	}

	part := table.Partitions[partIndex-1]
	if part.IsEmpty() {
		return 0, errors.Errorf("partition %d is empty", partIndex)
	}

	if part.Type == gpt.PartType(partid.LinuxRAID) {
		return 0, errors.Wrapf(blocks.ErrUnsupportedLayout,
			"partition %d is type %s, not a plain filesystem or LVM partition",
			partIndex, partid.Text[partid.LinuxRAID])
	}

	shiftLBA := bsbSize / uint64(ssize)
	if shiftLBA > part.FirstLBA {
		return 0, blocks.ErrOverlappingPartition
	}

	newFirst := part.FirstLBA - shiftLBA

	for i, other := range table.Partitions {
		if i == partIndex-1 || other.IsEmpty() {
			continue
		}

		if newFirst <= other.LastLBA && part.FirstLBA >= other.FirstLBA {
			return 0, blocks.ErrOverlappingPartition
		}
	}

	table.Partitions[partIndex-1].FirstLBA = newFirst

	if err := table.Write(fp); err != nil {
		return 0, errors.Wrap(err, "failed to write primary GPT table")
	}

	if err := table.CreateOtherSideTable().Write(fp); err != nil {
		return 0, errors.Wrap(err, "failed to write backup GPT table")
	}

	return newFirst * uint64(ssize), nil
}

func shiftMBRPartitionStart(fp *os.File, partIndex int, bsbSize uint64) (uint64, error) {
	if partIndex < 1 || partIndex > 4 {
		return 0, errors.Wrapf(blocks.ErrUnsupportedLayout,
			"partition %d is not a primary MBR partition", partIndex)
	}

	if _, err := fp.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	table, err := mbr.Read(fp)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read MBR table")
	}

	part := table.GetPartition(partIndex)

	shiftSectors := uint32(bsbSize / blocks.SectorSize)
	if shiftSectors > part.GetLBAStart() {
		return 0, blocks.ErrOverlappingPartition
	}

	newStart := part.GetLBAStart() - shiftSectors
	part.SetLBAStart(newStart)
	part.SetLBALen(part.GetLBALen() + shiftSectors)

	if _, err := fp.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	if err := table.Write(fp); err != nil {
		return 0, errors.Wrap(err, "failed to write MBR table")
	}

	return uint64(newStart) * blocks.SectorSize, nil
}
