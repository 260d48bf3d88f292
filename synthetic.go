package blocks

import (
	"bytes"

	"github.com/pkg/errors"
)

// SyntheticDevice is the captured state of an ephemeral device-mapper
// overlay used to let external tools (pvcreate, make-bcache) write a
// superblock into a staging area before a single committing copy lands
// on the real device. The actual loopback/dm orchestration that produces
// Data lives in blocks/linux; this type only knows how to commit it.
type SyntheticDevice struct {
	// Data is the bytes captured from the synthetic device's writable
	// regions: the head (WritableHdrSize bytes), followed by the tail
	// (WritableEndSize bytes) if present.
	Data []byte

	WritableHdrSize uint64
	RzSize          uint64
	WritableEndSize uint64
}

// CopyToPhysical commits the captured head/tail bytes onto the real
// device handle rw at the correct offsets, shifted by shiftBy.
//
//   - data[0:hdr] is written at offset shiftBy.
//   - if a tail is present, data[hdr:] is written at offset
//     hdr+rz+shiftBy.
//   - each write is read back and compared, failing on mismatch.
//   - unless otherDevice, both writes must fall within [0, totalSize);
//     if reservedArea is nonzero, shiftBy must be >= reservedArea.
func (d *SyntheticDevice) CopyToPhysical(rw PhysicalWriter, shiftBy, reservedArea uint64, otherDevice bool) error {
	hdr := d.WritableHdrSize
	tail := d.WritableEndSize

	if uint64(len(d.Data)) != hdr+tail {
		return errors.Errorf(
			"captured data length %d does not match hdr+tail (%d+%d)",
			len(d.Data), hdr, tail)
	}

	totalSize := hdr + d.RzSize + tail

	if !otherDevice {
		if shiftBy+hdr > totalSize {
			return errors.Errorf("head write [%d,%d) exceeds device size %d", shiftBy, shiftBy+hdr, totalSize)
		}

		if tail > 0 && shiftBy+hdr+d.RzSize+tail > totalSize {
			return errors.Errorf("tail write exceeds device size %d", totalSize)
		}

		if reservedArea > 0 && shiftBy < reservedArea {
			return errors.Errorf("shiftBy %d is within reserved area %d", shiftBy, reservedArea)
		}
	}

	if err := writeAndVerify(rw, d.Data[:hdr], int64(shiftBy)); err != nil {
		return errors.Wrap(err, "failed to commit synthetic head")
	}

	if tail > 0 {
		tailOffset := int64(hdr + d.RzSize + shiftBy)
		if err := writeAndVerify(rw, d.Data[hdr:], tailOffset); err != nil {
			return errors.Wrap(err, "failed to commit synthetic tail")
		}
	}

	return nil
}

func writeAndVerify(rw PhysicalWriter, data []byte, offset int64) error {
	if _, err := rw.WriteAt(data, offset); err != nil {
		return err
	}

	check := make([]byte, len(data))
	if _, err := rw.ReadAt(check, offset); err != nil {
		return err
	}

	if !bytes.Equal(data, check) {
		return errors.Errorf("readback mismatch at offset %d", offset)
	}

	return nil
}
