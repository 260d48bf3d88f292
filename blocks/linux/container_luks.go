// +build linux

package linux

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"regexp"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// dmCryptRe recognizes a dm-crypt mapping table line. Nothing in this
// package matches against it: the cleartext mapping is looked up by the
// name passed to Activate.
var dmCryptRe = regexp.MustCompile(`crypt\s+aes`)

// LUKS is the linux implementation of blocks.ContainerAdapter and
// blocks.ShiftableHeader for a LUKS v1 header.
type LUKS struct {
	blocks.SimpleContainer

	version       uint16
	payloadOffset uint64 // bytes
	sbEnd         uint64 // bytes
	name          string // active mapping name, once Activate'd
}

// NewLUKS returns a LUKS ContainerAdapter wrapping dev.
func NewLUKS(dev blocks.Device) *LUKS {
	return &LUKS{SimpleContainer: blocks.SimpleContainer{Dev: dev}}
}

func (l *LUKS) ReadSuperblock() error {
	f, err := os.Open(l.Dev.Path())
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, blocks.LuksKeySlotBase+blocks.LuksKeySlotCount*blocks.LuksKeySlotSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return errors.Wrap(err, "failed to read LUKS header")
	}

	if !bytes.Equal(header[:6], blocks.LuksMagic[:]) {
		return errors.Wrapf(blocks.ErrUnsupportedSuperblock, "%s: no LUKS magic", l.Dev.Path())
	}

	l.version = binary.BigEndian.Uint16(header[blocks.LuksVersionOffset:])

	payloadSectors := binary.BigEndian.Uint32(header[blocks.LuksPayloadOffsetOffset:])
	l.payloadOffset = uint64(payloadSectors) * blocks.SectorSize

	keyBytes := binary.BigEndian.Uint32(header[blocks.LuksKeyBytesOffset:])

	sbEnd := uint64(blocks.LuksMinSbEnd)

	for i := 0; i < blocks.LuksKeySlotCount; i++ {
		slot := header[blocks.LuksKeySlotBase+i*blocks.LuksKeySlotSize:]

		active := binary.BigEndian.Uint32(slot) == 0x00AC71F3
		if !active {
			continue
		}

		offsetSectors := binary.BigEndian.Uint32(slot[blocks.LuksKeySlotOffsetOffset:])
		stripes := binary.BigEndian.Uint32(slot[blocks.LuksKeySlotStripesOffset:])

		end := uint64(offsetSectors)*blocks.SectorSize + uint64(keyBytes)*uint64(stripes)
		if end > sbEnd {
			sbEnd = end
		}
	}

	l.sbEnd = sbEnd

	return nil
}

func (l *LUKS) Offset() uint64 { return l.payloadOffset }

func (l *LUKS) PayloadOffset() uint64 { return l.payloadOffset }

func (l *LUKS) SbEnd() uint64 { return l.sbEnd }

func (l *LUKS) Grow(upperBound uint64) error {
	return l.resizeInner(upperBound)
}

func (l *LUKS) ReserveEndArea(pos uint64) error {
	return l.resizeInner(pos)
}

// resizeInner runs `cryptsetup resize --size=N` against the active
// cleartext mapping so its exported size tracks the backing device,
// per spec.md §4.3. LUKS1 has no header field of its own to update; the
// inner size is derived at open/resize time from payload_offset and
// whatever the mapping is told its size is. If the container was never
// Activate'd by this process there is nothing open to resize — cryptsetup
// will derive the new size on its next luksOpen.
func (l *LUKS) resizeInner(pos uint64) error {
	if pos < l.payloadOffset {
		return errors.Errorf("resize target %d is before LUKS payload_offset %d", pos, l.payloadOffset)
	}

	if l.name == "" {
		return nil
	}

	innerSize := pos - l.payloadOffset
	sectors := innerSize / blocks.SectorSize

	if _, err := run("cryptsetup", "resize", fmt.Sprintf("--size=%d", sectors), l.name); err != nil {
		return errors.Wrap(err, "cryptsetup resize failed")
	}

	cleartext, err := l.CleartextDevice()
	if err != nil {
		return err
	}

	cleartext.ResetSize()

	size, err := cleartext.Size()
	if err != nil {
		return err
	}

	if size != innerSize {
		return errors.Errorf("LUKS resize failed: cleartext device size %d != inner size %d", size, innerSize)
	}

	return nil
}

// ShiftSB moves the LUKS header shiftBy bytes later in the device: the
// header and key slot bytes are copied as-is to their new position (their
// offsets relative to the header start, and thus to each other, do not
// change), and only payload_offset is rewritten, decreasing by
// shiftBy/512 sectors so the cleartext payload itself stays at the same
// physical byte — it is now that many sectors closer to the (relocated)
// header. The freed [0, shiftBy) region is left for the caller (a bcache
// backing superblock write).
func (l *LUKS) ShiftSB(rw blocks.PhysicalWriter, shiftBy uint64) error {
	headerLen := l.sbEnd

	buf := make([]byte, headerLen)
	if _, err := rw.ReadAt(buf, 0); err != nil {
		return errors.Wrap(err, "failed to read LUKS header for shift")
	}

	shiftSectors := uint32(shiftBy / blocks.SectorSize)

	newPayload := binary.BigEndian.Uint32(buf[blocks.LuksPayloadOffsetOffset:]) - shiftSectors
	binary.BigEndian.PutUint32(buf[blocks.LuksPayloadOffsetOffset:], newPayload)

	if _, err := rw.WriteAt(buf, int64(shiftBy)); err != nil {
		return errors.Wrap(err, "failed to write shifted LUKS header")
	}

	l.payloadOffset = uint64(newPayload) * blocks.SectorSize

	return nil
}

func (l *LUKS) CleartextDevice() (blocks.Device, error) {
	if l.name == "" {
		return nil, errors.New("LUKS container is not activated")
	}

	return blocks.Device(NewDevice(path.Join("/dev/mapper", l.name))), nil
}

func (l *LUKS) Activate(name string) error {
	if _, err := run("cryptsetup", "luksOpen", l.Dev.Path(), name); err != nil {
		return errors.Wrap(err, "cryptsetup luksOpen failed")
	}

	l.name = name

	return nil
}

func (l *LUKS) Deactivate() error {
	if l.name == "" {
		return nil
	}

	if _, err := run("cryptsetup", "luksClose", l.name); err != nil {
		return errors.Wrap(err, "cryptsetup luksClose failed")
	}

	l.name = ""

	return nil
}

var (
	_ blocks.ContainerAdapter = (*LUKS)(nil)
	_ blocks.ShiftableHeader  = (*LUKS)(nil)
)
