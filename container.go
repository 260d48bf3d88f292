package blocks

// ContainerAdapter is the uniform contract over LUKS and bcache backing
// devices: read header, compute payload offset, grow, shift header.
type ContainerAdapter interface {
	ReadSuperblock() error

	// Offset is the number of bytes at the front of the container that
	// are not part of the cleartext/cached payload (LUKS payload_offset,
	// bcache data.first_sector*512).
	Offset() uint64

	// Grow extends the container so its payload spans up to upperBound
	// bytes of the underlying device.
	Grow(upperBound uint64) error

	// ReserveEndArea shrinks the container's view of the underlying
	// device so its payload ends at pos.
	ReserveEndArea(pos uint64) error

	// CleartextDevice returns the Device exposing this container's
	// payload (the LUKS cleartext mapping, the bcache cached device).
	CleartextDevice() (Device, error)

	Activate(name string) error
	Deactivate() error
}

// SimpleContainer is the shared state every ContainerAdapter wraps a
// single underlying Device with (LUKS and bcache backing devices both
// wrap exactly one device; LVM is not a SimpleContainer since a VG spans
// many PVs).
type SimpleContainer struct {
	Dev    Device
	offset uint64
}

// Offset returns the cached container overhead in bytes.
func (c *SimpleContainer) Offset() uint64 { return c.offset }

// SetOffset lets a linux-package adapter embedding SimpleContainer record
// the overhead its ReadSuperblock computed, since offset is unexported.
func (c *SimpleContainer) SetOffset(offset uint64) { c.offset = offset }

// ShiftableHeader is implemented by LUKS containers (only): it exposes
// the header bounds and an in-place header-shift operation used by the
// bcache-injection LUKS strategy.
type ShiftableHeader interface {
	ContainerAdapter

	// PayloadOffset is the LUKS payload_offset in bytes.
	PayloadOffset() uint64

	// SbEnd is the highest byte occupied by the header and key slots.
	SbEnd() uint64

	// ShiftSB moves the header (and every key slot) shiftBy bytes
	// later in the device, rewriting payload_offset accordingly.
	ShiftSB(rw PhysicalWriter, shiftBy uint64) error
}
