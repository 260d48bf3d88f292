package blocks

// Mebibyte is 2^20 bytes.
const Mebibyte = 1024 * 1024

// PeSize is the fixed LVM Physical Extent size used throughout in-place
// injection. 4 MiB is chosen for vgmerge compatibility with any other VG
// on the system.
const PeSize = 4 * Mebibyte

// SectorSize is the universal 512 byte sector unit used by partition
// tables, LUKS offsets and kernel addpart/delpart calls.
const SectorSize = 512

// BcacheMagicOffset is the byte offset of the 16 byte bcache superblock
// magic.
const BcacheMagicOffset = 4096 + 24

// BcacheMagic is the magic value identifying a bcache superblock.
var BcacheMagic = [16]byte{
	0xc6, 0x85, 0x73, 0xf6, 0x4e, 0x1a, 0x45, 0xca,
	0x82, 0x65, 0xf5, 0x7f, 0x48, 0xba, 0x6d, 0x81,
}

// LuksMagic is the 6 byte LUKS v1 header magic.
var LuksMagic = [6]byte{'L', 'U', 'K', 'S', 0xBA, 0xBE}

const (
	// LuksVersionOffset is the offset of the big-endian u16 version field.
	LuksVersionOffset = 6
	// LuksPayloadOffsetOffset is the offset of the big-endian u32
	// payload-offset field, in 512 byte sectors.
	LuksPayloadOffsetOffset = 104
	// LuksKeyBytesOffset is the offset of the big-endian u32 key_bytes field.
	LuksKeyBytesOffset = 108
	// LuksKeySlotBase is the offset of the first of 8 key slot records.
	LuksKeySlotBase = 208
	// LuksKeySlotSize is the size of a single key slot record.
	LuksKeySlotSize = 48
	// LuksKeySlotOffsetOffset is the sub-offset of a key slot's
	// key_material_offset field, in 512 byte sectors.
	LuksKeySlotOffsetOffset = 40
	// LuksKeySlotStripesOffset is the sub-offset of a key slot's
	// af_stripes field.
	LuksKeySlotStripesOffset = 44
	// LuksKeySlotCount is the fixed number of LUKS v1 key slots.
	LuksKeySlotCount = 8
	// LuksKeyStripes is the fixed anti-forensic stripe count per key slot.
	LuksKeyStripes = 4000
	// LuksMinSbEnd is the smallest possible header length (no key
	// material written).
	LuksMinSbEnd = 592
)

const (
	// SwapMagicOffset is the byte offset of the 10 byte "SWAPSPACE2" magic.
	SwapMagicOffset = 4086
	// SwapVersionOffset is the offset of the u32 version field.
	SwapVersionOffset = 1024
	// SwapLastPageOffset is the offset of the u32 last_page field.
	SwapLastPageOffset = 1028
	// SwapPageSize is the fixed page size assumed by the v1 swap header.
	SwapPageSize = 4096
)

// SwapMagic is the "SWAPSPACE2" magic identifying a v1 swap header.
const SwapMagic = "SWAPSPACE2"

// nameWhitelist restricts generated VG/LV names to ASCII alnum plus dot.
const nameWhitelistPattern = `^[A-Za-z0-9.]+$`
