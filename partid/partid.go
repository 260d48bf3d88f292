// Package partid holds the GPT partition-type GUIDs and MBR partition-type
// bytes this module needs to recognize or synthesize partitions during
// discovery and bcache partition injection.
package partid

// GPT partition type GUIDs, as 16 byte values in the mixed-endian layout
// gpt.Guid expects (first three fields little-endian, last two big-endian).
var (
	Empty    = [16]byte{}
	LinuxFS  = [16]byte{0xAF, 0x3D, 0xC6, 0x0F, 0x83, 0x84, 0x72, 0x47, 0x8E, 0x79, 0x3D, 0x69, 0xD8, 0x47, 0x7D, 0xE4}
	LinuxLVM = [16]byte{0x79, 0xD3, 0xD6, 0xE6, 0x07, 0xF5, 0xC2, 0x44, 0xA2, 0x3C, 0x23, 0x8F, 0x2D, 0x3A, 0xDF, 0x28}
	LinuxRAID = [16]byte{0x0F, 0x88, 0x9D, 0xA1, 0xFC, 0x05, 0x3B, 0x4D, 0xA0, 0x06, 0x74, 0x3F, 0x0F, 0x84, 0x91, 0x1E}
)

// Text maps the constants above to a short human label, mirroring how the
// teacher surfaced partition type names for display.
var Text = map[[16]byte]string{
	Empty:     "Empty",
	LinuxFS:   "Linux-FS",
	LinuxLVM:  "LVM",
	LinuxRAID: "RAID",
}

// MBR type bytes for the partition kinds this module creates.
const (
	MBRLinux  = 0x83
	MBRLVM    = 0x8E
	MBREmpty  = 0x00
	MBRGPT    = 0xEE
)
