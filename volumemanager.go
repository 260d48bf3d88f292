package blocks

// VolumeManager wraps the LVM command-line tools needed to discover
// existing PVs/VGs/LVs and to drive the in-place LVM injection protocol
// (restorefile-based PV creation, metadata restore, activation, and an
// optional merge into a pre-existing VG).
type VolumeManager interface {
	// ScanPVs scans the system for all PVs accepted by filter.
	ScanPVs(filter PVFilter) (PVSet, error)

	// ScanVGs scans the system for all VGs accepted by filter.
	ScanVGs(filter VGFilter) (VGSet, error)

	// HasPV returns true if devPath already carries an LVM PV header.
	HasPV(devPath string) bool

	// HasVG returns true if a VG of this name exists.
	HasVG(vgName string) bool

	// CreatePVWithUUID runs pvcreate --restorefile against devPath using
	// the given PV UUID, writing LVM label/metadata-area headers at the
	// offsets implied by metadataPath without touching payload extents.
	// This is the tool invocation the in-place injector relies on to
	// seed a PV whose extents already hold the original filesystem.
	CreatePVWithUUID(devPath, pvUUID, metadataPath string) error

	// RestoreVG runs vgcfgrestore to load metadataText, the rendered
	// VgConfig metadata, onto the VG named vgName.
	RestoreVG(vgName, metadataText string) error

	// DumpVG runs vgcfgbackup and returns the current text-format
	// metadata for vgName, for rotation/inspection.
	DumpVG(vgName string) (string, error)

	// ActivateVG runs vgchange -ay against vgName.
	ActivateVG(vgName string) error

	// DeactivateVG runs vgchange -an against vgName.
	DeactivateVG(vgName string) error

	// MergeVG merges srcVG into dstVG via vgmerge.
	MergeVG(srcVG, dstVG string) error

	// ExtendVG extends vgName's storage capacity with the given PVs.
	ExtendVG(vgName string, pvs ...PV) error

	// RemoveVG removes a VG and every LV it contains.
	RemoveVG(vgName string) error

	// CreateLV creates an LV of the requested size and type in vgName.
	CreateLV(vgName, name string, size uint64, lvType LVType) (LV, error)

	// RemoveLV removes the named LV.
	RemoveLV(vgName, lvName string) error

	// ExtendLV expands lvName to newSize bytes.
	ExtendLV(vgName, lvName string, newSize uint64) error
}

// PVFilter accepts or rejects a PV during ScanPVs.
type PVFilter func(PV) bool

// VGFilter accepts or rejects a VG during ScanVGs.
type VGFilter func(VG) bool

// PV wraps an LVM physical volume: the raw block device or disk-like
// device that provides storage capacity to a VG.
type PV struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	UUID     string `json:"uuid"`
	Size     uint64 `json:"size"`
	FreeSize uint64 `json:"freeSize"`
}

// PVSet is a set of PVs indexed by name.
type PVSet map[string]PV

// LV wraps an LVM logical volume: a slice of a VG's capacity usable as a
// block device.
type LV struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
	Type LVType `json:"type"`
}

// LVSet is a set of LVs indexed by name.
type LVSet map[string]LV

// LVType distinguishes thickly- from thinly-provisioned LVs.
type LVType int

const (
	// THICK is a thickly provisioned logical volume.
	THICK LVType = iota

	// THIN is a thinly provisioned logical volume.
	THIN
)

// VG wraps an LVM volume group: one or more PVs combined into a single
// storage pool exposing zero or more LVs.
type VG struct {
	Name      string `json:"name"`
	UUID      string `json:"uuid"`
	Size      uint64 `json:"size"`
	FreeSpace uint64 `json:"freeSpace"`
	Volumes   LVSet  `json:"volumes"`
	PVs       PVSet  `json:"pvs"`
}

// VGSet is a set of VGs indexed by name.
type VGSet map[string]VG
