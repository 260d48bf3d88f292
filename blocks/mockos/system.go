package mockos

import (
	"encoding/json"
	"fmt"
	"io/ioutil"

	blocks "machinerun.io/blockconv"
)

// mockDevice is a JSON-fixture-driven fake of blocks.Device, letting
// Discover/BlockStack tests walk a synthesized container/filesystem
// stack without touching real block devices.
type mockDevice struct {
	DevPath      string `json:"path"`
	DevSize      uint64 `json:"size"`
	SbType       string `json:"superblock_type"`
	SbAt         map[string]string `json:"superblock_at"` // offset (decimal string) -> type
	Bcache       bool   `json:"has_bcache_superblock"`
	Holders      []string `json:"holders"`
	Partition bool `json:"is_partition"`
	LV        bool `json:"is_lv"`
	Major     int  `json:"major"`
	Minor     int  `json:"minor"`
}

func (d *mockDevice) Path() string { return d.DevPath }

func (d *mockDevice) Size() (uint64, error) { return d.DevSize, nil }

func (d *mockDevice) SuperblockType() (string, error) { return d.SbType, nil }

func (d *mockDevice) SuperblockAt(offset uint64) (string, error) {
	return d.SbAt[fmt.Sprintf("%d", offset)], nil
}

func (d *mockDevice) HasBcacheSuperblock() (bool, error) { return d.Bcache, nil }

func (d *mockDevice) Sysfspath() (string, error) {
	return fmt.Sprintf("/sys/dev/block/%d:%d", d.Major, d.Minor), nil
}

func (d *mockDevice) IterHolders() ([]string, error) { return d.Holders, nil }

func (d *mockDevice) IsPartition() (bool, error) { return d.Partition, nil }

func (d *mockDevice) IsLV() (bool, error) { return d.LV, nil }

func (d *mockDevice) DevNum() (int, int, error) { return d.Major, d.Minor, nil }

func (d *mockDevice) ResetSize() {}

// System is a JSON-fixture-driven fake of a device registry, handing out
// mockDevice values by path for tests to pass to blocks.Discover et al.
type System struct {
	Devices map[string]*mockDevice `json:"devices"`
}

// Load reads a System fixture of the shape {"devices": {"/dev/sda1":
// {...}, ...}}.
func Load(layout string) *System {
	file, err := ioutil.ReadFile(layout)
	if err != nil {
		panic(err)
	}

	sys := &System{}

	if err := json.Unmarshal(file, sys); err != nil {
		panic(err)
	}

	return sys
}

// Device returns the fixture's blocks.Device for path, or panics if
// there's no such fixture entry (a test bug, not a runtime condition).
func (s *System) Device(path string) blocks.Device {
	dev, ok := s.Devices[path]
	if !ok {
		panic(fmt.Sprintf("mockos: no device fixture for %s", path))
	}

	return dev
}

// Mounter is a fake blocks.Mounter that records mount/unmount calls
// instead of touching the kernel, so FsAdapter tests can assert scoped
// mounts are acquired and released without root.
type Mounter struct {
	Mounted map[string]string // dev path -> mountpoint

	Scoped []string // dev paths MountScoped was called for
}

// NewMounter returns an empty Mounter fixture.
func NewMounter() *Mounter {
	return &Mounter{Mounted: map[string]string{}}
}

func (m *Mounter) IsMounted(dev blocks.Device) (bool, string, error) {
	mp, ok := m.Mounted[dev.Path()]
	return ok, mp, nil
}

func (m *Mounter) MountScoped(dev blocks.Device, vfstype string) (string, func() error, error) {
	m.Scoped = append(m.Scoped, dev.Path())
	mountpoint := "/mnt/mockos/" + dev.Path()
	m.Mounted[dev.Path()] = mountpoint

	release := func() error {
		delete(m.Mounted, dev.Path())
		return nil
	}

	return mountpoint, release, nil
}

var (
	_ blocks.Device  = (*mockDevice)(nil)
	_ blocks.Mounter = (*Mounter)(nil)
)
