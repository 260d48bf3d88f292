package blocks_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blocks "machinerun.io/blockconv"
	"machinerun.io/blockconv/blocks/mockos"
)

// fakeVolumeManager is a VolumeManager that only implements the methods
// InjectLvm actually exercises; every other method is a never-called
// stub.
type fakeVolumeManager struct {
	activatedVG string
}

func (f *fakeVolumeManager) ScanPVs(blocks.PVFilter) (blocks.PVSet, error) { return nil, nil }
func (f *fakeVolumeManager) ScanVGs(blocks.VGFilter) (blocks.VGSet, error) { return nil, nil }
func (f *fakeVolumeManager) HasPV(string) bool                            { return false }
func (f *fakeVolumeManager) HasVG(string) bool                            { return false }

func (f *fakeVolumeManager) CreatePVWithUUID(string, string, string) error { return nil }

func (f *fakeVolumeManager) RestoreVG(vgName, metadataText string) error {
	return nil
}

func (f *fakeVolumeManager) DumpVG(string) (string, error) { return "", nil }

func (f *fakeVolumeManager) ActivateVG(vgName string) error {
	f.activatedVG = vgName
	return nil
}

func (f *fakeVolumeManager) DeactivateVG(string) error        { return nil }
func (f *fakeVolumeManager) MergeVG(string, string) error     { return nil }
func (f *fakeVolumeManager) ExtendVG(string, ...blocks.PV) error { return nil }
func (f *fakeVolumeManager) RemoveVG(string) error             { return nil }
func (f *fakeVolumeManager) CreateLV(string, string, uint64, blocks.LVType) (blocks.LV, error) {
	return blocks.LV{}, nil
}
func (f *fakeVolumeManager) RemoveLV(string, string) error          { return nil }
func (f *fakeVolumeManager) ExtendLV(string, string, uint64) error { return nil }

var _ blocks.VolumeManager = (*fakeVolumeManager)(nil)

type fakeProgress struct{ notices []string }

func (p *fakeProgress) Notify(msg string)                { p.notices = append(p.notices, msg) }
func (p *fakeProgress) Bail(msg string, err error) error { return err }

var _ blocks.ProgressListener = (*fakeProgress)(nil)

// fakeLvmFs is a minimal FsAdapter standing in for the real ext4 adapter:
// it reports whatever size/label the test configures and tracks
// Grow/ReserveEndArea calls directly, bypassing the shared Resizer
// helpers (those are exercised by blocks/linux's own fs tests).
type fakeLvmFs struct {
	size  uint64
	label string
}

func (f *fakeLvmFs) ReadSuperblock() error       { return nil }
func (f *fakeLvmFs) CanShrink() bool             { return true }
func (f *fakeLvmFs) ResizeNeedsMountPoint() bool { return false }
func (f *fakeLvmFs) BlockSize() uint64           { return 4096 }
func (f *fakeLvmFs) Fssize() uint64              { return f.size }
func (f *fakeLvmFs) Grow(upperBound uint64) error {
	f.size = upperBound
	return nil
}
func (f *fakeLvmFs) ReserveEndArea(pos uint64) error {
	f.size = pos
	return nil
}
func (f *fakeLvmFs) VfsType() string { return "ext4" }
func (f *fakeLvmFs) Label() string   { return f.label }

var _ blocks.FsAdapter = (*fakeLvmFs)(nil)

// fakeScratchBuffer is the "synthetic scratch buffer" §8 calls for: a
// plain in-memory byte slice standing in for the real device, so the
// PE copy and the synthesized header commit can be read back and
// compared against what InjectLvm was supposed to have written.
type fakeScratchBuffer struct {
	data []byte
}

func newFakeScratchBuffer(size uint64) *fakeScratchBuffer {
	return &fakeScratchBuffer{data: make([]byte, size)}
}

func (b *fakeScratchBuffer) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, b.data[off:])
	return n, nil
}

func (b *fakeScratchBuffer) WriteAt(p []byte, off int64) (int, error) {
	n := copy(b.data[off:], p)
	return n, nil
}

var _ blocks.PhysicalWriter = (*fakeScratchBuffer)(nil)

// fakeLvmMaker stands in for the real pvcreate/vgcfgrestore staging
// area: it just hands back a SyntheticDevice whose head is filled with
// a recognizable marker byte, so the test can assert InjectLvm actually
// committed it instead of writing stale or zeroed data.
type fakeLvmMaker struct {
	gotVgName  string
	gotCfgText string
}

func (m *fakeLvmMaker) MakeLvmHeader(peSize, dataSize uint64, pvUUID, vgName, cfgText string, vm blocks.VolumeManager) (*blocks.SyntheticDevice, error) {
	m.gotVgName = vgName
	m.gotCfgText = cfgText

	head := bytes.Repeat([]byte{0xAA}, int(peSize))

	return &blocks.SyntheticDevice{
		Data:            head,
		WritableHdrSize: peSize,
		RzSize:          dataSize,
		WritableEndSize: 0,
	}, nil
}

var _ blocks.LvmMaker = (*fakeLvmMaker)(nil)

func newInjectRequest(dev blocks.Device, fs *fakeLvmFs) blocks.LvmInjectRequest {
	return blocks.LvmInjectRequest{
		Device: dev,
		NewContainer: func(kind string, dev blocks.Device) (blocks.ContainerAdapter, error) {
			panic("no container expected for a plain filesystem device")
		},
		NewFs: func(kind string, dev blocks.Device) (blocks.FsAdapter, error) {
			return fs, nil
		},
	}
}

// TestInjectLvmDefaultsToLV1WithoutLabel is seed scenario 1: an
// unlabeled filesystem gets the default LV name "lv1".
func TestInjectLvmDefaultsToLV1WithoutLabel(t *testing.T) {
	sys := mockos.Load("testdata/lvminject.json")
	dev := sys.Device("/dev/fakeroot")

	size, err := dev.Size()
	require.NoError(t, err)

	fs := &fakeLvmFs{size: size}
	rw := newFakeScratchBuffer(size)
	maker := &fakeLvmMaker{}
	vm := &fakeVolumeManager{}
	progress := &fakeProgress{}

	lv, err := blocks.InjectLvm(newInjectRequest(dev, fs), rw, maker, vm, progress)
	require.NoError(t, err)

	assert.Equal(t, "lv1", lv.Name)
	assert.Equal(t, size-blocks.PeSize, lv.Size)
	assert.Equal(t, "vg.fakeroot", vm.activatedVG)
	assert.Equal(t, "vg.fakeroot", maker.gotVgName)
}

// TestInjectLvmUsesFsLabelWhenValid is seed scenario 2: a whitelisted
// filesystem label becomes the LV name instead of the "lv1" default.
func TestInjectLvmUsesFsLabelWhenValid(t *testing.T) {
	sys := mockos.Load("testdata/lvminject.json")
	dev := sys.Device("/dev/fakehome")

	size, err := dev.Size()
	require.NoError(t, err)

	fs := &fakeLvmFs{size: size, label: "home"}
	rw := newFakeScratchBuffer(size)
	maker := &fakeLvmMaker{}
	vm := &fakeVolumeManager{}
	progress := &fakeProgress{}

	lv, err := blocks.InjectLvm(newInjectRequest(dev, fs), rw, maker, vm, progress)
	require.NoError(t, err)

	assert.Equal(t, "home", lv.Name)
}

// TestInjectLvmFallsBackToLV1ForInvalidLabel is the other half of seed
// scenario 2: a label containing a space fails the VG/LV name
// whitelist, so InjectLvm must fall back to "lv1" rather than pass the
// bad label straight through to LVM.
func TestInjectLvmFallsBackToLV1ForInvalidLabel(t *testing.T) {
	sys := mockos.Load("testdata/lvminject.json")
	dev := sys.Device("/dev/fakehome")

	size, err := dev.Size()
	require.NoError(t, err)

	fs := &fakeLvmFs{size: size, label: "my home"}
	rw := newFakeScratchBuffer(size)
	maker := &fakeLvmMaker{}
	vm := &fakeVolumeManager{}
	progress := &fakeProgress{}

	lv, err := blocks.InjectLvm(newInjectRequest(dev, fs), rw, maker, vm, progress)
	require.NoError(t, err)

	assert.Equal(t, "lv1", lv.Name)
}

// TestInjectLvmCopiesFirstPEToReservedTail is P3: the bytes originally
// at the front of the device must reappear, byte for byte, at the
// PE-aligned tail position the LVM layout reserved for them.
func TestInjectLvmCopiesFirstPEToReservedTail(t *testing.T) {
	sys := mockos.Load("testdata/lvminject.json")
	dev := sys.Device("/dev/fakeroot")

	size, err := dev.Size()
	require.NoError(t, err)

	fs := &fakeLvmFs{size: size}
	rw := newFakeScratchBuffer(size)

	original := bytes.Repeat([]byte{0x42}, int(blocks.PeSize))
	copy(rw.data, original)

	maker := &fakeLvmMaker{}
	vm := &fakeVolumeManager{}
	progress := &fakeProgress{}

	lv, err := blocks.InjectLvm(newInjectRequest(dev, fs), rw, maker, vm, progress)
	require.NoError(t, err)
	require.NotNil(t, lv)

	layout, err := blocks.NewLvmLayout(size)
	require.NoError(t, err)

	movedPE := rw.data[layout.PeNewPos : layout.PeNewPos+blocks.PeSize]
	assert.True(t, bytes.Equal(original, movedPE), "first PE was not copied intact to the reserved tail")

	// And the real head now carries the synthesized LVM header, not the
	// original PE's bytes.
	assert.True(t, bytes.Equal(rw.data[:blocks.PeSize], bytes.Repeat([]byte{0xAA}, int(blocks.PeSize))))
}

func TestInjectLvmRejectsExistingLvmMember(t *testing.T) {
	sys := mockos.Load("testdata/lvminject.json")
	dev := sys.Device("/dev/fakepv")

	size, err := dev.Size()
	require.NoError(t, err)

	fs := &fakeLvmFs{size: size}
	rw := newFakeScratchBuffer(size)

	_, err = blocks.InjectLvm(newInjectRequest(dev, fs), rw, &fakeLvmMaker{}, &fakeVolumeManager{}, &fakeProgress{})
	assert.Error(t, err)
}

func TestInjectLvmRejectsInvalidVgName(t *testing.T) {
	sys := mockos.Load("testdata/lvminject.json")
	dev := sys.Device("/dev/fakeroot")

	size, err := dev.Size()
	require.NoError(t, err)

	fs := &fakeLvmFs{size: size}
	rw := newFakeScratchBuffer(size)

	req := newInjectRequest(dev, fs)
	req.VgName = "not a valid name"

	_, err = blocks.InjectLvm(req, rw, &fakeLvmMaker{}, &fakeVolumeManager{}, &fakeProgress{})
	assert.Error(t, err)
}

func TestInjectLvmRejectsDeviceTooSmallForOnePE(t *testing.T) {
	sys := mockos.Load("testdata/lvminject.json")
	dev := sys.Device("/dev/faketiny")

	size, err := dev.Size()
	require.NoError(t, err)

	fs := &fakeLvmFs{size: size}
	rw := newFakeScratchBuffer(size)

	_, err = blocks.InjectLvm(newInjectRequest(dev, fs), rw, &fakeLvmMaker{}, &fakeVolumeManager{}, &fakeProgress{})
	assert.Error(t, err)
}
