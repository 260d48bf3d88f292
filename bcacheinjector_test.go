package blocks

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVolumeManager is a VolumeManager that only implements the methods
// rotateAndCommitLV actually exercises; every other method is a
// never-called stub.
type fakeVolumeManager struct {
	dumpText string

	restoredVG   string
	restoredText string
	activatedVG  string
}

func (f *fakeVolumeManager) ScanPVs(PVFilter) (PVSet, error) { return nil, nil }
func (f *fakeVolumeManager) ScanVGs(VGFilter) (VGSet, error) { return nil, nil }
func (f *fakeVolumeManager) HasPV(string) bool               { return false }
func (f *fakeVolumeManager) HasVG(string) bool               { return false }

func (f *fakeVolumeManager) CreatePVWithUUID(string, string, string) error { return nil }

func (f *fakeVolumeManager) RestoreVG(vgName, metadataText string) error {
	f.restoredVG = vgName
	f.restoredText = metadataText
	return nil
}

func (f *fakeVolumeManager) DumpVG(string) (string, error) { return f.dumpText, nil }

func (f *fakeVolumeManager) ActivateVG(vgName string) error {
	f.activatedVG = vgName
	return nil
}

func (f *fakeVolumeManager) DeactivateVG(string) error                 { return nil }
func (f *fakeVolumeManager) MergeVG(string, string) error              { return nil }
func (f *fakeVolumeManager) ExtendVG(string, ...PV) error              { return nil }
func (f *fakeVolumeManager) RemoveVG(string) error                     { return nil }
func (f *fakeVolumeManager) CreateLV(string, string, uint64, LVType) (LV, error) {
	return LV{}, nil
}
func (f *fakeVolumeManager) RemoveLV(string, string) error { return nil }
func (f *fakeVolumeManager) ExtendLV(string, string, uint64) error { return nil }

var _ VolumeManager = (*fakeVolumeManager)(nil)

type fakeProgress struct{ notices []string }

func (p *fakeProgress) Notify(msg string)             { p.notices = append(p.notices, msg) }
func (p *fakeProgress) Bail(msg string, err error) error { return err }

var _ ProgressListener = (*fakeProgress)(nil)

// TestRotateAndCommitLVRotatesBackward is a regression test for the
// forward/backward mixup: the LV strategy frees the last physical PE, so
// the committed config must be the *backward* rotation (last extent
// moved to the front), not the forward one.
func TestRotateAndCommitLVRotatesBackward(t *testing.T) {
	layout := LvmLayout{PeCount: 20, PeNewPos: 20 * PeSize, BaStart: 2048, BaSize: 2048}
	cfg := NewSynthesizedVgConfig("vg0", "lv0", "pv-uuid", "vg-uuid", layout)

	vm := &fakeVolumeManager{dumpText: RenderVgConfig(cfg)}
	progress := &fakeProgress{}

	require.NoError(t, rotateAndCommitLV("vg0", "lv0", vm, progress))

	wantBackward, err := RotateBackward(cfg, "lv0")
	require.NoError(t, err)

	gotBackward, err := ParseVgConfig(vm.restoredText)
	require.NoError(t, err)

	if diff := cmp.Diff(wantBackward, gotBackward); diff != "" {
		t.Fatalf("rotateAndCommitLV did not commit the backward rotation (-want +got):\n%s", diff)
	}

	// The forward rotation must NOT be what gets committed.
	wantNotForward, err := RotateForward(cfg, "lv0")
	require.NoError(t, err)
	assert.NotEmpty(t, cmp.Diff(wantNotForward, gotBackward), "committed config must not be the forward rotation")

	assert.Equal(t, "vg0", vm.restoredVG)
	assert.Equal(t, "vg0", vm.activatedVG)
}

func TestRotateAndCommitLVUnknownLV(t *testing.T) {
	layout := LvmLayout{PeCount: 20, PeNewPos: 20 * PeSize, BaStart: 2048, BaSize: 2048}
	cfg := NewSynthesizedVgConfig("vg0", "lv0", "pv-uuid", "vg-uuid", layout)

	vm := &fakeVolumeManager{dumpText: RenderVgConfig(cfg)}
	progress := &fakeProgress{}

	err := rotateAndCommitLV("vg0", "does-not-exist", vm, progress)
	assert.Error(t, err)
	assert.Empty(t, vm.restoredText)
}
