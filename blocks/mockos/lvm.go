package mockos

import (
	"encoding/json"
	"fmt"
	"io/ioutil"

	blocks "machinerun.io/blockconv"
)

// mockLVM is a JSON-fixture-driven fake of blocks.VolumeManager, letting
// BlockStack/LvmInjector/BcacheInjector tests exercise PV/VG/LV
// bookkeeping without a real lvm(8) binary.
type mockLVM struct {
	VGs blocks.VGSet `json:"vgs"`
	PVs blocks.PVSet `json:"pvs"`

	active  map[string]bool
	restore map[string]string // last vgcfgrestore'd text, per VG
}

// LVM returns a mock blocks.VolumeManager loaded from a JSON fixture at
// layout, of the shape {"pvs": {...}, "vgs": {...}}.
func LVM(layout string) blocks.VolumeManager {
	file, err := ioutil.ReadFile(layout)
	if err != nil {
		panic(err)
	}

	lvm := &mockLVM{}

	if err := json.Unmarshal(file, lvm); err != nil {
		panic(err)
	}

	if lvm.PVs == nil {
		lvm.PVs = blocks.PVSet{}
	}

	if lvm.VGs == nil {
		lvm.VGs = blocks.VGSet{}
	}

	lvm.active = map[string]bool{}
	lvm.restore = map[string]string{}

	return lvm
}

func (lvm *mockLVM) ScanPVs(filter blocks.PVFilter) (blocks.PVSet, error) {
	pvs := blocks.PVSet{}

	for n, pv := range lvm.PVs {
		if filter == nil || filter(pv) {
			pvs[n] = pv
		}
	}

	return pvs, nil
}

func (lvm *mockLVM) ScanVGs(filter blocks.VGFilter) (blocks.VGSet, error) {
	vgs := blocks.VGSet{}

	for n, vg := range lvm.VGs {
		if filter == nil || filter(vg) {
			vgs[n] = vg
		}
	}

	return vgs, nil
}

func (lvm *mockLVM) HasPV(devPath string) bool {
	for _, pv := range lvm.PVs {
		if pv.Path == devPath {
			return true
		}
	}

	return false
}

func (lvm *mockLVM) HasVG(vgName string) bool {
	_, ok := lvm.VGs[vgName]
	return ok
}

func (lvm *mockLVM) CreatePVWithUUID(devPath, pvUUID, metadataText string) error {
	if lvm.HasPV(devPath) {
		return fmt.Errorf("pv %s already exists", devPath)
	}

	lvm.PVs[devPath] = blocks.PV{Name: devPath, Path: devPath, UUID: pvUUID}

	return nil
}

func (lvm *mockLVM) RestoreVG(vgName, metadataText string) error {
	cfg, err := blocks.ParseVgConfig(metadataText)
	if err != nil {
		return fmt.Errorf("failed to parse metadata for vg %s: %w", vgName, err)
	}

	lvm.restore[vgName] = metadataText

	vg := lvm.VGs[vgName]
	vg.Name = cfg.VgName
	vg.UUID = cfg.VgUUID
	vg.Volumes = blocks.LVSet{}

	for _, lv := range cfg.LVs {
		var size uint64
		for _, seg := range lv.Segments {
			size += seg.ExtentCount * blocks.PeSize
		}

		vg.Volumes[lv.Name] = blocks.LV{Name: lv.Name, Size: size, Type: blocks.THICK}
	}

	lvm.VGs[vgName] = vg

	return nil
}

func (lvm *mockLVM) DumpVG(vgName string) (string, error) {
	if text, ok := lvm.restore[vgName]; ok {
		return text, nil
	}

	return "", fmt.Errorf("vg %s has no recorded metadata", vgName)
}

func (lvm *mockLVM) ActivateVG(vgName string) error {
	if !lvm.HasVG(vgName) {
		return fmt.Errorf("vg %s does not exist", vgName)
	}

	lvm.active[vgName] = true

	return nil
}

func (lvm *mockLVM) DeactivateVG(vgName string) error {
	lvm.active[vgName] = false
	return nil
}

func (lvm *mockLVM) MergeVG(srcVG, dstVG string) error {
	src, ok := lvm.VGs[srcVG]
	if !ok {
		return fmt.Errorf("vg %s does not exist", srcVG)
	}

	dst, ok := lvm.VGs[dstVG]
	if !ok {
		return fmt.Errorf("vg %s does not exist", dstVG)
	}

	for n, pv := range src.PVs {
		dst.PVs[n] = pv
	}

	for n, lv := range src.Volumes {
		dst.Volumes[n] = lv
	}

	dst.Size += src.Size
	dst.FreeSpace += src.FreeSpace

	lvm.VGs[dstVG] = dst
	delete(lvm.VGs, srcVG)

	return nil
}

func (lvm *mockLVM) ExtendVG(vgName string, pvs ...blocks.PV) error {
	vg, ok := lvm.VGs[vgName]
	if !ok {
		return fmt.Errorf("vg %s does not exist", vgName)
	}

	for _, pv := range pvs {
		vg.PVs[pv.Name] = pv
		vg.Size += pv.Size
		vg.FreeSpace += pv.FreeSize
	}

	lvm.VGs[vgName] = vg

	return nil
}

func (lvm *mockLVM) RemoveVG(vgName string) error {
	if !lvm.HasVG(vgName) {
		return fmt.Errorf("vg %s does not exist", vgName)
	}

	delete(lvm.VGs, vgName)

	return nil
}

func (lvm *mockLVM) CreateLV(vgName, name string, size uint64, lvType blocks.LVType) (blocks.LV, error) {
	vg, ok := lvm.VGs[vgName]
	if !ok {
		return blocks.LV{}, fmt.Errorf("vg %s does not exist", vgName)
	}

	if _, ok := vg.Volumes[name]; ok {
		return blocks.LV{}, fmt.Errorf("lv %s already exists", name)
	}

	if vg.FreeSpace < size {
		return blocks.LV{}, fmt.Errorf("vg %s does not have enough space", vgName)
	}

	lv := blocks.LV{Name: name, Size: size, Type: lvType}
	vg.Volumes[name] = lv
	vg.FreeSpace -= size
	lvm.VGs[vgName] = vg

	return lv, nil
}

func (lvm *mockLVM) RemoveLV(vgName, lvName string) error {
	vg, lv, err := lvm.findLV(vgName, lvName)
	if err != nil {
		return err
	}

	delete(vg.Volumes, lvName)
	vg.FreeSpace += lv.Size
	lvm.VGs[vg.Name] = vg

	return nil
}

func (lvm *mockLVM) ExtendLV(vgName, lvName string, newSize uint64) error {
	vg, lv, err := lvm.findLV(vgName, lvName)
	if err != nil {
		return err
	}

	if newSize < lv.Size {
		return fmt.Errorf("lv size cannot be reduced via ExtendLV")
	}

	delta := newSize - lv.Size
	if vg.FreeSpace < delta {
		return fmt.Errorf("vg %s does not have enough space", vg.Name)
	}

	vg.FreeSpace -= delta
	lv.Size = newSize
	vg.Volumes[lvName] = lv
	lvm.VGs[vg.Name] = vg

	return nil
}

func (lvm *mockLVM) findLV(vgName, lvName string) (blocks.VG, blocks.LV, error) {
	vg, ok := lvm.VGs[vgName]
	if !ok {
		return blocks.VG{}, blocks.LV{}, fmt.Errorf("vg %s does not exist", vgName)
	}

	lv, ok := vg.Volumes[lvName]
	if !ok {
		return blocks.VG{}, blocks.LV{}, fmt.Errorf("lv %s not found in vg %s", lvName, vgName)
	}

	return vg, lv, nil
}

var _ blocks.VolumeManager = (*mockLVM)(nil)
