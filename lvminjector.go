package blocks

import (
	"fmt"
	"path"

	"github.com/pkg/errors"
)

// LvmMaker drives pvcreate/vgcfgrestore against a SyntheticDevice
// staging area sized to the reserved head PE, so the LVM PV label and
// VG metadata land there first and only reach the real device through a
// verified SyntheticDevice.CopyToPhysical commit, never by writing
// pvcreate/vgcfgrestore straight at the real device. The real
// orchestration (loopback/dm setup, invoking lvm, capturing the result)
// lives in blocks/linux.
type LvmMaker interface {
	MakeLvmHeader(peSize, dataSize uint64, pvUUID, vgName, cfgText string, vm VolumeManager) (*SyntheticDevice, error)
}

// LvmInjectRequest parameterizes InjectLvm.
type LvmInjectRequest struct {
	Device Device

	// VgName is the name to give the synthesized VG. If empty, it is
	// derived as "vg.<basename>" of the device path.
	VgName string

	// Join, if set, names an existing VG to vgmerge the synthesized VG
	// into once activation succeeds.
	Join string

	NewContainer ContainerFactory
	NewFs        FsFactory
}

// InjectLvm converts a filesystem-on-device into an LV in place, per
// §4.6: reserve one PE of trailing space, copy the first PE's bytes to
// the freed tail, synthesize PV/VG/LV metadata aliasing the original data,
// and commit it in a single write.
func InjectLvm(req LvmInjectRequest, rw PhysicalWriter, maker LvmMaker, vm VolumeManager, progress ProgressListener) (*LV, error) {
	dev := req.Device

	sbtype, err := dev.SuperblockType()
	if err != nil {
		return nil, errors.Wrap(err, "failed to probe device")
	}

	if sbtype == "LVM2_member" {
		return nil, errors.Errorf("%s already carries an LVM PV header", dev.Path())
	}

	vgName := req.VgName
	if vgName == "" {
		vgName = "vg." + path.Base(dev.Path())
	}

	if !ValidName(vgName) {
		return nil, errors.Errorf("invalid VG name %q", vgName)
	}

	size, err := dev.Size()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read device size")
	}

	layout, err := NewLvmLayout(size)
	if err != nil {
		return nil, err
	}

	stack, err := Discover(dev, req.NewContainer, req.NewFs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover block stack")
	}

	if err := stack.ReadSuperblocks(); err != nil {
		return nil, err
	}

	lvName := "lv1"
	if label := stack.Fs.Label(); ValidName(label) {
		lvName = label
	}

	progress.Notify(fmt.Sprintf("reserving trailing %d bytes for LVM metadata on %s", size-layout.PeNewPos, dev.Path()))

	if err := stack.StackResize(layout.PeNewPos, true); err != nil {
		return nil, errors.Wrap(err, "failed to reserve end area for LVM metadata PE")
	}

	if err := stack.Deactivate(); err != nil {
		return nil, errors.Wrap(err, "failed to deactivate stack before PE copy")
	}

	buf := make([]byte, PeSize)
	if _, err := rw.ReadAt(buf, 0); err != nil {
		return nil, errors.Wrap(err, "failed to read first PE")
	}

	if _, err := rw.WriteAt(buf, int64(layout.PeNewPos)); err != nil {
		return nil, errors.Wrap(err, "failed to copy first PE to its new position")
	}

	pvUUID := GenGUID().String()
	vgUUID := GenGUID().String()

	cfg := NewSynthesizedVgConfig(vgName, lvName, pvUUID, vgUUID, layout)
	cfgText := RenderVgConfig(cfg)

	synth, err := maker.MakeLvmHeader(PeSize, size-PeSize, pvUUID, vgName, cfgText, vm)
	if err != nil {
		return nil, errors.Wrap(err, "failed to synthesize LVM PV header and VG metadata")
	}

	progress.Notify(fmt.Sprintf(
		"if interrupted now, metadata can be discarded with: dd if=/dev/zero of=%s bs=%d count=1", dev.Path(), PeSize))

	if err := synth.CopyToPhysical(rw, 0, 0, false); err != nil {
		return nil, errors.Wrap(err, "failed to commit synthesized LVM metadata to the real device")
	}

	if err := vm.ActivateVG(vgName); err != nil {
		return nil, errors.Wrap(err, "vgchange -ay failed")
	}

	if req.Join != "" {
		if err := vm.MergeVG(vgName, req.Join); err != nil {
			return nil, errors.Wrap(err, "vgmerge failed")
		}

		vgName = req.Join
	}

	return &LV{Name: lvName, Size: size - PeSize, Type: THICK}, nil
}
