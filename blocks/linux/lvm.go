// +build linux

package linux

import (
	"io/ioutil"
	"os"
	"path"
	"strconv"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// VolumeManager returns the linux implementation of blocks.VolumeManager,
// driving the lvm(8) command-line tools.
func VolumeManager() blocks.VolumeManager {
	return &linuxLVM{}
}

type linuxLVM struct{}

func (ls *linuxLVM) ScanPVs(filter blocks.PVFilter) (blocks.PVSet, error) {
	pvs := blocks.PVSet{}

	pvdatum, err := getPvReport()
	if err != nil {
		return pvs, err
	}

	for _, pvd := range pvdatum {
		pv := blocks.PV{
			Path:     pvd.Path,
			Name:     path.Base(pvd.Path),
			UUID:     pvd.UUID,
			Size:     pvd.Size,
			FreeSize: pvd.Free,
		}

		if filter == nil || filter(pv) {
			pvs[pv.Name] = pv
		}
	}

	return pvs, nil
}

func (ls *linuxLVM) ScanVGs(filter blocks.VGFilter) (blocks.VGSet, error) {
	vgs := blocks.VGSet{}

	vgdatum, err := getVgReport()
	if err != nil {
		return vgs, err
	}

	for _, vgd := range vgdatum {
		vg := blocks.VG{
			Name:      vgd.Name,
			UUID:      vgd.UUID,
			Size:      vgd.Size,
			FreeSpace: vgd.Free,
		}

		if filter == nil || filter(vg) {
			vgs[vg.Name] = vg
		}
	}

	return vgs, nil
}

func (ls *linuxLVM) HasPV(devPath string) bool {
	pvdatum, err := getPvReport(devPath)
	return err == nil && len(pvdatum) > 0
}

func (ls *linuxLVM) HasVG(vgName string) bool {
	vgdatum, err := getVgReport(vgName)
	return err == nil && len(vgdatum) > 0
}

// CreatePVWithUUID runs pvcreate --restorefile against devPath, writing
// metadataText to a scratch file first so pvcreate can read the
// pe_start/pe_count/ba_start/ba_size it needs to lay its label out
// identically to what vgcfgrestore will later write.
func (ls *linuxLVM) CreatePVWithUUID(devPath, pvUUID, metadataText string) error {
	cfgFile, err := writeScratchMetadata(metadataText)
	if err != nil {
		return err
	}
	defer os.Remove(cfgFile)

	_, err = run("lvm", "pvcreate",
		"--restorefile", cfgFile,
		"--uuid", pvUUID,
		"--zero", "y",
		devPath)

	return errors.Wrap(err, "pvcreate failed")
}

func (ls *linuxLVM) RestoreVG(vgName, metadataText string) error {
	cfgFile, err := writeScratchMetadata(metadataText)
	if err != nil {
		return err
	}
	defer os.Remove(cfgFile)

	_, err = run("lvm", "vgcfgrestore", "--file", cfgFile, vgName)

	return errors.Wrap(err, "vgcfgrestore failed")
}

func (ls *linuxLVM) DumpVG(vgName string) (string, error) {
	cfgFile, err := ioutil.TempFile("", "vgcfgbackup-*.cfg")
	if err != nil {
		return "", err
	}
	defer os.Remove(cfgFile.Name())
	cfgFile.Close()

	if _, err := run("lvm", "vgcfgbackup", "--file", cfgFile.Name(), vgName); err != nil {
		return "", errors.Wrap(err, "vgcfgbackup failed")
	}

	content, err := ioutil.ReadFile(cfgFile.Name())
	if err != nil {
		return "", err
	}

	return string(content), nil
}

func (ls *linuxLVM) ActivateVG(vgName string) error {
	_, err := run("lvm", "vgchange", "-ay", vgName)
	return errors.Wrap(err, "vgchange -ay failed")
}

func (ls *linuxLVM) DeactivateVG(vgName string) error {
	_, err := run("lvm", "vgchange", "-an", vgName)
	return errors.Wrap(err, "vgchange -an failed")
}

func (ls *linuxLVM) MergeVG(srcVG, dstVG string) error {
	_, err := run("lvm", "vgmerge", dstVG, srcVG)
	return errors.Wrap(err, "vgmerge failed")
}

func (ls *linuxLVM) ExtendVG(vgName string, pvs ...blocks.PV) error {
	args := []string{"vgextend", vgName}
	for _, pv := range pvs {
		args = append(args, pv.Path)
	}

	_, err := run("lvm", args...)

	return errors.Wrap(err, "vgextend failed")
}

func (ls *linuxLVM) RemoveVG(vgName string) error {
	_, err := run("lvm", "vgremove", "-f", vgName)
	return errors.Wrap(err, "vgremove failed")
}

func (ls *linuxLVM) CreateLV(vgName, name string, size uint64, lvType blocks.LVType) (blocks.LV, error) {
	args := []string{"lvcreate", "-n", name, "-L", sizeArg(size), vgName}
	if lvType == blocks.THIN {
		args = []string{"lvcreate", "-n", name, "-T", "-V", sizeArg(size), vgName}
	}

	if _, err := run("lvm", args...); err != nil {
		return blocks.LV{}, errors.Wrap(err, "lvcreate failed")
	}

	return blocks.LV{Name: name, Size: size, Type: lvType}, nil
}

func (ls *linuxLVM) RemoveLV(vgName, lvName string) error {
	_, err := run("lvm", "lvremove", "-f", vgLv(vgName, lvName))
	return errors.Wrap(err, "lvremove failed")
}

func (ls *linuxLVM) ExtendLV(vgName, lvName string, newSize uint64) error {
	_, err := run("lvm", "lvextend", "-L", sizeArg(newSize), vgLv(vgName, lvName))
	return errors.Wrap(err, "lvextend failed")
}

func sizeArg(bytes uint64) string {
	return strconv.FormatUint(bytes, 10) + "B"
}

func writeScratchMetadata(text string) (string, error) {
	f, err := ioutil.TempFile("", "lvmcfg-*.cfg")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

var _ blocks.VolumeManager = (*linuxLVM)(nil)
