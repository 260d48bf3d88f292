// +build linux

package linux

import (
	"io/ioutil"
	"os"
	"strconv"

	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// syntheticDeviceContext is the live device-mapper/loopback state behind
// a blocks.SyntheticDevice: a writable head/tail backed by a scratch
// file via a loop device, and a read-zeros middle backed by dm-zero,
// stitched together with a dm linear table.
type syntheticDeviceContext struct {
	scratchPath string
	loopDev     string
	dmName      string
	hdrSize     uint64
	rzSize      uint64
	tailSize    uint64
}

// mkDM runs dmsetup create, retrying with --verifyudev if the first
// attempt (using --noudevsync) fails, mirroring the original's
// mk_dm fallback.
func mkDM(name string, table string) error {
	err := runOK("dmsetup", "create", name, "--noudevsync", "--table", table)
	if err == nil {
		return nil
	}

	return runOK("dmsetup", "create", name, "--verifyudev", "--table", table)
}

func newSyntheticDevice(hdrSize, rzSize, tailSize uint64) (*syntheticDeviceContext, error) {
	scratch, err := ioutil.TempFile("", "synthdev-*.img")
	if err != nil {
		return nil, err
	}

	scratchSize := hdrSize + tailSize
	if err := scratch.Truncate(int64(scratchSize)); err != nil {
		scratch.Close()
		os.Remove(scratch.Name())

		return nil, err
	}
	scratch.Close()

	loopOut, err := run("losetup", "--find", "--show", scratch.Name())
	if err != nil {
		os.Remove(scratch.Name())
		return nil, errors.Wrap(err, "losetup failed")
	}

	loopDev := trimNewline(string(loopOut))

	dmName := "synth" + strconv.FormatInt(int64(os.Getpid()), 10)

	table := dmLinearTable(loopDev, hdrSize, rzSize, tailSize)

	if err := mkDM(dmName, table); err != nil {
		runOK("losetup", "-d", loopDev) //nolint:errcheck
		os.Remove(scratch.Name())

		return nil, errors.Wrap(err, "dmsetup create failed")
	}

	return &syntheticDeviceContext{
		scratchPath: scratch.Name(),
		loopDev:     loopDev,
		dmName:      dmName,
		hdrSize:     hdrSize,
		rzSize:      rzSize,
		tailSize:    tailSize,
	}, nil
}

// dmLinearTable builds a dmsetup table mapping sector 0..hdr/512 to the
// scratch loop device, hdr/512..（hdr+rz)/512 to a read-zeros dm-zero
// target, and (if tailSize > 0) the remainder back to the scratch
// device's tail bytes.
func dmLinearTable(loopDev string, hdrSize, rzSize, tailSize uint64) string {
	sector := func(b uint64) uint64 { return b / blocks.SectorSize }

	table := ""
	table += "0 " + u64s(sector(hdrSize)) + " linear " + loopDev + " 0\n"
	table += u64s(sector(hdrSize)) + " " + u64s(sector(rzSize)) + " zero\n"

	if tailSize > 0 {
		table += u64s(sector(hdrSize+rzSize)) + " " + u64s(sector(tailSize)) +
			" linear " + loopDev + " " + u64s(sector(hdrSize)) + "\n"
	}

	return table
}

func u64s(v uint64) string { return strconv.FormatUint(v, 10) }

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}

	return s
}

func (c *syntheticDeviceContext) devicePath() string {
	return "/dev/mapper/" + c.dmName
}

// capture reads the writable head and tail bytes back off the scratch
// loop device (not through the dm node: reads through the zero target
// would return zeros) and packages them as a blocks.SyntheticDevice.
func (c *syntheticDeviceContext) capture() (*blocks.SyntheticDevice, error) {
	f, err := os.Open(c.scratchPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data := make([]byte, c.hdrSize+c.tailSize)
	if _, err := f.ReadAt(data, 0); err != nil {
		return nil, errors.Wrap(err, "failed to capture synthetic device data")
	}

	return &blocks.SyntheticDevice{
		Data:            data,
		WritableHdrSize: c.hdrSize,
		RzSize:          c.rzSize,
		WritableEndSize: c.tailSize,
	}, nil
}

func (c *syntheticDeviceContext) teardown() error {
	var firstErr error

	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	note(runOK("dmsetup", "remove", c.dmName))
	note(runOK("losetup", "-d", c.loopDev))
	note(os.Remove(c.scratchPath))

	return firstErr
}

// bcacheMaker is the linux implementation of blocks.BcacheMaker.
type bcacheMaker struct{}

// BcacheMaker returns the linux implementation of blocks.BcacheMaker.
func BcacheMaker() blocks.BcacheMaker { return bcacheMaker{} }

func (bcacheMaker) MakeBcacheSB(bsbSize, dataSize uint64, csetUUID string) (*blocks.SyntheticDevice, error) {
	ctx, err := newSyntheticDevice(bsbSize, dataSize, 0)
	if err != nil {
		return nil, err
	}
	defer ctx.teardown() //nolint:errcheck

	args := []string{
		"--bdev",
		"--data_offset", u64s(bsbSize / blocks.SectorSize),
	}

	if csetUUID != "" {
		args = append(args, "--cset-uuid", csetUUID)
	}

	args = append(args, ctx.devicePath())

	if _, err := run("make-bcache", args...); err != nil {
		return nil, errors.Wrap(err, "make-bcache failed")
	}

	synth, err := ctx.capture()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(ctx.scratchPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hasBcache, err := hasBcacheSuperblockAt(f, 0)
	if err != nil {
		return nil, err
	}

	if !hasBcache {
		return nil, errors.New("make-bcache did not produce a recognizable bcache superblock")
	}

	return synth, nil
}

var _ blocks.BcacheMaker = bcacheMaker{}

// lvmMaker is the linux implementation of blocks.LvmMaker.
type lvmMaker struct{}

// LvmMaker returns the linux implementation of blocks.LvmMaker.
func LvmMaker() blocks.LvmMaker { return lvmMaker{} }

// MakeLvmHeader runs pvcreate/vgcfgrestore against a synthetic
// device-mapper staging area instead of the real device: peSize bytes
// are backed by a writable loop-device-mapped scratch file, the
// remaining dataSize bytes by a read-zeros dm-zero target standing in
// for the real PE extents the tool must never touch. Only the captured
// head bytes travel back to the real device, via the caller's
// SyntheticDevice.CopyToPhysical.
func (lvmMaker) MakeLvmHeader(peSize, dataSize uint64, pvUUID, vgName, cfgText string, vm blocks.VolumeManager) (*blocks.SyntheticDevice, error) {
	ctx, err := newSyntheticDevice(peSize, dataSize, 0)
	if err != nil {
		return nil, err
	}
	defer ctx.teardown() //nolint:errcheck

	if err := vm.CreatePVWithUUID(ctx.devicePath(), pvUUID, cfgText); err != nil {
		return nil, errors.Wrap(err, "pvcreate against synthetic device failed")
	}

	if err := vm.RestoreVG(vgName, cfgText); err != nil {
		return nil, errors.Wrap(err, "vgcfgrestore against synthetic device failed")
	}

	return ctx.capture()
}

var _ blocks.LvmMaker = lvmMaker{}
