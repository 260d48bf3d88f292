package blocks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blocks "machinerun.io/blockconv"
)

// callOrder is a shared recorder every fake in this file logs to, so
// tests can assert on the relative order of grow/shrink/deactivate calls
// without needing real devices.
type callOrder struct{ calls []string }

func (c *callOrder) log(s string) { c.calls = append(c.calls, s) }

// trackingDevice is a blocks.Device standing in for either the outer
// partition device or the inner filesystem device of a one-container
// stack, depending on sbType.
type trackingDevice struct {
	path        string
	size        uint64
	isPartition bool
	sbType      string
	inner       blocks.Device
	log         *callOrder
}

func (d *trackingDevice) Path() string { return d.path }
func (d *trackingDevice) Size() (uint64, error) {
	return d.size, nil
}
func (d *trackingDevice) SuperblockType() (string, error)     { return d.sbType, nil }
func (d *trackingDevice) SuperblockAt(uint64) (string, error) { return "", nil }
func (d *trackingDevice) HasBcacheSuperblock() (bool, error)  { return false, nil }
func (d *trackingDevice) Sysfspath() (string, error)          { return "", nil }
func (d *trackingDevice) IterHolders() ([]string, error)      { return nil, nil }
func (d *trackingDevice) IsPartition() (bool, error)          { return d.isPartition, nil }
func (d *trackingDevice) IsLV() (bool, error)                 { return false, nil }
func (d *trackingDevice) DevNum() (int, int, error)           { return 0, 0, nil }
func (d *trackingDevice) ResetSize() {
	d.log.log("dev.ResetSize")
}

var _ blocks.Device = (*trackingDevice)(nil)

// trackingContainer is a single pass-through ContainerAdapter wrapping
// inner, logging ReserveEndArea/Deactivate calls.
type trackingContainer struct {
	inner blocks.Device
	log   *callOrder
}

func (c *trackingContainer) ReadSuperblock() error { return nil }
func (c *trackingContainer) Offset() uint64        { return 0 }
func (c *trackingContainer) Grow(uint64) error     { return nil }
func (c *trackingContainer) ReserveEndArea(uint64) error {
	c.log.log("container.ReserveEndArea")
	return nil
}
func (c *trackingContainer) CleartextDevice() (blocks.Device, error) { return c.inner, nil }
func (c *trackingContainer) Activate(string) error                  { return nil }
func (c *trackingContainer) Deactivate() error {
	c.log.log("container.Deactivate")
	return nil
}

var _ blocks.ContainerAdapter = (*trackingContainer)(nil)

// trackingFs is a blocks.FsAdapter that actually tracks its own size
// across Grow/ReserveEndArea so Resize's post-resize invariants hold.
type trackingFs struct {
	size uint64
	log  *callOrder
}

func (f *trackingFs) ReadSuperblock() error       { return nil }
func (f *trackingFs) CanShrink() bool             { return true }
func (f *trackingFs) ResizeNeedsMountPoint() bool { return false }
func (f *trackingFs) BlockSize() uint64           { return 512 }
func (f *trackingFs) Fssize() uint64              { return f.size }
func (f *trackingFs) Grow(upperBound uint64) error {
	f.log.log("fs.Grow")
	if target := blocks.AlignDown(upperBound, 512); target > f.size {
		f.size = target
	}
	return nil
}
func (f *trackingFs) ReserveEndArea(pos uint64) error {
	f.log.log("fs.ReserveEndArea")
	f.size = blocks.AlignDown(pos, 512)
	return nil
}
func (f *trackingFs) VfsType() string { return "ext4" }
func (f *trackingFs) Label() string   { return "" }

var _ blocks.FsAdapter = (*trackingFs)(nil)

// trackingResizer is a blocks.DeviceResizer recording grow/shrink calls.
type trackingResizer struct {
	log        *callOrder
	growTo     uint64
	shrinkCall bool
}

func (r *trackingResizer) GrowDevice(dev blocks.Device, newSize uint64) (uint64, error) {
	r.log.log("resizer.GrowDevice")
	r.growTo = newSize
	if td, ok := dev.(*trackingDevice); ok {
		td.size = newSize
	}
	return newSize, nil
}

func (r *trackingResizer) ShrinkDevice(dev blocks.Device, newSize uint64) error {
	r.log.log("resizer.ShrinkDevice")
	r.shrinkCall = true
	if td, ok := dev.(*trackingDevice); ok {
		td.size = newSize
	}
	return nil
}

var _ blocks.DeviceResizer = (*trackingResizer)(nil)

func newContainerFactory(log *callOrder) blocks.ContainerFactory {
	return func(kind string, dev blocks.Device) (blocks.ContainerAdapter, error) {
		td := dev.(*trackingDevice)
		return &trackingContainer{inner: td.inner, log: log}, nil
	}
}

func newFsFactory(fs *trackingFs) blocks.FsFactory {
	return func(kind string, dev blocks.Device) (blocks.FsAdapter, error) {
		return fs, nil
	}
}

// quietProgress is a blocks.ProgressListener that discards notifications,
// used so test output isn't cluttered with progress messages.
type quietProgress struct{}

func (quietProgress) Notify(string)            {}
func (quietProgress) Bail(msg string, err error) error { return err }

var _ blocks.ProgressListener = quietProgress{}

func noopProgress() blocks.ProgressListener { return quietProgress{} }

// TestResizeGrowsDeviceBeforeFs exercises the grow-then-resize ordering
// of §4.8: the device must be grown (and its cached size invalidated)
// before the stack on top of it is grown.
func TestResizeGrowsDeviceBeforeFs(t *testing.T) {
	log := &callOrder{}
	fs := &trackingFs{size: 1000 * 512, log: log}
	dev := &trackingDevice{path: "/dev/fake0", size: 1000 * 512, sbType: "ext4", log: log}
	resizer := &trackingResizer{log: log}

	err := blocks.Resize(blocks.ResizeRequest{
		Device:       dev,
		NewSize:      2000 * 512,
		ResizeDevice: true,
		NewContainer: newContainerFactory(log),
		NewFs:        newFsFactory(fs),
	}, resizer, noopProgress())
	require.NoError(t, err)

	require.Equal(t, []string{"resizer.GrowDevice", "dev.ResetSize", "fs.Grow"}, log.calls)
	assert.Equal(t, uint64(2000*512), fs.Fssize())
}

// TestResizeShrinksFsBeforeDeviceAndDeactivatesPartition exercises the
// shrink-then-resize ordering: a partition-backed stack must be
// deactivated and shrunk before the partition boundary itself shrinks.
func TestResizeShrinksFsBeforeDeviceAndDeactivatesPartition(t *testing.T) {
	log := &callOrder{}
	innerDev := &trackingDevice{path: "/dev/fake0-inner", size: 2000 * 512, sbType: "ext4", log: log}
	fs := &trackingFs{size: 1800 * 512, log: log}
	outerDev := &trackingDevice{path: "/dev/fake0", size: 2000 * 512, isPartition: true, sbType: "crypto_LUKS", inner: innerDev, log: log}
	resizer := &trackingResizer{log: log}

	err := blocks.Resize(blocks.ResizeRequest{
		Device:       outerDev,
		NewSize:      500 * 512,
		ResizeDevice: true,
		NewContainer: newContainerFactory(log),
		NewFs:        newFsFactory(fs),
	}, resizer, noopProgress())
	require.NoError(t, err)

	require.Equal(t, []string{
		"container.Deactivate",
		"fs.ReserveEndArea",
		"container.ReserveEndArea",
		"resizer.ShrinkDevice",
		"dev.ResetSize",
	}, log.calls)
}

func TestResizeRejectsOversizedStack(t *testing.T) {
	log := &callOrder{}
	fs := &trackingFs{size: 5000 * 512}
	dev := &trackingDevice{path: "/dev/fake0", size: 1000 * 512, sbType: "ext4", log: log}
	resizer := &trackingResizer{log: log}

	err := blocks.Resize(blocks.ResizeRequest{
		Device:       dev,
		NewSize:      1000 * 512,
		ResizeDevice: true,
		NewContainer: newContainerFactory(log),
		NewFs:        newFsFactory(fs),
	}, resizer, noopProgress())
	assert.Error(t, err)
}
