package blocks

import "github.com/pkg/errors"

// DeviceResizer grows or shrinks the underlying device itself (a
// partition boundary move or an LV extend/reduce), as opposed to
// resizing the layers stacked on top of it. The device may return a
// rounded-up/down size reflecting partition or PE alignment.
type DeviceResizer interface {
	GrowDevice(dev Device, newSize uint64) (actualSize uint64, err error)
	ShrinkDevice(dev Device, newSize uint64) error
}

// ResizeRequest parameterizes Resize.
type ResizeRequest struct {
	Device       Device
	NewSize      uint64
	ResizeDevice bool

	NewContainer ContainerFactory
	NewFs        FsFactory
}

// Resize implements the grow-then-resize policy of §4.8: grow the
// device before growing what's on it, but shrink what's on it before
// shrinking the device.
func Resize(req ResizeRequest, resizer DeviceResizer, progress ProgressListener) error {
	dev := req.Device

	size, err := dev.Size()
	if err != nil {
		return errors.Wrap(err, "failed to read device size")
	}

	if req.NewSize > size && req.ResizeDevice {
		actual, err := resizer.GrowDevice(dev, req.NewSize)
		if err != nil {
			return errors.Wrap(err, "failed to grow device")
		}

		dev.ResetSize()

		size = actual
		progress.Notify("device grown")
	}

	stack, err := Discover(dev, req.NewContainer, req.NewFs)
	if err != nil {
		return errors.Wrap(err, "failed to discover block stack")
	}

	if err := stack.ReadSuperblocks(); err != nil {
		return err
	}

	total := stack.TotalDataSize()
	if total > size {
		return errors.Errorf("total_data_size=%d exceeds device.size=%d", total, size)
	}

	target := req.NewSize
	shrink := target < total

	isPartition, err := dev.IsPartition()
	if err != nil {
		return err
	}

	if shrink && req.ResizeDevice && isPartition {
		if err := stack.Deactivate(); err != nil {
			return errors.Wrap(err, "failed to deactivate stack before partition shrink")
		}
	}

	if err := stack.StackResize(target, shrink); err != nil {
		return errors.Wrap(err, "failed to resize block stack")
	}

	if target < size && req.ResizeDevice {
		if err := resizer.ShrinkDevice(dev, target); err != nil {
			return errors.Wrap(err, "failed to shrink device")
		}

		dev.ResetSize()
	}

	return nil
}
