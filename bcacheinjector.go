package blocks

import (
	"fmt"

	"github.com/pkg/errors"
)

// BcacheStrategy selects which layer the bcache backing superblock is
// injected in front of.
type BcacheStrategy int

const (
	// PartitionStrategy shifts a partition's start boundary left to
	// make room for the superblock.
	PartitionStrategy BcacheStrategy = iota

	// LuksStrategy shifts the LUKS header forward within its own
	// device to make room for the superblock ahead of it.
	LuksStrategy

	// LvStrategy shrinks the LV by one PE and rotates its extent
	// mapping so the freed PE becomes the logical start.
	LvStrategy
)

// bcacheBackingSize returns the reserved size for the bcache backing
// superblock for each strategy, per §4.7.
func bcacheBackingSize(strategy BcacheStrategy) uint64 {
	switch strategy {
	case PartitionStrategy:
		return Mebibyte
	case LuksStrategy:
		return 16 * SectorSize
	case LvStrategy:
		return PeSize
	default:
		return 0
	}
}

// BcacheMaker drives the external make-bcache tool against a
// SyntheticDevice staging area; the real orchestration (loopback/dm
// setup, invoking make-bcache, reading the header back) lives in
// blocks/linux.
type BcacheMaker interface {
	MakeBcacheSB(bsbSize, dataSize uint64, csetUUID string) (*SyntheticDevice, error)
}

// PartitionMover reserves bsbSize bytes immediately before a partition's
// current start and shifts the start boundary left by that amount. It
// must refuse logical/extended-MBR partitions and refuse if doing so
// would overlap another partition's metadata.
type PartitionMover interface {
	ShiftPartitionStart(devPath string, partIndex int, bsbSize uint64) (newPartStart uint64, err error)
}

// BcacheInjectRequest parameterizes InjectBcache.
type BcacheInjectRequest struct {
	Stack    *BlockStack
	Strategy BcacheStrategy
	CsetUUID string

	// PartitionDevice/PartitionIndex identify the partition to shift,
	// required only for PartitionStrategy.
	PartitionDevice string
	PartitionIndex  int

	// VgName/LvName identify the LV to rotate, required only for
	// LvStrategy.
	VgName string
	LvName string
}

// InjectBcache reserves bsb_size bytes ahead of the data region named by
// req.Strategy and writes a bcache backing superblock covering the rest,
// per §4.7.
func InjectBcache(
	req BcacheInjectRequest,
	rw PhysicalWriter,
	maker BcacheMaker,
	mover PartitionMover,
	vm VolumeManager,
	progress ProgressListener,
) error {
	switch req.Strategy {
	case PartitionStrategy:
		return partToBcache(req, rw, maker, mover, progress)
	case LuksStrategy:
		return luksToBcache(req, rw, maker, progress)
	case LvStrategy:
		return lvToBcache(req, rw, maker, vm, progress)
	default:
		return errors.Errorf("unknown bcache injection strategy %d", req.Strategy)
	}
}

func partToBcache(req BcacheInjectRequest, rw PhysicalWriter, maker BcacheMaker, mover PartitionMover, progress ProgressListener) error {
	bsbSize := bcacheBackingSize(PartitionStrategy)
	fssize := req.Stack.TotalDataSize()

	synth, err := maker.MakeBcacheSB(bsbSize, fssize, req.CsetUUID)
	if err != nil {
		return errors.Wrap(err, "failed to synthesize bcache backing superblock")
	}

	newStart, err := mover.ShiftPartitionStart(req.PartitionDevice, req.PartitionIndex, bsbSize)
	if err != nil {
		return errors.Wrap(err, "failed to shift partition start")
	}

	progress.Notify(fmt.Sprintf("writing bcache backing superblock at byte %d of %s", newStart, req.PartitionDevice))

	return synth.CopyToPhysical(rw, 0, 0, false)
}

func luksToBcache(req BcacheInjectRequest, rw PhysicalWriter, maker BcacheMaker, progress ProgressListener) error {
	if len(req.Stack.Containers) == 0 {
		return errors.New("bcache LUKS strategy requires a LUKS container on the stack")
	}

	luks, ok := req.Stack.Containers[0].(ShiftableHeader)
	if !ok {
		return errors.New("outermost container is not a LUKS header")
	}

	shiftBy := uint64(16 * SectorSize)

	if luks.SbEnd()+shiftBy > luks.PayloadOffset() {
		return errors.Errorf("shifting by %d would overlap the LUKS payload (sb_end=%d payload_offset=%d)",
			shiftBy, luks.SbEnd(), luks.PayloadOffset())
	}

	if err := luks.ShiftSB(rw, shiftBy); err != nil {
		return errors.Wrap(err, "failed to shift LUKS header")
	}

	synth, err := maker.MakeBcacheSB(shiftBy, req.Stack.TotalDataSize(), req.CsetUUID)
	if err != nil {
		return errors.Wrap(err, "failed to synthesize bcache backing superblock")
	}

	progress.Notify("writing bcache backing superblock ahead of shifted LUKS header")

	return synth.CopyToPhysical(rw, 0, 0, false)
}

func lvToBcache(req BcacheInjectRequest, rw PhysicalWriter, maker BcacheMaker, vm VolumeManager, progress ProgressListener) error {
	bsbSize := bcacheBackingSize(LvStrategy)

	if err := req.Stack.StackResize(req.Stack.TotalDataSize()-bsbSize, true); err != nil {
		return errors.Wrap(err, "failed to reserve one PE for the bcache superblock")
	}

	if err := req.Stack.Deactivate(); err != nil {
		return errors.Wrap(err, "failed to deactivate stack before rotation")
	}

	synth, err := maker.MakeBcacheSB(bsbSize, req.Stack.TotalDataSize(), req.CsetUUID)
	if err != nil {
		return errors.Wrap(err, "failed to synthesize bcache backing superblock")
	}

	lastPEOffset := req.Stack.TotalDataSize()

	progress.Notify(fmt.Sprintf("writing bcache backing superblock at freed PE, offset %d", lastPEOffset))

	if err := synth.CopyToPhysical(rw, lastPEOffset, 0, false); err != nil {
		return err
	}

	return rotateAndCommitLV(req.VgName, req.LvName, vm, progress)
}

// rotateAndCommitLV re-reads the VG config backing lvName, rotates its
// extent mapping backward by one PE (moving the last physical extent,
// the one the freed-PE bcache superblock now occupies, to logical
// position 0), verifies the rotation is self-inverting (the runtime
// promotion of the original's "edit, invert, diff" development check),
// then commits the rotated config and reactivates the LV.
func rotateAndCommitLV(vgName, lvName string, vm VolumeManager, progress ProgressListener) error {
	current, err := vm.DumpVG(vgName)
	if err != nil {
		return errors.Wrap(err, "failed to dump current VG metadata")
	}

	cfg, err := ParseVgConfig(current)
	if err != nil {
		return errors.Wrap(err, "failed to parse current VG metadata")
	}

	backward, err := RotateBackward(cfg, lvName)
	if err != nil {
		return errors.Wrap(err, "failed to rotate extent mapping")
	}

	fwd, err := RotateForward(backward, lvName)
	if err != nil {
		return errors.Wrap(err, "failed to invert rotated extent mapping for self-check")
	}

	if idx := findLV(fwd, lvName); idx < 0 || !segmentsEqual(fwd.LVs[idx].Segments, cfg.LVs[findLV(cfg, lvName)].Segments) {
		return errors.Errorf("extent rotation self-check failed: inverse does not reproduce original segments for %q", lvName)
	}

	progress.Notify(fmt.Sprintf("rotated extent mapping for %s/%s, self-check passed", vgName, lvName))

	if err := vm.RestoreVG(vgName, RenderVgConfig(backward)); err != nil {
		return errors.Wrap(err, "vgcfgrestore of rotated metadata failed")
	}

	return vm.ActivateVG(vgName)
}

func segmentsEqual(a, b []LvSegment) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
