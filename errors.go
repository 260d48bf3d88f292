package blocks

import "github.com/pkg/errors"

// Sentinel error kinds. Each is distinct and user-surfaceable; callers
// match with errors.Is after a chain of errors.Wrapf calls.
var (
	// ErrUnsupportedSuperblock is returned when a probe finds an unknown
	// or unsupported superblock type.
	ErrUnsupportedSuperblock = errors.New("unsupported superblock")

	// ErrUnsupportedLayout is returned when a partition type or stack
	// shape cannot be handled by an injector.
	ErrUnsupportedLayout = errors.New("unsupported layout")

	// ErrCantShrink is returned when the topmost filesystem in a stack
	// cannot be shrunk to the required target.
	ErrCantShrink = errors.New("cannot shrink filesystem")

	// ErrOverlappingPartition is returned when bcache partition injection
	// cannot find free space immediately before the target partition.
	ErrOverlappingPartition = errors.New("overlapping partition")
)

// MissingRequirementError reports an external tool that is not on PATH.
type MissingRequirementError struct {
	Cmd string
	Pkg string
}

func (e *MissingRequirementError) Error() string {
	return "missing requirement: " + e.Cmd + " (install package " + e.Pkg + ")"
}

// CommandError wraps a failed subprocess invocation, carrying enough of
// its stdout/stderr to diagnose the failure without re-running it.
type CommandError struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

func (e *CommandError) Error() string {
	return errors.Errorf(
		"command failed [%d]: %v\nstdout: %s\nstderr: %s",
		e.ExitCode, e.Args, tail(e.Stdout, 2048), tail(e.Stderr, 2048)).Error()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return "..." + s[len(s)-n:]
}

// UnsupportedSuperblockError carries the device path and probe detail
// behind an ErrUnsupportedSuperblock.
func UnsupportedSuperblockError(devpath string, detail string) error {
	return errors.Wrapf(ErrUnsupportedSuperblock, "device=%s detail=%s", devpath, detail)
}
