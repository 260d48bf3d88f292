// +build linux

package linux

import (
	"bytes"
	"os/exec"
	"syscall"

	blocks "machinerun.io/blockconv"
)

// run invokes name with args, capturing stdout/stderr, and returns a
// *blocks.CommandError on any non-zero exit or launch failure.
func run(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...) //nolint:gosec

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	rc := -1

	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			rc = status.ExitStatus()
		}
	}

	return stdout.Bytes(), &blocks.CommandError{
		Args:     append([]string{name}, args...),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: rc,
	}
}

func runOK(name string, args ...string) error {
	_, err := run(name, args...)
	return err
}

func udevSettle() error {
	return runOK("udevadm", "settle")
}
