package blocks

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// ProgressListener is the side channel for user-facing notifications and
// fatal exits. notify is purely informational; bail terminates the
// current operation with a specific error kind.
type ProgressListener interface {
	Notify(msg string)
	Bail(msg string, err error) error
}

// DefaultProgressHandler is the library-style handler: it logs to stdout
// and returns the wrapped error from Bail so the caller can propagate it.
type DefaultProgressHandler struct{}

func (DefaultProgressHandler) Notify(msg string) {
	fmt.Printf("[[info]] %s\n", msg)
}

func (DefaultProgressHandler) Bail(msg string, err error) error {
	fmt.Fprintf(os.Stderr, "[[error]] %s\n", msg)
	return errors.Wrap(err, msg)
}

// CLIProgressHandler is the CLI-style handler: it prints and exits the
// process directly, matching the behavior of a command-line front end
// that has no caller left to propagate an error to.
type CLIProgressHandler struct{}

func (CLIProgressHandler) Notify(msg string) {
	fmt.Println(msg)
}

func (CLIProgressHandler) Bail(msg string, err error) error {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)

	return err // unreachable, satisfies the interface
}

// RequireTool checks that cmd is present on PATH, failing through
// progress.Bail with a MissingRequirementError naming pkg as the
// installable package if it is not.
func RequireTool(cmd, pkg string, progress ProgressListener) error {
	if strings.Contains(cmd, "/") {
		return progress.Bail(
			fmt.Sprintf("command %q must not contain a slash", cmd),
			&MissingRequirementError{Cmd: cmd, Pkg: pkg})
	}

	if _, err := exec.LookPath(cmd); err != nil {
		return progress.Bail(
			fmt.Sprintf("command %q not found, please install the %q package", cmd, pkg),
			&MissingRequirementError{Cmd: cmd, Pkg: pkg})
	}

	return nil
}

// RequireLVM checks for the lvm2 package's lvm binary.
func RequireLVM(progress ProgressListener) error {
	return RequireTool("lvm", "lvm2", progress)
}

// RequireBcache checks for the bcache-tools package's make-bcache binary.
func RequireBcache(progress ProgressListener) error {
	return RequireTool("make-bcache", "bcache-tools", progress)
}
