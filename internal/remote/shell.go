// ABOUTME: Remote shell contract, command results and error types.
// ABOUTME: Shared by the SSH implementation and the command channel.

package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPathNotFound indicates the target path does not exist or has the wrong type.
	ErrPathNotFound = errors.New("path not found")

	// ErrDestinationExists indicates a move would overwrite an existing path.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrRemoteCommandFailed matches every *CommandError.
	ErrRemoteCommandFailed = errors.New("remote command failed")

	// ErrUnsafePath rejects empty, relative and root paths for mutating operations.
	ErrUnsafePath = errors.New("unsafe remote path")

	// ErrNotConnected is returned by Execute before Connect succeeds.
	ErrNotConnected = errors.New("remote shell not connected")
)

// CommandResult is the captured output of one remote command.
type CommandResult struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Shell executes commands on the remote host.
type Shell interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	// Execute runs command and captures its output. A non-zero exit status
	// is reported in the result, not as an error.
	Execute(ctx context.Context, command string) (CommandResult, error)
}

// CommandError carries the error stream of a failed remote command.
type CommandError struct {
	Command string
	Output  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command failed: %s", strings.TrimSpace(e.Output))
}

// Is reports whether target is ErrRemoteCommandFailed.
func (e *CommandError) Is(target error) bool {
	return target == ErrRemoteCommandFailed
}

// shellQuote wraps s in single quotes for safe use in a POSIX shell command.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
