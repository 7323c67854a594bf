// ABOUTME: Tests for the serialized remote command channel.
// ABOUTME: A scripted fake shell records commands and connection lifecycle.

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeShell struct {
	mu          sync.Mutex
	connected   bool
	connects    int
	disconnects int
	commands    []string
	connectErr  error
	respond     func(cmd string) CommandResult

	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (f *fakeShell) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.connects++
	return nil
}

func (f *fakeShell) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		f.inFlight.Add(-1)
	}
	f.connected = false
	f.disconnects++
	return nil
}

func (f *fakeShell) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeShell) Execute(_ context.Context, cmd string) (CommandResult, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	connected := f.connected
	respond := f.respond
	f.mu.Unlock()

	if !connected {
		return CommandResult{}, ErrNotConnected
	}
	if respond == nil {
		return CommandResult{}, nil
	}
	return respond(cmd), nil
}

func (f *fakeShell) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func probeCmd(flag, p string) string {
	return fmt.Sprintf("[ %s '%s' ] && echo EXISTS || echo NOT_EXISTS", flag, p)
}

// fsShell answers probes from sets of existing dirs and files and returns
// findOutput for any find command.
func fsShell(dirs, files []string, findOutput string) *fakeShell {
	return &fakeShell{respond: func(cmd string) CommandResult {
		for _, d := range dirs {
			if cmd == probeCmd("-d", d) || cmd == probeCmd("-e", d) {
				return CommandResult{Stdout: "EXISTS\n"}
			}
		}
		for _, f := range files {
			if cmd == probeCmd("-f", f) || cmd == probeCmd("-e", f) {
				return CommandResult{Stdout: "EXISTS\n"}
			}
		}
		if strings.HasPrefix(cmd, "[ ") {
			return CommandResult{Stdout: "NOT_EXISTS\n"}
		}
		if strings.HasPrefix(cmd, "find ") {
			return CommandResult{Stdout: findOutput}
		}
		return CommandResult{}
	}}
}

func TestChannel_DescribeDirectoryGroupsByParent(t *testing.T) {
	shell := fsShell([]string{"/lib"}, nil, "/lib/x/file2\n/lib/x/file1\n/lib/y/movie.mkv\n\n")
	ch := NewChannel(shell, testLogger())

	got, err := ch.DescribeDirectory(context.Background(), "/lib")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"/lib/x": {"file1", "file2"},
		"/lib/y": {"movie.mkv"},
	}, got)

	assert.Equal(t, []string{probeCmd("-d", "/lib"), "find '/lib' -type f"}, shell.Commands())
}

func TestChannel_DescribeDirectoryEmpty(t *testing.T) {
	shell := fsShell([]string{"/lib"}, nil, "")
	ch := NewChannel(shell, testLogger())

	got, err := ch.DescribeDirectory(context.Background(), "/lib")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestChannel_DescribeDirectoryDropsEmptyGroups(t *testing.T) {
	shell := fsShell([]string{"/lib"}, nil, "relative\n/lib/a/b\n")
	ch := NewChannel(shell, testLogger())

	got, err := ch.DescribeDirectory(context.Background(), "/lib")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"/lib/a": {"b"}}, got)
}

func TestChannel_ListingsRequireDirectory(t *testing.T) {
	tests := []struct {
		name string
		call func(ch *Channel) error
	}{
		{"describe", func(ch *Channel) error { _, err := ch.DescribeDirectory(context.Background(), "/missing"); return err }},
		{"directories", func(ch *Channel) error { _, err := ch.ListDirectories(context.Background(), "/missing"); return err }},
		{"files", func(ch *Channel) error { _, err := ch.ListFiles(context.Background(), "/missing"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shell := fsShell(nil, nil, "/should/not/run")
			err := tt.call(NewChannel(shell, testLogger()))
			require.ErrorIs(t, err, ErrPathNotFound)
			assert.Equal(t, []string{probeCmd("-d", "/missing")}, shell.Commands())
		})
	}
}

func TestChannel_ListDirectoriesAndFiles(t *testing.T) {
	shell := fsShell([]string{"/downloads"}, nil, "/downloads\n/downloads/42\n")
	ch := NewChannel(shell, testLogger())

	dirs, err := ch.ListDirectories(context.Background(), "/downloads")
	require.NoError(t, err)
	assert.Equal(t, []string{"/downloads", "/downloads/42"}, dirs)

	_, err = ch.ListFiles(context.Background(), "/downloads")
	require.NoError(t, err)

	cmds := shell.Commands()
	assert.Contains(t, cmds, "find '/downloads' -type d")
	assert.Contains(t, cmds, "find '/downloads' -maxdepth 1 -type f")
}

func TestChannel_MoveCreatesParentAndRenames(t *testing.T) {
	shell := fsShell([]string{"/lib/a"}, nil, "")
	ch := NewChannel(shell, testLogger())

	err := ch.Move(context.Background(), "/lib/a", "/lib/new/b")
	require.NoError(t, err)

	assert.Equal(t, []string{
		probeCmd("-d", "/lib/a"),
		probeCmd("-e", "/lib/new/b"),
		probeCmd("-d", "/lib/new"),
		"umask 002 && mkdir -p '/lib/new'",
		"mv -T '/lib/a' '/lib/new/b'",
	}, shell.Commands())
}

func TestChannel_MoveFileWithExistingParent(t *testing.T) {
	shell := fsShell([]string{"/lib"}, []string{"/lib/a.mkv"}, "")
	ch := NewChannel(shell, testLogger())

	require.NoError(t, ch.Move(context.Background(), "/lib/a.mkv", "/lib/b.mkv"))

	cmds := shell.Commands()
	assert.Equal(t, "mv -T '/lib/a.mkv' '/lib/b.mkv'", cmds[len(cmds)-1])
	for _, c := range cmds {
		assert.NotContains(t, c, "mkdir")
	}
}

func TestChannel_MoveDestinationExists(t *testing.T) {
	shell := fsShell([]string{"/lib/a", "/lib/b"}, nil, "")
	ch := NewChannel(shell, testLogger())

	err := ch.Move(context.Background(), "/lib/a", "/lib/b")
	require.ErrorIs(t, err, ErrDestinationExists)
	for _, c := range shell.Commands() {
		assert.False(t, strings.HasPrefix(c, "mv "), "unexpected mutation %q", c)
		assert.NotContains(t, c, "mkdir")
	}
}

func TestChannel_MoveSourceMissing(t *testing.T) {
	shell := fsShell([]string{"/lib"}, nil, "")
	ch := NewChannel(shell, testLogger())

	err := ch.Move(context.Background(), "/lib/gone", "/lib/b")
	require.ErrorIs(t, err, ErrPathNotFound)
	assert.Equal(t, []string{probeCmd("-d", "/lib/gone"), probeCmd("-f", "/lib/gone")}, shell.Commands())
}

func TestChannel_StderrIsCommandFailure(t *testing.T) {
	shell := &fakeShell{respond: func(cmd string) CommandResult {
		if strings.HasPrefix(cmd, "rm ") {
			return CommandResult{Stderr: "rm: cannot remove '/dl/1': Permission denied\n", ExitStatus: 1}
		}
		return CommandResult{}
	}}
	ch := NewChannel(shell, testLogger())

	err := ch.RemoveDirectory(context.Background(), "/dl/1")
	require.ErrorIs(t, err, ErrRemoteCommandFailed)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "rm: cannot remove '/dl/1': Permission denied\n", cmdErr.Output)
	assert.Equal(t, "rm -rf '/dl/1'", cmdErr.Command)
}

func TestChannel_WhitespaceOnlyStderrIsCommandFailure(t *testing.T) {
	shell := &fakeShell{respond: func(cmd string) CommandResult {
		if strings.HasPrefix(cmd, "rm ") {
			return CommandResult{Stderr: "\n"}
		}
		return CommandResult{}
	}}
	ch := NewChannel(shell, testLogger())

	err := ch.RemoveDirectory(context.Background(), "/dl/1")
	require.ErrorIs(t, err, ErrRemoteCommandFailed)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "\n", cmdErr.Output)
}

func TestChannel_UnexpectedProbeOutputMeansAbsent(t *testing.T) {
	shell := &fakeShell{respond: func(string) CommandResult {
		return CommandResult{Stdout: "maybe\n"}
	}}
	ch := NewChannel(shell, testLogger())

	_, err := ch.ListFiles(context.Background(), "/lib")
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestChannel_RemoveIsIdempotent(t *testing.T) {
	shell := &fakeShell{}
	ch := NewChannel(shell, testLogger())

	require.NoError(t, ch.RemoveDirectory(context.Background(), "/downloads/42"))
	require.NoError(t, ch.RemoveDirectory(context.Background(), "/downloads/42"))
	require.NoError(t, ch.RemoveFile(context.Background(), "/downloads/x.torrent"))

	assert.Equal(t, []string{
		"rm -rf '/downloads/42'",
		"rm -rf '/downloads/42'",
		"rm -f '/downloads/x.torrent'",
	}, shell.Commands())
}

func TestChannel_RejectsUnsafePaths(t *testing.T) {
	shell := &fakeShell{}
	ch := NewChannel(shell, testLogger())

	for _, p := range []string{"", "relative/dir", "/", "/lib/.."} {
		assert.ErrorIs(t, ch.RemoveDirectory(context.Background(), p), ErrUnsafePath, p)
		assert.ErrorIs(t, ch.Move(context.Background(), p, "/lib/x"), ErrUnsafePath, p)
	}
	assert.Equal(t, 0, shell.connects)
	assert.Empty(t, shell.Commands())
}

func TestChannel_ConnectPerOperation(t *testing.T) {
	shell := fsShell([]string{"/lib"}, nil, "")
	ch := NewChannel(shell, testLogger())
	ctx := context.Background()

	_, _ = ch.ListFiles(ctx, "/lib")
	_, _ = ch.ListFiles(ctx, "/missing")
	_ = ch.RemoveFile(ctx, "/lib/x")

	assert.Equal(t, 3, shell.connects)
	assert.Equal(t, 3, shell.disconnects)
	assert.False(t, shell.IsConnected())
}

func TestChannel_ConnectFailure(t *testing.T) {
	boom := errors.New("connection refused")
	shell := &fakeShell{connectErr: boom}
	ch := NewChannel(shell, testLogger())

	_, err := ch.ListFiles(context.Background(), "/lib")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, shell.Commands())
}

func TestChannel_OperationsAreSerialized(t *testing.T) {
	shell := fsShell([]string{"/lib"}, nil, "/lib/a\n")
	inner := shell.respond
	shell.respond = func(cmd string) CommandResult {
		time.Sleep(time.Millisecond)
		return inner(cmd)
	}
	ch := NewChannel(shell, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := ch.ListFiles(context.Background(), "/lib")
				assert.NoError(t, err)
			} else {
				assert.NoError(t, ch.RemoveFile(context.Background(), fmt.Sprintf("/lib/%d", i)))
			}
		}(i)
	}
	wg.Wait()

	assert.False(t, shell.overlap.Load())
	assert.Equal(t, 16, shell.connects)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/lib/plain'`, shellQuote("/lib/plain"))
	assert.Equal(t, `'/lib/it'\''s here'`, shellQuote("/lib/it's here"))
	assert.Equal(t, `'$(rm -rf /)'`, shellQuote("$(rm -rf /)"))
}
