// ABOUTME: Serialized remote command channel built on a Shell.
// ABOUTME: Each operation connects, runs its commands, then disconnects under one lock.

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
)

const (
	existsSentinel    = "EXISTS"
	notExistsSentinel = "NOT_EXISTS"
)

// probe is the test(1) flag used by an existence check.
type probe string

const (
	probeDir  probe = "-d"
	probeFile probe = "-f"
	probeAny  probe = "-e"
)

// Channel runs filesystem operations over a Shell, one at a time.
type Channel struct {
	mu     sync.Mutex
	shell  Shell
	logger *slog.Logger
}

// NewChannel creates a channel over shell.
func NewChannel(shell Shell, logger *slog.Logger) *Channel {
	return &Channel{
		shell:  shell,
		logger: logger.With("component", "remote"),
	}
}

// session is the command runner handed to an operation while the lock is held.
type session struct {
	ctx   context.Context
	shell Shell
}

// do runs fn inside the critical section, connecting first if needed and
// always disconnecting afterwards.
func (c *Channel) do(ctx context.Context, op string, fn func(s *session) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.shell.IsConnected() {
		if err := c.shell.Connect(ctx); err != nil {
			return fmt.Errorf("%s: connecting: %w", op, err)
		}
	}
	defer func() {
		if err := c.shell.Disconnect(); err != nil {
			c.logger.Warn("disconnect failed", "op", op, "error", err)
		}
	}()

	if err := fn(&session{ctx: ctx, shell: c.shell}); err != nil {
		c.logger.Debug("remote operation failed", "op", op, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// run executes command and fails on any error-stream output.
func (s *session) run(command string) (string, error) {
	res, err := s.shell.Execute(s.ctx, command)
	if err != nil {
		return "", err
	}
	if res.Stderr != "" {
		return "", &CommandError{Command: command, Output: res.Stderr}
	}
	return res.Stdout, nil
}

// exists runs a boolean probe. Output other than the sentinel means absent.
func (s *session) exists(p string, kind probe) (bool, error) {
	cmd := fmt.Sprintf("[ %s %s ] && echo %s || echo %s", kind, shellQuote(p), existsSentinel, notExistsSentinel)
	out, err := s.run(cmd)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == existsSentinel, nil
}

func (s *session) requireDir(p string) error {
	ok, err := s.exists(p, probeDir)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPathNotFound, p)
	}
	return nil
}

// lines splits command output into non-empty trimmed lines.
func lines(out string) []string {
	var result []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		result = append(result, line)
	}
	return result
}

// DescribeDirectory maps every directory under root to the names of the
// regular files directly inside it.
func (c *Channel) DescribeDirectory(ctx context.Context, root string) (map[string][]string, error) {
	result := make(map[string][]string)
	err := c.do(ctx, "describe directory", func(s *session) error {
		if err := s.requireDir(root); err != nil {
			return err
		}
		out, err := s.run("find " + shellQuote(root) + " -type f")
		if err != nil {
			return err
		}
		for _, file := range lines(out) {
			dir, name := path.Split(file)
			dir = strings.TrimSuffix(dir, "/")
			if dir == "" && strings.HasPrefix(file, "/") {
				dir = "/"
			}
			if dir == "" || name == "" {
				continue
			}
			if !slices.Contains(result[dir], name) {
				result[dir] = append(result[dir], name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, names := range result {
		slices.Sort(names)
	}
	return result, nil
}

// ListDirectories returns every directory under p, p included.
func (c *Channel) ListDirectories(ctx context.Context, p string) ([]string, error) {
	var dirs []string
	err := c.do(ctx, "list directories", func(s *session) error {
		if err := s.requireDir(p); err != nil {
			return err
		}
		out, err := s.run("find " + shellQuote(p) + " -type d")
		if err != nil {
			return err
		}
		dirs = lines(out)
		return nil
	})
	return dirs, err
}

// ListFiles returns the regular files directly inside p.
func (c *Channel) ListFiles(ctx context.Context, p string) ([]string, error) {
	var files []string
	err := c.do(ctx, "list files", func(s *session) error {
		if err := s.requireDir(p); err != nil {
			return err
		}
		out, err := s.run("find " + shellQuote(p) + " -maxdepth 1 -type f")
		if err != nil {
			return err
		}
		files = lines(out)
		return nil
	})
	return files, err
}

// Move renames src to dst, creating dst's parent directories if missing.
// It fails without changing anything when src is absent or dst exists.
func (c *Channel) Move(ctx context.Context, src, dst string) error {
	if err := checkMutable(src); err != nil {
		return err
	}
	if err := checkMutable(dst); err != nil {
		return err
	}

	return c.do(ctx, "move", func(s *session) error {
		isDir, err := s.exists(src, probeDir)
		if err != nil {
			return err
		}
		if !isDir {
			isFile, err := s.exists(src, probeFile)
			if err != nil {
				return err
			}
			if !isFile {
				return fmt.Errorf("%w: %s", ErrPathNotFound, src)
			}
		}

		taken, err := s.exists(dst, probeAny)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}

		parent := path.Dir(dst)
		hasParent, err := s.exists(parent, probeDir)
		if err != nil {
			return err
		}
		if !hasParent {
			if _, err := s.run("umask 002 && mkdir -p " + shellQuote(parent)); err != nil {
				return err
			}
		}

		_, err = s.run("mv -T " + shellQuote(src) + " " + shellQuote(dst))
		return err
	})
}

// RemoveDirectory deletes p recursively. A missing p is not an error.
func (c *Channel) RemoveDirectory(ctx context.Context, p string) error {
	if err := checkMutable(p); err != nil {
		return err
	}
	return c.do(ctx, "remove directory", func(s *session) error {
		_, err := s.run("rm -rf " + shellQuote(p))
		return err
	})
}

// RemoveFile deletes p. A missing p is not an error.
func (c *Channel) RemoveFile(ctx context.Context, p string) error {
	if err := checkMutable(p); err != nil {
		return err
	}
	return c.do(ctx, "remove file", func(s *session) error {
		_, err := s.run("rm -f " + shellQuote(p))
		return err
	})
}

// checkMutable rejects paths a mutating command must never target.
func checkMutable(p string) error {
	if !path.IsAbs(p) {
		return fmt.Errorf("%w: %q is not absolute", ErrUnsafePath, p)
	}
	if path.Clean(p) == "/" {
		return fmt.Errorf("%w: refusing to operate on /", ErrUnsafePath)
	}
	return nil
}
