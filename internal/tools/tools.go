// ABOUTME: Shared tool plumbing: the schema-carrying tool adapter and parameter decoding.
// ABOUTME: Also defines the filesystem contract the library tools run against.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/2389/coven-librarian/internal/agent"
	"github.com/2389/coven-librarian/internal/download"
)

var (
	// ErrInvalidParameters indicates missing or malformed tool arguments.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrOutsideLibrary indicates a path outside the roots a tool may touch.
	ErrOutsideLibrary = errors.New("path outside allowed root")
)

// FileSystem is the remote filesystem the library tools operate on.
type FileSystem interface {
	DescribeDirectory(ctx context.Context, root string) (map[string][]string, error)
	ListDirectories(ctx context.Context, p string) ([]string, error)
	ListFiles(ctx context.Context, p string) ([]string, error)
	Move(ctx context.Context, src, dst string) error
	RemoveDirectory(ctx context.Context, p string) error
}

// Handler executes a tool with raw JSON arguments.
type Handler func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

// Tool pairs a definition with its handler.
type Tool struct {
	name        string
	description string
	schema      json.RawMessage
	handler     Handler
}

var _ agent.Tool = (*Tool)(nil)

func (t *Tool) Name() string            { return t.name }
func (t *Tool) Description() string     { return t.description }
func (t *Tool) Schema() json.RawMessage { return t.schema }

func (t *Tool) Run(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return t.handler(ctx, params)
}

// Config carries the roots and limits the tools enforce.
type Config struct {
	LibraryPath   string
	DownloadsPath string
	// SearchLimit caps search results; zero means 10.
	SearchLimit int
}

// DownloadAgentTools returns the download agent's tool set. The search tool
// is omitted when searcher is nil.
func DownloadAgentTools(fs FileSystem, mgr download.Manager, searcher download.Searcher, cfg Config) []agent.Tool {
	tools := []agent.Tool{}
	if searcher != nil {
		tools = append(tools, NewSearchTool(searcher, cfg.SearchLimit))
	}
	tools = append(tools,
		NewDownloadTool(mgr),
		NewDownloadStatusTool(mgr),
		NewLibraryDescriptionTool(fs, cfg.LibraryPath),
		NewListDirectoriesTool(fs, cfg.LibraryPath, cfg.DownloadsPath),
		NewListFilesTool(fs, cfg.LibraryPath, cfg.DownloadsPath),
		NewMoveTool(fs, cfg.LibraryPath),
		NewCleanupTool(fs, mgr, cfg.DownloadsPath),
	)
	return tools
}

// decodeParams unmarshals raw into T. Missing arguments decode as {}.
func decodeParams[T any](raw json.RawMessage) (T, error) {
	var in T
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		trimmed = "{}"
	}
	if err := json.Unmarshal([]byte(trimmed), &in); err != nil {
		return in, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return in, nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidParameters, field)
}

// downloadID accepts a JSON number or a numeric string.
type downloadID int

func (d *downloadID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("download id %s is not an integer", string(b))
	}
	*d = downloadID(n)
	return nil
}

// within reports whether p is an absolute path strictly inside root.
func within(root, p string) bool {
	if root == "" || !path.IsAbs(p) {
		return false
	}
	r := path.Clean(root)
	c := path.Clean(p)
	if c == r {
		return false
	}
	if r == "/" {
		return true
	}
	return strings.HasPrefix(c, r+"/")
}

// withinOrAt is within, also accepting the root itself.
func withinOrAt(root, p string) bool {
	return root != "" && path.IsAbs(p) && (path.Clean(p) == path.Clean(root) || within(root, p))
}

func success(message string, fields map[string]any) (json.RawMessage, error) {
	out := map[string]any{"status": "success", "message": message}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}
