// ABOUTME: Library tools: describe, list directories, list files, and move.
// ABOUTME: Paths are confined to the library (and, for listings, the downloads folder).

package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

type libraryHandlers struct {
	fs          FileSystem
	libraryPath string
	// readRoots are the roots listings may inspect.
	readRoots []string
}

// NewLibraryDescriptionTool describes the whole library tree.
func NewLibraryDescriptionTool(fs FileSystem, libraryPath string) *Tool {
	h := &libraryHandlers{fs: fs, libraryPath: libraryPath}
	return &Tool{
		name: "library_description",
		description: "Describes the media library: every directory and the files directly inside it. " +
			"Use it to derive absolute paths before moving anything.",
		schema:  json.RawMessage(`{"type":"object","properties":{}}`),
		handler: h.Describe,
	}
}

// NewListDirectoriesTool lists directories under a library or download path.
func NewListDirectoriesTool(fs FileSystem, libraryPath, downloadsPath string) *Tool {
	h := &libraryHandlers{fs: fs, libraryPath: libraryPath, readRoots: roots(libraryPath, downloadsPath)}
	return &Tool{
		name:        "list_directories",
		description: "Lists every directory under an absolute path inside the library or downloads folder. Defaults to the library root.",
		schema:      json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Absolute path"}}}`),
		handler:     h.ListDirectories,
	}
}

// NewListFilesTool lists files directly inside a library or download path.
func NewListFilesTool(fs FileSystem, libraryPath, downloadsPath string) *Tool {
	h := &libraryHandlers{fs: fs, libraryPath: libraryPath, readRoots: roots(libraryPath, downloadsPath)}
	return &Tool{
		name:        "list_files",
		description: "Lists the files directly inside an absolute directory path in the library or downloads folder.",
		schema:      json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Absolute directory path"}},"required":["path"]}`),
		handler:     h.ListFiles,
	}
}

// NewMoveTool moves or renames entries inside the library.
func NewMoveTool(fs FileSystem, libraryPath string) *Tool {
	h := &libraryHandlers{fs: fs, libraryPath: libraryPath}
	return &Tool{
		name: "move",
		description: "Moves and/or renames a file or directory, like 'mv -T sourcePath destinationPath'. " +
			"Both paths must be absolute, inside the library, and derived from library_description. " +
			"The destination must not exist. Missing parent directories are created.",
		schema:  json.RawMessage(`{"type":"object","properties":{"sourcePath":{"type":"string"},"destinationPath":{"type":"string"}},"required":["sourcePath","destinationPath"]}`),
		handler: h.Move,
	}
}

func roots(paths ...string) []string {
	var out []string
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (h *libraryHandlers) readable(p string) bool {
	for _, r := range h.readRoots {
		if withinOrAt(r, p) {
			return true
		}
	}
	return false
}

func (h *libraryHandlers) Describe(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	if _, err := decodeParams[struct{}](input); err != nil {
		return nil, err
	}
	dirs, err := h.fs.DescribeDirectory(ctx, h.libraryPath)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"library": h.libraryPath, "directories": dirs})
}

type listInput struct {
	Path string `json:"path"`
}

func (h *libraryHandlers) ListDirectories(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in, err := decodeParams[listInput](input)
	if err != nil {
		return nil, err
	}
	if in.Path == "" {
		in.Path = h.libraryPath
	}
	if !h.readable(in.Path) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideLibrary, in.Path)
	}

	dirs, err := h.fs.ListDirectories(ctx, in.Path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"path": in.Path, "directories": dirs})
}

func (h *libraryHandlers) ListFiles(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in, err := decodeParams[listInput](input)
	if err != nil {
		return nil, err
	}
	if in.Path == "" {
		return nil, missing("path")
	}
	if !h.readable(in.Path) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideLibrary, in.Path)
	}

	files, err := h.fs.ListFiles(ctx, in.Path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"path": in.Path, "files": files})
}

type moveInput struct {
	SourcePath      string `json:"sourcePath"`
	DestinationPath string `json:"destinationPath"`
}

func (h *libraryHandlers) Move(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in, err := decodeParams[moveInput](input)
	if err != nil {
		return nil, err
	}
	if in.SourcePath == "" {
		return nil, missing("sourcePath")
	}
	if in.DestinationPath == "" {
		return nil, missing("destinationPath")
	}
	for _, p := range []string{in.SourcePath, in.DestinationPath} {
		if !within(h.libraryPath, p) {
			return nil, fmt.Errorf("%w: %s must be an absolute path inside the library %s", ErrOutsideLibrary, p, h.libraryPath)
		}
	}

	if err := h.fs.Move(ctx, in.SourcePath, in.DestinationPath); err != nil {
		return nil, err
	}
	return success("File moved successfully", map[string]any{
		"source":      in.SourcePath,
		"destination": in.DestinationPath,
	})
}
