// ABOUTME: Download tools: search, download, download_status, and cleanup.
// ABOUTME: Each download lives in <downloads>/<id>; cleanup removes it and releases the transfer.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/2389/coven-librarian/internal/download"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type downloadHandlers struct {
	fs            FileSystem
	manager       download.Manager
	searcher      download.Searcher
	downloadsPath string
	searchLimit   int
}

// NewSearchTool searches indexers for downloadable items.
func NewSearchTool(searcher download.Searcher, limit int) *Tool {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	h := &downloadHandlers{searcher: searcher, searchLimit: limit}
	return &Tool{
		name:        "search",
		description: "Searches torrent indexers and returns the best seeded results with their download links.",
		schema:      json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer","minimum":1,"maximum":50}},"required":["query"]}`),
		handler:     h.Search,
	}
}

// NewDownloadTool starts a download from a link returned by search.
func NewDownloadTool(mgr download.Manager) *Tool {
	h := &downloadHandlers{manager: mgr}
	return &Tool{
		name:        "download",
		description: "Starts downloading a magnet or torrent link. Returns the download id used by download_status and cleanup.",
		schema:      json.RawMessage(`{"type":"object","properties":{"link":{"type":"string"}},"required":["link"]}`),
		handler:     h.Download,
	}
}

// NewDownloadStatusTool reports a download's progress.
func NewDownloadStatusTool(mgr download.Manager) *Tool {
	h := &downloadHandlers{manager: mgr}
	return &Tool{
		name:        "download_status",
		description: "Returns the status and progress of a download.",
		schema:      json.RawMessage(`{"type":"object","properties":{"downloadId":{"type":"integer"}},"required":["downloadId"]}`),
		handler:     h.Status,
	}
}

// NewCleanupTool removes a download's folder and releases the download.
func NewCleanupTool(fs FileSystem, mgr download.Manager, downloadsPath string) *Tool {
	h := &downloadHandlers{fs: fs, manager: mgr, downloadsPath: downloadsPath}
	return &Tool{
		name: "cleanup",
		description: "Removes everything left over in a download directory. " +
			"Also cancels the download, so use it when the user asks to cancel.",
		schema:  json.RawMessage(`{"type":"object","properties":{"downloadId":{"type":"integer"}},"required":["downloadId"]}`),
		handler: h.Cleanup,
	}
}

type searchInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (h *downloadHandlers) Search(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in, err := decodeParams[searchInput](input)
	if err != nil {
		return nil, err
	}
	if in.Query == "" {
		return nil, missing("query")
	}
	limit := h.searchLimit
	if in.Limit > 0 {
		limit = min(in.Limit, maxSearchLimit)
	}

	results, err := h.searcher.Search(ctx, in.Query, limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"results": results, "count": len(results)})
}

type downloadInput struct {
	Link string `json:"link"`
}

func (h *downloadHandlers) Download(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in, err := decodeParams[downloadInput](input)
	if err != nil {
		return nil, err
	}
	if in.Link == "" {
		return nil, missing("link")
	}

	d, err := h.manager.Add(ctx, in.Link)
	if err != nil {
		return nil, err
	}
	return success("Download started", map[string]any{
		"downloadId": d.ID,
		"name":       d.Name,
		"directory":  d.Directory,
	})
}

type idInput struct {
	DownloadID *downloadID `json:"downloadId"`
}

func (h *downloadHandlers) Status(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in, err := decodeParams[idInput](input)
	if err != nil {
		return nil, err
	}
	if in.DownloadID == nil {
		return nil, missing("downloadId")
	}

	d, err := h.manager.Status(ctx, int(*in.DownloadID))
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"download": d, "complete": d.Complete()})
}

// Cleanup attempts both the folder removal and the manager release. Either
// failure is reported; neither prevents the other attempt.
func (h *downloadHandlers) Cleanup(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in, err := decodeParams[idInput](input)
	if err != nil {
		return nil, err
	}
	if in.DownloadID == nil {
		return nil, missing("downloadId")
	}
	id := int(*in.DownloadID)
	if id < 0 {
		return nil, fmt.Errorf("%w: downloadId must not be negative", ErrInvalidParameters)
	}

	dir := path.Join(h.downloadsPath, strconv.Itoa(id))
	var dirErr error
	if err := h.fs.RemoveDirectory(ctx, dir); err != nil {
		dirErr = fmt.Errorf("removing %s: %w", dir, err)
	}
	var mgrErr error
	if err := h.manager.Cleanup(ctx, id); err != nil {
		mgrErr = fmt.Errorf("releasing download %d: %w", id, err)
	}
	if err := errors.Join(dirErr, mgrErr); err != nil {
		return nil, err
	}

	return success("Download leftovers removed successfully", map[string]any{"downloadId": id})
}
