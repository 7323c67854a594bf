// ABOUTME: Tests for the download tools.
// ABOUTME: Covers cleanup's dual release, id decoding, search limits and tool set assembly.

package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-librarian/internal/agent"
	"github.com/2389/coven-librarian/internal/download"
)

func TestCleanup_RemovesDirectoryAndReleasesDownload(t *testing.T) {
	fs := &fakeFS{}
	mgr := &fakeManager{}
	tool := NewCleanupTool(fs, mgr, "/downloads")

	out, err := run(t, tool, `{"downloadId":42}`)
	require.NoError(t, err)

	assert.Equal(t, "success", out["status"])
	assert.Equal(t, float64(42), out["downloadId"])
	assert.Equal(t, []fsCall{{Op: "remove_directory", Args: []string{"/downloads/42"}}}, fs.Calls())
	assert.Equal(t, []int{42}, mgr.cleaned)
}

func TestCleanup_AcceptsStringID(t *testing.T) {
	fs := &fakeFS{}
	mgr := &fakeManager{}
	_, err := run(t, NewCleanupTool(fs, mgr, "/downloads/"), `{"downloadId":"7"}`)
	require.NoError(t, err)
	assert.Equal(t, "/downloads/7", fs.Calls()[0].Args[0])
	assert.Equal(t, []int{7}, mgr.cleaned)
}

func TestCleanup_BothFailuresSurface(t *testing.T) {
	dirErr := errors.New("permission denied")
	mgrErr := errors.New("daemon unreachable")
	fs := &fakeFS{rmErr: dirErr}
	mgr := &fakeManager{cleanupErr: mgrErr}

	_, err := run(t, NewCleanupTool(fs, mgr, "/downloads"), `{"downloadId":42}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, dirErr)
	assert.ErrorIs(t, err, mgrErr)
	assert.Equal(t, []int{42}, mgr.cleaned, "manager cleanup runs despite directory failure")
}

func TestCleanup_DirectoryFailureStillReleases(t *testing.T) {
	dirErr := errors.New("rm failed")
	fs := &fakeFS{rmErr: dirErr}
	mgr := &fakeManager{}

	_, err := run(t, NewCleanupTool(fs, mgr, "/downloads"), `{"downloadId":3}`)
	assert.ErrorIs(t, err, dirErr)
	assert.Equal(t, []int{3}, mgr.cleaned)
}

func TestCleanup_InvalidParameters(t *testing.T) {
	for _, params := range []string{`{}`, `{"downloadId":"abc"}`, `{"downloadId":1.5}`, `{"downloadId":-1}`, `{"downloadId":null}`} {
		fs := &fakeFS{}
		mgr := &fakeManager{}
		_, err := run(t, NewCleanupTool(fs, mgr, "/downloads"), params)
		assert.ErrorIs(t, err, ErrInvalidParameters, params)
		assert.Empty(t, fs.Calls(), params)
		assert.Empty(t, mgr.cleaned, params)
	}
}

func TestDownload(t *testing.T) {
	mgr := &fakeManager{}
	out, err := run(t, NewDownloadTool(mgr), `{"link":"magnet:?xt=urn:btih:abc"}`)
	require.NoError(t, err)
	assert.Equal(t, float64(1), out["downloadId"])
	assert.Equal(t, "/downloads/1", out["directory"])
	assert.Equal(t, []string{"magnet:?xt=urn:btih:abc"}, mgr.added)

	_, err = run(t, NewDownloadTool(mgr), `{"link":""}`)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestDownloadStatus(t *testing.T) {
	mgr := &fakeManager{status: map[int]*download.Download{
		5: {ID: 5, Name: "debian.iso", Status: "seeding", PercentDone: 1},
	}}
	tool := NewDownloadStatusTool(mgr)

	out, err := run(t, tool, `{"downloadId":5}`)
	require.NoError(t, err)
	assert.Equal(t, true, out["complete"])

	_, err = run(t, tool, `{"downloadId":6}`)
	assert.ErrorIs(t, err, download.ErrDownloadNotFound)
}

func TestSearch(t *testing.T) {
	s := &fakeSearcher{results: []download.SearchResult{{Title: "debian", Link: "magnet:1", Seeders: 10}}}
	tool := NewSearchTool(s, 0)

	out, err := run(t, tool, `{"query":"debian"}`)
	require.NoError(t, err)
	assert.Equal(t, float64(1), out["count"])
	assert.Equal(t, "debian", s.query)
	assert.Equal(t, defaultSearchLimit, s.limit)

	_, err = run(t, tool, `{"query":"debian","limit":500}`)
	require.NoError(t, err)
	assert.Equal(t, maxSearchLimit, s.limit)

	_, err = run(t, tool, `{}`)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestDownloadAgentTools(t *testing.T) {
	cfg := Config{LibraryPath: "/lib", DownloadsPath: "/downloads"}

	withSearch, err := agent.NewCatalog(DownloadAgentTools(&fakeFS{}, &fakeManager{}, &fakeSearcher{}, cfg)...)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"search", "download", "download_status", "library_description",
		"list_directories", "list_files", "move", "cleanup",
	}, withSearch.Names())

	for _, s := range withSearch.Schemas() {
		assert.True(t, json.Valid(s.Parameters), s.Name)
		assert.NotEmpty(t, s.Description, s.Name)
	}

	without, err := agent.NewCatalog(DownloadAgentTools(&fakeFS{}, &fakeManager{}, nil, cfg)...)
	require.NoError(t, err)
	_, ok := without.Lookup("search")
	assert.False(t, ok)
}
