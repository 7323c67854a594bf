// ABOUTME: Test doubles for the filesystem, download manager and searcher.
// ABOUTME: Each records its calls so tests can assert what reached the remote side.

package tools

import (
	"context"
	"strconv"
	"sync"

	"github.com/2389/coven-librarian/internal/download"
)

type fsCall struct {
	Op   string
	Args []string
}

type fakeFS struct {
	mu       sync.Mutex
	calls    []fsCall
	describe map[string][]string
	dirs     []string
	files    []string
	moveErr  error
	rmErr    error
	listErr  error
}

func (f *fakeFS) record(op string, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fsCall{Op: op, Args: args})
}

func (f *fakeFS) Calls() []fsCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fsCall(nil), f.calls...)
}

func (f *fakeFS) DescribeDirectory(_ context.Context, root string) (map[string][]string, error) {
	f.record("describe", root)
	if f.describe == nil {
		return map[string][]string{}, nil
	}
	return f.describe, nil
}

func (f *fakeFS) ListDirectories(_ context.Context, p string) ([]string, error) {
	f.record("list_directories", p)
	return f.dirs, f.listErr
}

func (f *fakeFS) ListFiles(_ context.Context, p string) ([]string, error) {
	f.record("list_files", p)
	return f.files, f.listErr
}

func (f *fakeFS) Move(_ context.Context, src, dst string) error {
	f.record("move", src, dst)
	return f.moveErr
}

func (f *fakeFS) RemoveDirectory(_ context.Context, p string) error {
	f.record("remove_directory", p)
	return f.rmErr
}

type fakeManager struct {
	mu         sync.Mutex
	added      []string
	cleaned    []int
	status     map[int]*download.Download
	addErr     error
	cleanupErr error
	nextID     int
}

func (m *fakeManager) Add(_ context.Context, link string) (*download.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, m.addErr
	}
	m.added = append(m.added, link)
	m.nextID++
	return &download.Download{ID: m.nextID, Name: "item", Directory: "/downloads/" + strconv.Itoa(m.nextID)}, nil
}

func (m *fakeManager) Status(_ context.Context, id int) (*download.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.status[id]
	if !ok {
		return nil, download.ErrDownloadNotFound
	}
	return d, nil
}

func (m *fakeManager) Cleanup(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaned = append(m.cleaned, id)
	return m.cleanupErr
}

type fakeSearcher struct {
	query   string
	limit   int
	results []download.SearchResult
}

func (s *fakeSearcher) Search(_ context.Context, query string, limit int) ([]download.SearchResult, error) {
	s.query = query
	s.limit = limit
	return s.results, nil
}
