// ABOUTME: Download-management and search contracts used by the download tools.
// ABOUTME: Implemented by the Transmission RPC client and the Jackett search client.

package download

import (
	"context"
	"errors"
	"time"
)

// ErrDownloadNotFound indicates the manager has no download with the given id.
var ErrDownloadNotFound = errors.New("download not found")

// Download is the manager's view of one transfer.
type Download struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	PercentDone    float64 `json:"percentDone"`
	Directory      string  `json:"directory"`
	RemainingBytes int64   `json:"remainingBytes"`
	RateBytes      int64   `json:"rateBytesPerSecond,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Complete reports whether every byte has been downloaded.
func (d *Download) Complete() bool {
	return d.PercentDone >= 1
}

// Manager starts, inspects and releases downloads.
type Manager interface {
	// Add starts downloading link into a directory named after its id.
	Add(ctx context.Context, link string) (*Download, error)
	Status(ctx context.Context, id int) (*Download, error)
	// Cleanup cancels the download and releases its data.
	Cleanup(ctx context.Context, id int) error
}

// SearchResult is one candidate returned by a Searcher.
type SearchResult struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	SizeBytes   int64     `json:"sizeBytes"`
	Seeders     int       `json:"seeders"`
	Peers       int       `json:"peers"`
	Tracker     string    `json:"tracker,omitempty"`
	PublishedAt time.Time `json:"publishedAt,omitzero"`
}

// Searcher finds downloadable items.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}
