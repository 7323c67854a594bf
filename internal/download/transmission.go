// ABOUTME: Transmission RPC client implementing Manager.
// ABOUTME: Wraps transmissionrpc and places each download under base/<id>.

package download

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/hekmon/transmissionrpc/v3"
)

// TransmissionConfig configures a TransmissionClient.
type TransmissionConfig struct {
	URL      string // e.g. http://nas:9091/transmission/rpc
	Username string
	Password string
	// BaseDir is the remote directory that holds one folder per download.
	BaseDir string
	Timeout time.Duration
}

// TransmissionClient talks to a Transmission daemon over its RPC API.
type TransmissionClient struct {
	rpc     *transmissionrpc.Client
	baseDir string
}

var torrentFields = []string{"id", "name", "status", "percentDone", "downloadDir", "leftUntilDone", "rateDownload", "errorString"}

// NewTransmissionClient creates a client. No request is made until first use.
func NewTransmissionClient(cfg TransmissionConfig) (*TransmissionClient, error) {
	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing transmission url: %w", err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("transmission url %q must include scheme and host", cfg.URL)
	}
	if cfg.Username != "" {
		endpoint.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rpc, err := transmissionrpc.New(endpoint, &transmissionrpc.Config{
		CustomClient: &http.Client{Timeout: timeout},
		UserAgent:    "coven-librarian",
	})
	if err != nil {
		return nil, fmt.Errorf("creating transmission client: %w", err)
	}
	return &TransmissionClient{rpc: rpc, baseDir: cfg.BaseDir}, nil
}

// Add queues link paused, moves it to BaseDir/<id> and starts it.
func (c *TransmissionClient) Add(ctx context.Context, link string) (*Download, error) {
	paused := true
	baseDir := c.baseDir
	torrent, err := c.rpc.TorrentAdd(ctx, transmissionrpc.TorrentAddPayload{
		Filename:    &link,
		DownloadDir: &baseDir,
		Paused:      &paused,
	})
	if err != nil {
		return nil, fmt.Errorf("adding torrent: %w", err)
	}
	if torrent.ID == nil {
		return nil, fmt.Errorf("adding torrent: daemon returned no id")
	}
	id := *torrent.ID

	dir := path.Join(c.baseDir, strconv.FormatInt(id, 10))
	if err := c.rpc.TorrentSetLocation(ctx, id, dir, true); err != nil {
		return nil, fmt.Errorf("relocating torrent %d: %w", id, err)
	}
	if err := c.rpc.TorrentStartIDs(ctx, []int64{id}); err != nil {
		return nil, fmt.Errorf("starting torrent %d: %w", id, err)
	}

	d := &Download{ID: int(id), Status: "downloading", Directory: dir}
	if torrent.Name != nil {
		d.Name = *torrent.Name
	}
	return d, nil
}

// Status returns the current state of download id.
func (c *TransmissionClient) Status(ctx context.Context, id int) (*Download, error) {
	torrents, err := c.rpc.TorrentGet(ctx, torrentFields, []int64{int64(id)})
	if err != nil {
		return nil, fmt.Errorf("getting torrent %d: %w", id, err)
	}
	if len(torrents) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrDownloadNotFound, id)
	}

	t := torrents[0]
	d := &Download{ID: id, Status: "unknown"}
	if t.Name != nil {
		d.Name = *t.Name
	}
	if t.Status != nil {
		d.Status = statusName(*t.Status)
	}
	if t.PercentDone != nil {
		d.PercentDone = *t.PercentDone
	}
	if t.DownloadDir != nil {
		d.Directory = *t.DownloadDir
	}
	if t.LeftUntilDone != nil {
		d.RemainingBytes = *t.LeftUntilDone
	}
	if t.RateDownload != nil {
		d.RateBytes = *t.RateDownload
	}
	if t.ErrorString != nil {
		d.Error = *t.ErrorString
	}
	return d, nil
}

// Cleanup removes download id together with its local data.
func (c *TransmissionClient) Cleanup(ctx context.Context, id int) error {
	err := c.rpc.TorrentRemove(ctx, transmissionrpc.TorrentRemovePayload{
		IDs:             []int64{int64(id)},
		DeleteLocalData: true,
	})
	if err != nil {
		return fmt.Errorf("removing torrent %d: %w", id, err)
	}
	return nil
}

func statusName(status transmissionrpc.TorrentStatus) string {
	switch status {
	case transmissionrpc.TorrentStatusStopped:
		return "stopped"
	case transmissionrpc.TorrentStatusCheckWait:
		return "check_wait"
	case transmissionrpc.TorrentStatusCheck:
		return "checking"
	case transmissionrpc.TorrentStatusDownloadWait:
		return "download_wait"
	case transmissionrpc.TorrentStatusDownload:
		return "downloading"
	case transmissionrpc.TorrentStatusSeedWait:
		return "seed_wait"
	case transmissionrpc.TorrentStatusSeed:
		return "seeding"
	default:
		return "unknown"
	}
}
