// ABOUTME: Jackett search client implementing Searcher.
// ABOUTME: Queries every configured indexer and ranks results by seeders.

package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// JackettConfig configures a JackettClient.
type JackettConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// JackettClient searches torrent indexers through a Jackett instance.
type JackettClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewJackettClient creates a client.
func NewJackettClient(cfg JackettConfig) *JackettClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &JackettClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type jackettResponse struct {
	Results []jackettResult `json:"Results"`
}

type jackettResult struct {
	Title       string    `json:"Title"`
	Link        string    `json:"Link"`
	MagnetURI   string    `json:"MagnetUri"`
	Size        int64     `json:"Size"`
	Seeders     int       `json:"Seeders"`
	Peers       int       `json:"Peers"`
	Tracker     string    `json:"Tracker"`
	PublishDate string    `json:"PublishDate"`
}

// parsePublishDate accepts RFC 3339 and Jackett's zone-less timestamps.
func parsePublishDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Search returns up to limit results for query, most seeded first.
// A non-positive limit returns every result.
func (c *JackettClient) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("Query", query)
	endpoint := c.baseURL + "/api/v2.0/indexers/all/results?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jackett returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed jackettResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	results := make([]SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		link := r.MagnetURI
		if link == "" {
			link = r.Link
		}
		if link == "" {
			continue
		}
		results = append(results, SearchResult{
			Title:       r.Title,
			Link:        link,
			SizeBytes:   r.Size,
			Seeders:     r.Seeders,
			Peers:       r.Peers,
			Tracker:     r.Tracker,
			PublishedAt: parsePublishDate(r.PublishDate),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Seeders > results[j].Seeders
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
