// ABOUTME: Tests for the Jackett search client.
// ABOUTME: Verifies query encoding, magnet preference, ranking and limits.

package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJackett_SearchRanksBySeeders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2.0/indexers/all/results", r.URL.Path)
		assert.Equal(t, "key123", r.URL.Query().Get("apikey"))
		assert.Equal(t, "debian 12 iso", r.URL.Query().Get("Query"))
		_, _ = w.Write([]byte(`{"Results":[
			{"Title":"few","Link":"http://t/few.torrent","Size":10,"Seeders":1,"Peers":2,"PublishDate":"2025-03-01T10:00:00"},
			{"Title":"many","Link":"http://t/many.torrent","MagnetUri":"magnet:?xt=many","Size":20,"Seeders":90,"Tracker":"idx","PublishDate":"2025-03-02T10:00:00+00:00"},
			{"Title":"none","Seeders":500},
			{"Title":"some","Link":"http://t/some.torrent","Seeders":10}
		]}`))
	}))
	defer srv.Close()

	c := NewJackettClient(JackettConfig{URL: srv.URL + "/", APIKey: "key123"})
	results, err := c.Search(context.Background(), "debian 12 iso", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "many", results[0].Title)
	assert.Equal(t, "magnet:?xt=many", results[0].Link)
	assert.Equal(t, "idx", results[0].Tracker)
	assert.Equal(t, time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC), results[0].PublishedAt.UTC())
	assert.Equal(t, "some", results[1].Title)
}

func TestJackett_NoLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Results":[{"Title":"a","Link":"l1"},{"Title":"b","Link":"l2"}]}`))
	}))
	defer srv.Close()

	results, err := NewJackettClient(JackettConfig{URL: srv.URL}).Search(context.Background(), "x", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestJackett_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewJackettClient(JackettConfig{URL: srv.URL}).Search(context.Background(), "x", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestParsePublishDate(t *testing.T) {
	assert.True(t, parsePublishDate("").IsZero())
	assert.True(t, parsePublishDate("yesterday").IsZero())
	assert.Equal(t, 2024, parsePublishDate("2024-06-01T00:00:00").Year())
}
