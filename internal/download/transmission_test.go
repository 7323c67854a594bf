// ABOUTME: Tests for the Transmission RPC client.
// ABOUTME: A fake daemon enforces basic auth and the session-id handshake and records RPC calls.

package download

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hekmon/transmissionrpc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionHeader = "X-Transmission-Session-Id"

type fakeTransmission struct {
	t       *testing.T
	mu      sync.Mutex
	calls   []rpcCall
	reply   func(method string, args map[string]any) (string, any)
	user    string
	pass    string
	session string
}

type rpcCall struct {
	Method    string
	Arguments map[string]any
}

func (f *fakeTransmission) set(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeTransmission) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	user, pass, session, reply := f.user, f.pass, f.session, f.reply
	f.mu.Unlock()

	if user != "" {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	if r.Header.Get(sessionHeader) != session {
		w.Header().Set(sessionHeader, session)
		w.WriteHeader(http.StatusConflict)
		return
	}

	var req struct {
		Method    string          `json:"method"`
		Arguments map[string]any  `json:"arguments"`
		Tag       json.RawMessage `json:"tag"`
	}
	if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls = append(f.calls, rpcCall{Method: req.Method, Arguments: req.Arguments})
	f.mu.Unlock()

	result, args := "success", any(map[string]any{})
	if reply != nil {
		result, args = reply(req.Method, req.Arguments)
	}
	answer := map[string]any{"result": result, "arguments": args}
	if len(req.Tag) > 0 {
		answer["tag"] = req.Tag
	}
	_ = json.NewEncoder(w).Encode(answer)
}

func (f *fakeTransmission) Calls() []rpcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rpcCall(nil), f.calls...)
}

func newFakeTransmission(t *testing.T) (*fakeTransmission, *TransmissionClient) {
	t.Helper()
	fake := &fakeTransmission{t: t, session: "sess-1", user: "admin", pass: "pw"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := NewTransmissionClient(TransmissionConfig{
		URL:      srv.URL + "/transmission/rpc",
		Username: "admin",
		Password: "pw",
		BaseDir:  "/downloads",
	})
	require.NoError(t, err)
	return fake, client
}

func TestTransmission_AddPlacesDownloadUnderID(t *testing.T) {
	fake, client := newFakeTransmission(t)
	fake.reply = func(method string, _ map[string]any) (string, any) {
		if method == "torrent-add" {
			return "success", map[string]any{"torrent-added": map[string]any{"id": 42, "name": "debian.iso", "hashString": "abc"}}
		}
		return "success", map[string]any{}
	}

	d, err := client.Add(context.Background(), "magnet:?xt=urn:btih:abc")
	require.NoError(t, err)
	assert.Equal(t, 42, d.ID)
	assert.Equal(t, "debian.iso", d.Name)
	assert.Equal(t, "/downloads/42", d.Directory)

	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "torrent-add", calls[0].Method)
	assert.Equal(t, "magnet:?xt=urn:btih:abc", calls[0].Arguments["filename"])
	assert.Equal(t, true, calls[0].Arguments["paused"])
	assert.Equal(t, "/downloads", calls[0].Arguments["download-dir"])
	assert.Equal(t, "torrent-set-location", calls[1].Method)
	assert.Equal(t, "/downloads/42", calls[1].Arguments["location"])
	assert.Equal(t, true, calls[1].Arguments["move"])
	assert.Equal(t, "torrent-start", calls[2].Method)
	assert.Equal(t, []any{float64(42)}, calls[2].Arguments["ids"])
}

func TestTransmission_AddDuplicate(t *testing.T) {
	fake, client := newFakeTransmission(t)
	fake.reply = func(method string, _ map[string]any) (string, any) {
		if method == "torrent-add" {
			return "success", map[string]any{"torrent-duplicate": map[string]any{"id": 7, "name": "dup"}}
		}
		return "success", nil
	}

	d, err := client.Add(context.Background(), "http://tracker/x.torrent")
	require.NoError(t, err)
	assert.Equal(t, 7, d.ID)
}

func TestTransmission_Status(t *testing.T) {
	fake, client := newFakeTransmission(t)
	fake.reply = func(method string, args map[string]any) (string, any) {
		ids, _ := args["ids"].([]any)
		if len(ids) == 1 && ids[0] == float64(42) {
			return "success", map[string]any{"torrents": []any{map[string]any{
				"id": 42, "name": "debian.iso", "status": 4, "percentDone": 0.5,
				"downloadDir": "/downloads/42", "leftUntilDone": 500, "rateDownload": 2048,
			}}}
		}
		return "success", map[string]any{"torrents": []any{}}
	}

	d, err := client.Status(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "downloading", d.Status)
	assert.InDelta(t, 0.5, d.PercentDone, 0.0001)
	assert.False(t, d.Complete())
	assert.Equal(t, int64(500), d.RemainingBytes)
	assert.Equal(t, int64(2048), d.RateBytes)
	assert.Equal(t, "/downloads/42", d.Directory)

	_, err = client.Status(context.Background(), 99)
	assert.ErrorIs(t, err, ErrDownloadNotFound)
}

func TestTransmission_CleanupDeletesLocalData(t *testing.T) {
	fake, client := newFakeTransmission(t)

	require.NoError(t, client.Cleanup(context.Background(), 42))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "torrent-remove", calls[0].Method)
	assert.Equal(t, []any{float64(42)}, calls[0].Arguments["ids"])
	assert.Equal(t, true, calls[0].Arguments["delete-local-data"])
}

func TestTransmission_RPCFailureResult(t *testing.T) {
	fake, client := newFakeTransmission(t)
	fake.reply = func(string, map[string]any) (string, any) {
		return "invalid or corrupt torrent file", nil
	}

	_, err := client.Add(context.Background(), "garbage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or corrupt torrent file")
}

func TestTransmission_SessionRotation(t *testing.T) {
	fake, client := newFakeTransmission(t)
	require.NoError(t, client.Cleanup(context.Background(), 1))

	fake.set(func() { fake.session = "sess-2" })
	require.NoError(t, client.Cleanup(context.Background(), 2))
	assert.Len(t, fake.Calls(), 2)
}

func TestTransmission_Unauthorized(t *testing.T) {
	fake, client := newFakeTransmission(t)
	fake.set(func() { fake.pass = "other" })

	err := client.Cleanup(context.Background(), 1)
	require.Error(t, err)
	assert.Empty(t, fake.Calls())
}

func TestNewTransmissionClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewTransmissionClient(TransmissionConfig{URL: "/transmission/rpc"})
	assert.Error(t, err)
}

func TestStatusName(t *testing.T) {
	assert.Equal(t, "stopped", statusName(transmissionrpc.TorrentStatusStopped))
	assert.Equal(t, "downloading", statusName(transmissionrpc.TorrentStatusDownload))
	assert.Equal(t, "seeding", statusName(transmissionrpc.TorrentStatusSeed))
	assert.Equal(t, "unknown", statusName(transmissionrpc.TorrentStatus(42)))
}
