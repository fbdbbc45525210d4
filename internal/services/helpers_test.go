package services_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/meerabeer/nfo-agent/internal/buffer"
	"github.com/meerabeer/nfo-agent/internal/builder"
	"github.com/meerabeer/nfo-agent/internal/clock"
	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/internal/services"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/internal/utils"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func openBuffer(t *testing.T) *buffer.SQLiteBuffer {
	t.Helper()
	b, err := buffer.Open(context.Background(), filepath.Join(t.TempDir(), "heartbeats.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func heartbeat(actor string, at time.Time, site string) models.Heartbeat {
	return models.Heartbeat{
		ActorID:          actor,
		DisplayName:      "Worker " + actor,
		OnShift:          true,
		LoggedIn:         true,
		Status:           constants.StatusOnShift,
		SiteID:           utils.NonEmpty(site),
		Lat:              utils.Ptr(24.71),
		Lng:              utils.Ptr(46.67),
		UpdatedAt:        at,
		LastPing:         at,
		LastActiveAt:     at,
		LastActiveSource: constants.SourceSampler,
		CreatedAtLocal:   at,
	}
}

func appendAll(t *testing.T, b buffer.Buffer, hbs ...models.Heartbeat) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(hbs))
	for _, hb := range hbs {
		id, err := b.Append(context.Background(), hb)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func activeSession(actor string) session.Context {
	return session.Context{ActorID: actor, DisplayName: "Worker " + actor, LoggedIn: true, OnShift: true}
}

type recordedRequest struct {
	Path    string
	Query   string
	Header  http.Header
	Rows    []map[string]any
	RawBody string
}

// remote is an httptest endpoint that records upserts and answers with status.
type remote struct {
	mu       sync.Mutex
	status   int
	requests []recordedRequest
	srv      *httptest.Server
}

func newRemote(t *testing.T, status int) *remote {
	t.Helper()
	r := &remote{status: status}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		var rows []map[string]any
		_ = json.Unmarshal(body, &rows)

		r.mu.Lock()
		r.requests = append(r.requests, recordedRequest{
			Path:    req.URL.Path,
			Query:   req.URL.RawQuery,
			Header:  req.Header.Clone(),
			Rows:    rows,
			RawBody: string(body),
		})
		status := r.status
		r.mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *remote) setStatus(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *remote) received() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func newEngine(t *testing.T, b buffer.Buffer, r *remote) *services.SyncEngine {
	t.Helper()
	engine, err := services.NewSyncEngine(services.SyncEngineConfig{
		BaseURL: r.srv.URL,
		APIKey:  "anon-key",
	}, b, r.srv.Client(), zerolog.Nop())
	require.NoError(t, err)
	return engine
}

func unsyncedCount(t *testing.T, b buffer.Buffer) int64 {
	t.Helper()
	stats, err := b.Stats(context.Background())
	require.NoError(t, err)
	return stats.Unsynced
}

func testBuilder(b buffer.Buffer, at time.Time) *builder.Builder {
	return builder.New(b, clock.NewManual(at), zerolog.Nop())
}
