package services

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/buffer"
	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/models"
)

const remoteTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// HTTPDoer is the part of *http.Client the sync engine needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SyncEngineConfig describes the remote latest-state table.
type SyncEngineConfig struct {
	BaseURL     string
	Table       string
	ConflictKey string
	APIKey      string
	UTCOffset   time.Duration
}

// FlushResult summarizes one Flush call.
type FlushResult struct {
	Pulled int   // unsynced rows read from the buffer
	Sent   int   // rows in the request after per-actor collapse
	Pruned int64 // delivered rows removed afterwards
}

// SyncEngine delivers buffered heartbeats to the remote endpoint. The remote
// table holds one row per actor, so every batch is collapsed to the newest
// heartbeat of each actor before it is sent.
type SyncEngine struct {
	buffer   buffer.Buffer
	client   HTTPDoer
	endpoint string
	apiKey   string
	zone     *time.Location
	logger   zerolog.Logger
}

// NewSyncEngine creates a SyncEngine. Zero config values take the defaults.
func NewSyncEngine(cfg SyncEngineConfig, buf buffer.Buffer, client HTTPDoer, logger zerolog.Logger) (*SyncEngine, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid remote base url %q", cfg.BaseURL)
	}

	table := cmp.Or(cfg.Table, constants.DefaultRemoteTable)
	conflictKey := cmp.Or(cfg.ConflictKey, constants.DefaultConflictKey)
	offset := cmp.Or(cfg.UTCOffset, constants.DefaultRemoteUTCOffset)

	base = base.JoinPath("rest", "v1", table)
	base.RawQuery = url.Values{"on_conflict": {conflictKey}}.Encode()

	return &SyncEngine{
		buffer:   buf,
		client:   client,
		endpoint: base.String(),
		apiKey:   cfg.APIKey,
		zone:     time.FixedZone(fmt.Sprintf("UTC%+d", int(offset.Hours())), int(offset.Seconds())),
		logger:   logger,
	}, nil
}

// Endpoint returns the upsert URL.
func (e *SyncEngine) Endpoint() string {
	return e.endpoint
}

// SyncBatch sends heartbeats and reports whether the remote accepted them.
// An empty batch is trivially successful. A conflict response counts as
// success because the remote already holds the actor's row.
func (e *SyncEngine) SyncBatch(ctx context.Context, heartbeats []models.Heartbeat) bool {
	if len(heartbeats) == 0 {
		return true
	}
	if err := e.send(ctx, LatestPerActor(heartbeats)); err != nil {
		e.logger.Warn().Err(err).Int("rows", len(heartbeats)).Msg("Heartbeat batch not delivered")
		return false
	}
	return true
}

// Flush pulls up to limit unsynced rows, syncs them, marks every pulled row
// synced and prunes delivered rows. A failed sync leaves the buffer untouched
// and returns ErrSyncFailed.
func (e *SyncEngine) Flush(ctx context.Context, limit int) (FlushResult, error) {
	var res FlushResult

	rows, err := e.buffer.Unsynced(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("failed to read unsynced heartbeats: %w", err)
	}
	res.Pulled = len(rows)
	if len(rows) == 0 {
		return res, nil
	}

	latest := LatestPerActor(rows)
	res.Sent = len(latest)
	if !e.SyncBatch(ctx, rows) {
		return res, ErrSyncFailed
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.LocalID)
	}
	if err := e.buffer.MarkSynced(ctx, ids); err != nil {
		// Delivered but still unsynced locally; the next flush resends, which the upsert absorbs.
		return res, fmt.Errorf("failed to mark heartbeats synced: %w", err)
	}

	pruned, err := e.buffer.Prune(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to prune delivered heartbeats")
	}
	res.Pruned = pruned

	e.logger.Info().
		Int("pulled", res.Pulled).
		Int("sent", res.Sent).
		Int64("pruned", res.Pruned).
		Msg("Heartbeats synced")
	return res, nil
}

// Pending returns the number of unsynced rows in the buffer.
func (e *SyncEngine) Pending(ctx context.Context) (int64, error) {
	stats, err := e.buffer.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Unsynced, nil
}

// LatestPerActor keeps, for every actor, the heartbeat with the greatest
// CreatedAtLocal; ties go to the higher LocalID. The result is ordered by actor.
func LatestPerActor(heartbeats []models.Heartbeat) []models.Heartbeat {
	latest := make(map[string]models.Heartbeat, len(heartbeats))
	for _, hb := range heartbeats {
		cur, ok := latest[hb.ActorID]
		if !ok || hb.CreatedAtLocal.After(cur.CreatedAtLocal) ||
			(hb.CreatedAtLocal.Equal(cur.CreatedAtLocal) && hb.LocalID > cur.LocalID) {
			latest[hb.ActorID] = hb
		}
	}

	out := make([]models.Heartbeat, 0, len(latest))
	for _, hb := range latest {
		out = append(out, hb)
	}
	slices.SortFunc(out, func(a, b models.Heartbeat) int {
		return strings.Compare(a.ActorID, b.ActorID)
	})
	return out
}

// remoteHeartbeat is the wire row. Optional columns are sent as explicit nulls.
type remoteHeartbeat struct {
	Username         string   `json:"username"`
	Name             string   `json:"name"`
	OnShift          bool     `json:"on_shift"`
	LoggedIn         bool     `json:"logged_in"`
	Status           string   `json:"status"`
	Activity         *string  `json:"activity"`
	SiteID           *string  `json:"site_id"`
	ViaWarehouse     *bool    `json:"via_warehouse"`
	WarehouseName    *string  `json:"warehouse_name"`
	Lat              *float64 `json:"lat"`
	Lng              *float64 `json:"lng"`
	HomeLocation     *string  `json:"home_location"`
	UpdatedAt        string   `json:"updated_at"`
	LastPing         string   `json:"last_ping"`
	LastActiveAt     string   `json:"last_active_at"`
	LastActiveSource string   `json:"last_active_source"`
}

func (e *SyncEngine) toRemote(hb models.Heartbeat) remoteHeartbeat {
	return remoteHeartbeat{
		Username:         hb.ActorID,
		Name:             hb.DisplayName,
		OnShift:          hb.OnShift,
		LoggedIn:         hb.LoggedIn,
		Status:           string(hb.Status),
		Activity:         hb.Activity,
		SiteID:           hb.SiteID,
		ViaWarehouse:     hb.ViaWarehouse,
		WarehouseName:    hb.WarehouseName,
		Lat:              hb.Lat,
		Lng:              hb.Lng,
		HomeLocation:     hb.HomeLocation,
		UpdatedAt:        e.formatTime(hb.UpdatedAt),
		LastPing:         e.formatTime(hb.LastPing),
		LastActiveAt:     e.formatTime(hb.LastActiveAt),
		LastActiveSource: string(hb.LastActiveSource),
	}
}

func (e *SyncEngine) formatTime(t time.Time) string {
	return t.In(e.zone).Format(remoteTimeLayout)
}

func (e *SyncEngine) send(ctx context.Context, rows []models.Heartbeat) error {
	payload := make([]remoteHeartbeat, 0, len(rows))
	for _, hb := range rows {
		payload = append(payload, e.toRemote(hb))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode heartbeats: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sync request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal,resolution=merge-duplicates")
	req.Header.Set("X-Request-Id", requestID)
	if e.apiKey != "" {
		req.Header.Set("apikey", e.apiKey)
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		e.logger.Debug().Str("request_id", requestID).Int("rows", len(rows)).Msg("Heartbeat upsert accepted")
		return nil
	case resp.StatusCode == http.StatusConflict:
		e.logger.Info().Str("request_id", requestID).Msg("Heartbeat upsert conflicted, treating as delivered")
		return nil
	default:
		return fmt.Errorf("%w: status %d: %s", ErrServerRejected, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
}
