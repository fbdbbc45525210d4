package buffer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/internal/utils"
	"github.com/meerabeer/nfo-agent/pkg/file"
)

// markSyncedChunk keeps IN lists well below SQLite's bound-parameter limit.
const markSyncedChunk = 500

const schema = `
CREATE TABLE IF NOT EXISTS heartbeats (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	username           TEXT    NOT NULL,
	name               TEXT    NOT NULL DEFAULT '',
	on_shift           INTEGER NOT NULL DEFAULT 0,
	logged_in          INTEGER NOT NULL DEFAULT 0,
	status             TEXT    NOT NULL,
	activity           TEXT,
	site_id            TEXT,
	via_warehouse      INTEGER,
	warehouse_name     TEXT,
	lat                REAL,
	lng                REAL,
	home_location      TEXT,
	updated_at         INTEGER NOT NULL,
	last_ping          INTEGER NOT NULL,
	last_active_at     INTEGER NOT NULL,
	last_active_source TEXT    NOT NULL,
	created_at_local   INTEGER NOT NULL,
	synced             INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_unsynced ON heartbeats (synced, created_at_local, id);
CREATE INDEX IF NOT EXISTS idx_heartbeats_newest ON heartbeats (created_at_local DESC, id DESC);
`

const selectColumns = `id, username, name, on_shift, logged_in, status, activity, site_id,
	via_warehouse, warehouse_name, lat, lng, home_location, updated_at, last_ping,
	last_active_at, last_active_source, created_at_local, synced`

// SQLiteBuffer is the Buffer implementation backed by an embedded SQLite database.
type SQLiteBuffer struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens (or creates) the buffer database at path and ensures the schema exists.
// WAL mode lets the sampler append while a sync or watchdog read is in flight.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteBuffer, error) {
	if err := file.NewFileService().EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=synchronous(normal)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open heartbeat buffer: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping heartbeat buffer: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create heartbeat schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Heartbeat buffer opened")
	return &SQLiteBuffer{db: db, path: path, logger: logger}, nil
}

// Append implements Buffer.
func (b *SQLiteBuffer) Append(ctx context.Context, h models.Heartbeat) (int64, error) {
	res, err := b.db.ExecContext(ctx, `
		INSERT INTO heartbeats (
			username, name, on_shift, logged_in, status, activity, site_id,
			via_warehouse, warehouse_name, lat, lng, home_location, updated_at,
			last_ping, last_active_at, last_active_source, created_at_local, synced
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ActorID, h.DisplayName, boolToInt(h.OnShift), boolToInt(h.LoggedIn), string(h.Status),
		nullString(h.Activity), nullString(h.SiteID), nullBool(h.ViaWarehouse), nullString(h.WarehouseName),
		nullFloat(h.Lat), nullFloat(h.Lng), nullString(h.HomeLocation),
		toMillis(h.UpdatedAt), toMillis(h.LastPing), toMillis(h.LastActiveAt),
		string(h.LastActiveSource), toMillis(h.CreatedAtLocal), boolToInt(h.Synced),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append heartbeat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read heartbeat id: %w", err)
	}
	return id, nil
}

// Unsynced implements Buffer.
func (b *SQLiteBuffer) Unsynced(ctx context.Context, limit int) ([]models.Heartbeat, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := b.db.QueryContext(ctx, `SELECT `+selectColumns+`
		FROM heartbeats WHERE synced = 0
		ORDER BY created_at_local ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced heartbeats: %w", err)
	}
	defer rows.Close()

	var out []models.Heartbeat
	for rows.Next() {
		h, err := scanHeartbeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unsynced heartbeats: %w", err)
	}
	return out, nil
}

// MarkSynced implements Buffer.
func (b *SQLiteBuffer) MarkSynced(ctx context.Context, ids []int64) error {
	unique := make([]int64, 0, len(ids))
	for id := range utils.SliceToSet(ids) {
		unique = append(unique, id)
	}

	for start := 0; start < len(unique); start += markSyncedChunk {
		end := min(start+markSyncedChunk, len(unique))
		chunk := unique[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := `UPDATE heartbeats SET synced = 1 WHERE id IN (` + placeholders(len(chunk)) + `)`
		if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to mark heartbeats synced: %w", err)
		}
	}
	return nil
}

// Prune implements Buffer. The newest row survives even when synced.
func (b *SQLiteBuffer) Prune(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, `
		DELETE FROM heartbeats
		WHERE synced = 1
		  AND id <> (SELECT id FROM heartbeats ORDER BY created_at_local DESC, id DESC LIMIT 1)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prune heartbeats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned heartbeats: %w", err)
	}
	return n, nil
}

// MostRecent implements Buffer.
func (b *SQLiteBuffer) MostRecent(ctx context.Context) (*models.Heartbeat, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+selectColumns+`
		FROM heartbeats ORDER BY created_at_local DESC, id DESC LIMIT 1`)
	h, err := scanHeartbeat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Amend implements Buffer.
func (b *SQLiteBuffer) Amend(ctx context.Context, id int64, patch Patch) error {
	if patch.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.LastActiveSource != nil {
		sets = append(sets, "last_active_source = ?")
		args = append(args, string(*patch.LastActiveSource))
	}
	if patch.LastPing != nil {
		sets = append(sets, "last_ping = ?")
		args = append(args, toMillis(*patch.LastPing))
	}
	if patch.Synced != nil {
		sets = append(sets, "synced = ?")
		args = append(args, boolToInt(*patch.Synced))
	}
	args = append(args, id)

	res, err := b.db.ExecContext(ctx, `UPDATE heartbeats SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to amend heartbeat %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to amend heartbeat %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("amend heartbeat %d: %w", id, ErrNotFound)
	}
	return nil
}

// Stats implements Buffer.
func (b *SQLiteBuffer) Stats(ctx context.Context) (Stats, error) {
	var (
		stats          Stats
		oldestUnsynced sql.NullInt64
		newest         sql.NullInt64
	)
	err := b.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0),
		       MIN(CASE WHEN synced = 0 THEN created_at_local END),
		       MAX(created_at_local)
		FROM heartbeats`).Scan(&stats.Total, &stats.Unsynced, &oldestUnsynced, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read buffer stats: %w", err)
	}
	if oldestUnsynced.Valid {
		t := fromMillis(oldestUnsynced.Int64)
		stats.OldestUnsynced = &t
	}
	if newest.Valid {
		t := fromMillis(newest.Int64)
		stats.Newest = &t
	}
	return stats, nil
}

// Close checkpoints the WAL and closes the database.
func (b *SQLiteBuffer) Close() error {
	if b.db == nil {
		return nil
	}
	if _, err := b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to checkpoint heartbeat buffer")
	}
	err := b.db.Close()
	b.db = nil
	if err != nil {
		return fmt.Errorf("failed to close heartbeat buffer: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHeartbeat(row rowScanner) (models.Heartbeat, error) {
	var (
		h                                       models.Heartbeat
		status, source                          string
		onShift, loggedIn, synced               int64
		activity, siteID, warehouse, home       sql.NullString
		viaWarehouse                            sql.NullInt64
		lat, lng                                sql.NullFloat64
		updatedAt, lastPing, lastActive, create int64
	)
	err := row.Scan(&h.LocalID, &h.ActorID, &h.DisplayName, &onShift, &loggedIn, &status,
		&activity, &siteID, &viaWarehouse, &warehouse, &lat, &lng, &home,
		&updatedAt, &lastPing, &lastActive, &source, &create, &synced)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return h, err
		}
		return h, fmt.Errorf("failed to scan heartbeat: %w", err)
	}

	h.OnShift = onShift != 0
	h.LoggedIn = loggedIn != 0
	h.Synced = synced != 0
	h.Status = constants.HeartbeatStatus(status)
	h.LastActiveSource = constants.ActiveSource(source)
	h.Activity = stringPtr(activity)
	h.SiteID = stringPtr(siteID)
	h.WarehouseName = stringPtr(warehouse)
	h.HomeLocation = stringPtr(home)
	if viaWarehouse.Valid {
		v := viaWarehouse.Int64 != 0
		h.ViaWarehouse = &v
	}
	if lat.Valid {
		v := lat.Float64
		h.Lat = &v
	}
	if lng.Valid {
		v := lng.Float64
		h.Lng = &v
	}
	h.UpdatedAt = fromMillis(updatedAt)
	h.LastPing = fromMillis(lastPing)
	h.LastActiveAt = fromMillis(lastActive)
	h.CreatedAtLocal = fromMillis(create)
	return h, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
