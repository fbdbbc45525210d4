package buffer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/models"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func openTestBuffer(t *testing.T) *SQLiteBuffer {
	t.Helper()
	b, err := Open(context.Background(), filepath.Join(t.TempDir(), "buffer.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func heartbeatAt(actor string, at time.Time) models.Heartbeat {
	lat, lng := 24.71, 46.67
	return models.Heartbeat{
		ActorID:          actor,
		DisplayName:      "Worker " + actor,
		OnShift:          true,
		LoggedIn:         true,
		Status:           constants.StatusOnShift,
		Lat:              &lat,
		Lng:              &lng,
		UpdatedAt:        at,
		LastPing:         at,
		LastActiveAt:     at,
		LastActiveSource: constants.SourceSampler,
		CreatedAtLocal:   at,
	}
}

func TestAppend_RoundTripsAllColumns(t *testing.T) {
	b := openTestBuffer(t)
	ctx := context.Background()

	activity, site, warehouse, home := "delivery", "SITE-9", "Central", "24.1,46.2"
	via := true
	h := heartbeatAt("A", base)
	h.Activity, h.SiteID, h.WarehouseName, h.HomeLocation, h.ViaWarehouse = &activity, &site, &warehouse, &home, &via

	id, err := b.Append(ctx, h)
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := b.MostRecent(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	h.LocalID = id
	assert.Equal(t, h.ActorID, got.ActorID)
	assert.Equal(t, h.Status, got.Status)
	assert.Equal(t, "delivery", *got.Activity)
	assert.Equal(t, "SITE-9", *got.SiteID)
	assert.Equal(t, "Central", *got.WarehouseName)
	assert.Equal(t, "24.1,46.2", *got.HomeLocation)
	assert.True(t, *got.ViaWarehouse)
	assert.InDelta(t, 24.71, *got.Lat, 1e-9)
	assert.True(t, got.CreatedAtLocal.Equal(base))
	assert.False(t, got.Synced)
}

func TestAppend_NullableColumnsStayNil(t *testing.T) {
	b := openTestBuffer(t)
	ctx := context.Background()

	h := heartbeatAt("A", base)
	h.Lat, h.Lng = nil, nil
	_, err := b.Append(ctx, h)
	require.NoError(t, err)

	got, err := b.MostRecent(ctx)
	require.NoError(t, err)
	assert.Nil(t, got.Lat)
	assert.Nil(t, got.Activity)
	assert.Nil(t, got.ViaWarehouse)
	assert.False(t, got.HasPosition())
}

func TestAppend_NeverOverwrites(t *testing.T) {
	b := openTestBuffer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Append(ctx, heartbeatAt("A", base))
		require.NoError(t, err)
	}

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(3), stats.Unsynced)
}

func TestUnsynced_OldestFirstAndLimited(t *testing.T) {
	b := openTestBuffer(t)
	ctx := context.Background()

	_, err := b.Append(ctx, heartbeatAt("A", base.Add(2*time.Minute)))
	require.NoError(t, err)
	_, err = b.Append(ctx, heartbeatAt("B", base))
	require.NoError(t, err)
	_, err = b.Append(ctx, heartbeatAt("C", base.Add(time.Minute)))
	require.NoError(t, err)

	rows, err := b.Unsynced(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "B", rows[0].ActorID)
	assert.Equal(t, "C", rows[1].ActorID)

	rows, err = b.Unsynced(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkSyncedAndPrune_RetainsNewestAnchor(t *testing.T) {
	b := openTestBuffer(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := b.Append(ctx, heartbeatAt("A", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, b.MarkSynced(ctx, append(ids, ids[0])))

	pruned, err := b.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(0), stats.Unsynced)
	assert.Nil(t, stats.OldestUnsynced)

	anchor, err := b.MostRecent(ctx)
	require.NoError(t, err)
	require.NotNil(t, anchor)
	assert.Equal(t, ids[2], anchor.LocalID)
	assert.True(t, anchor.Synced)

	// A newer row makes the old anchor prunable.
	newID, err := b.Append(ctx, heartbeatAt("A", base.Add(10*time.Minute)))
	require.NoError(t, err)
	require.NoError(t, b.MarkSynced(ctx, []int64{newID}))
	pruned, err = b.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestPrune_KeepsUnsyncedRows(t *testing.T) {
	b := openTestBuffer(t)
	ctx := context.Background()

	first, err := b.Append(ctx, heartbeatAt("A", base))
	require.NoError(t, err)
	_, err = b.Append(ctx, heartbeatAt("A", base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = b.Append(ctx, heartbeatAt("A", base.Add(2*time.Minute)))
	require.NoError(t, err)

	require.NoError(t, b.MarkSynced(ctx, []int64{first}))
	pruned, err := b.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	rows, err := b.Unsynced(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMostRecent_EmptyBuffer(t *testing.T) {
	b := openTestBuffer(t)

	got, err := b.MostRecent(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestMostRecent_UsesCreatedAtNotInsertOrder(t *testing.T) {
	b := openTestBuffer(t)
	ctx := context.Background()

	_, err := b.Append(ctx, heartbeatAt("late", base.Add(5*time.Minute)))
	require.NoError(t, err)
	_, err = b.Append(ctx, heartbeatAt("early", base))
	require.NoError(t, err)

	got, err := b.MostRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", got.ActorID)
}

func TestAmend_RewritesOnlyPatchedColumns(t *testing.T) {
	b := openTestBuffer(t)
	ctx := context.Background()

	id, err := b.Append(ctx, heartbeatAt("A", base))
	require.NoError(t, err)
	require.NoError(t, b.MarkSynced(ctx, []int64{id}))

	status := constants.StatusDeviceSilent
	source := constants.SourceWatchdog
	synced := false
	ping := base.Add(4 * time.Minute)
	require.NoError(t, b.Amend(ctx, id, Patch{Status: &status, LastActiveSource: &source, Synced: &synced, LastPing: &ping}))

	got, err := b.MostRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusDeviceSilent, got.Status)
	assert.Equal(t, constants.SourceWatchdog, got.LastActiveSource)
	assert.False(t, got.Synced)
	assert.True(t, got.LastPing.Equal(ping))
	assert.True(t, got.CreatedAtLocal.Equal(base), "amend must not refresh the freshness timestamp")
	assert.Equal(t, "A", got.ActorID)
}

func TestAmend_MissingRow(t *testing.T) {
	b := openTestBuffer(t)
	status := constants.StatusDeviceSilent

	err := b.Amend(context.Background(), 42, Patch{Status: &status})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, b.Amend(context.Background(), 42, Patch{}), "empty patch is a no-op")
}

func TestConcurrentAppendersAndSync(t *testing.T) {
	b := openTestBuffer(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := b.Append(ctx, heartbeatAt("A", base.Add(time.Duration(w*100+i)*time.Second)))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	rows, err := b.Unsynced(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, rows, 100)

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.LocalID
	}
	require.NoError(t, b.MarkSynced(ctx, ids))
	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Unsynced)
}
