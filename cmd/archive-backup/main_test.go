package main

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/region"
	"github.com/chrissnell/remotendvi/internal/series"
	"github.com/chrissnell/remotendvi/internal/storage"
)

var nop = zap.NewNop().Sugar()

func sqliteConfig(dir, name string) Config {
	return Config{
		Storage: storage.Config{Backend: storage.BackendSQLite, SQLitePath: filepath.Join(dir, name)},
		File:    filepath.Join(dir, "backup.msgpack"),
	}
}

func TestBackupAndRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := sqliteConfig(dir, "src.db")

	archive, err := storage.Open(ctx, src.Storage, nop)
	require.NoError(t, err)
	mean := 0.42
	run := storage.Run{
		ID:        uuid.New(),
		Context:   series.ContextComparison,
		Region:    region.Region{ID: "well", Kind: region.KindCircle, Center: orb.Point{9.19, 45.46}, RadiusMeters: 20},
		CreatedAt: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Valid: []ndvi.Sample{{
			FeatureID: "S2A_MSIL2A_20250601", ID: 1, Datetime: "2025-06-01T10:20:31Z",
			NDVI:     []float32{0.4, float32(math.NaN()), 0.44},
			MeanNDVI: &mean, ValidPixels: 2, ValidFraction: 66.7,
		}},
	}
	require.NoError(t, archive.SaveRun(ctx, run))
	require.NoError(t, archive.SaveAnnotation(ctx, series.Annotation{FeatureID: "S2A_MSIL2A_20250601", Datetime: "2025-06-01T10:20:31Z", Note: "irrigated"}))
	require.NoError(t, archive.Close())

	require.NoError(t, backup(ctx, src, time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC), nop))

	dst := sqliteConfig(dir, "dst.db")
	dst.Restore = true
	require.NoError(t, restore(ctx, dst, nop))
	// a second restore finds the run already archived
	require.NoError(t, restore(ctx, dst, nop))

	restored, err := storage.Open(ctx, dst.Storage, nop)
	require.NoError(t, err)
	defer restored.Close()

	got, err := restored.LatestRun(ctx, series.ContextComparison)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Region, got.Region)
	require.Len(t, got.Valid, 1)
	require.Len(t, got.Valid[0].NDVI, 3)
	assert.True(t, math.IsNaN(float64(got.Valid[0].NDVI[1])))

	_, err = restored.LatestRun(ctx, series.ContextMain)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	notes, err := restored.Annotations(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "irrigated", notes[0].Note)
}

func TestRejectsMemoryBackend(t *testing.T) {
	cfg := Config{Storage: storage.Config{Backend: storage.BackendNone}, File: filepath.Join(t.TempDir(), "b")}
	assert.Error(t, backup(context.Background(), cfg, time.Now(), nop))
}

func TestRestoreMissingFile(t *testing.T) {
	cfg := sqliteConfig(t.TempDir(), "dst.db")
	assert.Error(t, restore(context.Background(), cfg, nop))
}
