package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanco-dosing-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "audit-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(id string) *domain.CalculationRecord {
	return &domain.CalculationRecord{
		ID:               id,
		RequestID:        "req-" + id,
		Population:       domain.ADULT,
		Indication:       domain.BACTEREMIA,
		Severity:         domain.MODERATE,
		CrClMethod:       domain.TOTAL_BODY_WEIGHT,
		Bayesian:         true,
		ObservationCount: 2,
		DoseMg:           1000,
		IntervalHours:    12,
		AUC24Median:      524.3,
		Status:           domain.REGIMEN_ON_TARGET,
		ProcessingTimeMs: 14,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "audit-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	record := sampleRecord("calc-1")
	require.NoError(t, store.Save(ctx, record))

	got, err := store.Get(ctx, "calc-1")
	require.NoError(t, err)

	assert.Equal(t, record.RequestID, got.RequestID)
	assert.Equal(t, domain.BACTEREMIA, got.Indication)
	assert.Equal(t, domain.MODERATE, got.Severity)
	assert.True(t, got.Bayesian)
	assert.Equal(t, 2, got.ObservationCount)
	assert.Equal(t, 1000.0, got.DoseMg)
	assert.Equal(t, 12.0, got.IntervalHours)
	assert.InDelta(t, 524.3, got.AUC24Median, 0.001)
	assert.Equal(t, domain.REGIMEN_ON_TARGET, got.Status)
}

func TestSQLiteStore_Save_RequiresID(t *testing.T) {
	store := createTestStore(t)

	record := sampleRecord("")
	err := store.Save(context.Background(), record)
	assert.Error(t, err)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)

	_, err := store.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_ListAndCount(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"a", "b", "c"} {
		record := sampleRecord(id)
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Save(ctx, record))
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	records, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ID, "newest first")
	assert.Equal(t, "b", records[1].ID)

	records, err = store.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)
}

func TestSQLiteStore_Latest(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	base := time.Now().UTC().Truncate(time.Second)
	first := sampleRecord("first")
	first.CreatedAt = base
	require.NoError(t, store.Save(ctx, first))

	second := sampleRecord("second")
	second.CreatedAt = base.Add(time.Minute)
	require.NoError(t, store.Save(ctx, second))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", latest.ID)
}

func TestSQLiteStore_ExportJSON(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRecord("x")))
	require.NoError(t, store.Save(ctx, sampleRecord("y")))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	var export Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 2, export.Count)
	assert.Len(t, export.Records, 2)
}
