package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanco-dosing-server/internal/domain"
)

var recordCols = []string{
	"id", "request_id", "population_type", "indication", "severity", "crcl_method",
	"bayesian", "observation_count", "dose_mg", "interval_hr", "auc24_median", "status",
	"processing_time_ms", "created_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mock
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)

	record := sampleRecord("calc-pg-1")
	mock.ExpectExec("INSERT INTO calculations").
		WithArgs(
			record.ID, record.RequestID, string(record.Population),
			string(record.Indication), string(record.Severity), string(record.CrClMethod),
			record.Bayesian, record.ObservationCount, record.DoseMg,
			record.IntervalHours, record.AUC24Median, string(record.Status),
			record.ProcessingTimeMs, record.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Save(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM calculations WHERE id").
		WithArgs("calc-pg-2").
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow(
			"calc-pg-2", "req-2", "adult", "pneumonia", "severe", "adjusted_body_weight",
			false, 0, 1250.0, 8.0, 612.5, "ON_TARGET", 9, now,
		))

	record, err := store.Get(context.Background(), "calc-pg-2")
	require.NoError(t, err)
	assert.Equal(t, domain.PNEUMONIA, record.Indication)
	assert.Equal(t, domain.SEVERE, record.Severity)
	assert.Equal(t, 1250.0, record.DoseMg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM calculations WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(recordCols))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM calculations ORDER BY created_at DESC LIMIT").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow("b", "", "adult", "bacteremia", "moderate", "total_body_weight", true, 2, 1000.0, 12.0, 524.0, "ON_TARGET", 10, now).
			AddRow("a", "", "adult", "bacteremia", "moderate", "total_body_weight", false, 0, 750.0, 12.0, 410.0, "ON_TARGET", 7, now.Add(-time.Hour)))

	records, err := store.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.True(t, records[0].Bayesian)
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestPostgresStore_Latest(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM calculations ORDER BY created_at DESC, id DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow(
			"newest", "", "neonate", "other", "mild", "custom", false, 0, 250.0, 24.0, 455.0, "ON_TARGET", 3, now,
		))

	record, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "newest", record.ID)
	assert.Equal(t, domain.NEONATE, record.Population)
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}
