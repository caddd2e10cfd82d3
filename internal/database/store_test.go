package database

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medlens/rxchat/backend/internal/model/prescription"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection to file::memory: would see its own empty database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, GetMigrator(db).Migrate())
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestPrescriptionStoreCreateAndGet(t *testing.T) {
	store := NewPrescriptionStore(setupTestDB(t))
	ctx := context.Background()

	created, err := store.Create(ctx, "Paracetamol 500mg twice daily")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Paracetamol 500mg twice daily", got.RawText)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestPrescriptionStoreGetMissing(t *testing.T) {
	store := NewPrescriptionStore(setupTestDB(t))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, prescription.ErrNotFound)
}

func TestPrescriptionStoreRejectsEmptyText(t *testing.T) {
	store := NewPrescriptionStore(setupTestDB(t))

	_, err := store.Create(context.Background(), " \n ")
	assert.ErrorIs(t, err, prescription.ErrEmptyText)
}

func TestPrescriptionStoreListNewestFirst(t *testing.T) {
	store := NewPrescriptionStore(setupTestDB(t)).
		WithClock(steppingClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	first, err := store.Create(ctx, "first\nline two")
	require.NoError(t, err)
	second, err := store.Create(ctx, "second")
	require.NoError(t, err)
	third, err := store.Create(ctx, "third")
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "first", list[2].Preview)
}

func TestPrescriptionStoreListEmpty(t *testing.T) {
	list, err := NewPrescriptionStore(setupTestDB(t)).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPrescriptionStoreUnavailable(t *testing.T) {
	var logs bytes.Buffer
	db := setupTestDB(t)
	store := NewPrescriptionStore(db)
	store.logger = zerolog.New(&logs).Level(zerolog.InfoLevel)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, Close(db))

	_, err := store.Create(context.Background(), "text")
	assert.ErrorIs(t, err, prescription.ErrStoreUnavailable)

	_, err = store.List(context.Background())
	assert.ErrorIs(t, err, prescription.ErrStoreUnavailable)

	_, err = store.Get(context.Background(), "x")
	assert.ErrorIs(t, err, prescription.ErrStoreUnavailable)

	assert.ErrorIs(t, store.Ping(context.Background()), prescription.ErrStoreUnavailable)
	assert.Empty(t, logs.String(), "returned errors are logged by the caller")
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn")
	assert.Error(t, err)
}

func TestOpenSqliteFile(t *testing.T) {
	path := t.TempDir() + "/db/rx.db"
	db, err := Open("sqlite", path)
	require.NoError(t, err)
	defer Close(db)

	store := NewPrescriptionStore(db)
	_, err = store.Create(context.Background(), "Ibuprofen 200mg")
	require.NoError(t, err)
}
