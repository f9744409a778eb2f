package receipt

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modernSchema = `
CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT);
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT,
	text TEXT,
	handle_id INTEGER,
	is_from_me INTEGER,
	date INTEGER,
	is_delivered INTEGER,
	is_read INTEGER,
	date_delivered INTEGER,
	date_read INTEGER
);`

// pre-10.13 stores carry no per-row receipt columns
const legacySchema = `
CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT);
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY,
	guid TEXT,
	text TEXT,
	handle_id INTEGER,
	is_from_me INTEGER,
	date INTEGER
);`

func newChatStore(t *testing.T, schema string) (string, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return path, db
}

func TestAppleEpochOffset(t *testing.T) {
	appleZero := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(0), toAppleSeconds(appleZero))
	assert.Equal(t, int64(-978307200), toAppleSeconds(time.Unix(0, 0)))
}

func TestFromAppleStamp(t *testing.T) {
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seconds := fromAppleStamp(788918400)
	require.NotNil(t, seconds)
	assert.Equal(t, want, *seconds)

	nanos := fromAppleStamp(788918400 * 1_000_000_000)
	require.NotNil(t, nanos)
	assert.Equal(t, want, *nanos)

	assert.Nil(t, fromAppleStamp(0))
	assert.Nil(t, fromAppleStamp(-5))
}

func TestBuildWindowCoversBothRepresentations(t *testing.T) {
	sentAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := buildWindow(sentAt, 5*time.Minute)

	assert.Equal(t, int64(788918100), w.startSeconds)
	assert.Equal(t, int64(788918700), w.endSeconds)
	assert.Equal(t, int64(788918100)*1_000_000_000, w.startNanos)
	assert.Equal(t, int64(788918700)*1_000_000_000, w.endNanos)
}

func TestReadSnapshotModernSchema(t *testing.T) {
	path, db := newChatStore(t, modernSchema)
	deliveredAt := int64(788918460)
	readAt := int64(788918520)
	_, err := db.Exec(
		`INSERT INTO message (ROWID, guid, text, handle_id, is_from_me, date, is_delivered, is_read, date_delivered, date_read)
		 VALUES (7, 'guid-7', 'hi', 1, 1, 788918400, 1, 1, ?, ?)`, deliveredAt, readAt)
	require.NoError(t, err)

	rowID := int64(7)
	store := &ChatDB{Path: path}
	snap := store.ReadSnapshot(context.Background(), Correlation{RowID: &rowID})

	assert.True(t, snap.Delivered)
	assert.True(t, snap.Received)
	require.NotNil(t, snap.DeliveredAt)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), *snap.DeliveredAt)
	require.NotNil(t, snap.ReceivedAt)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 2, 0, 0, time.UTC), *snap.ReceivedAt)
	assert.Empty(t, snap.Notes)
}

func TestReadSnapshotLegacySchemaReadsAsNotYet(t *testing.T) {
	path, db := newChatStore(t, legacySchema)
	_, err := db.Exec(
		`INSERT INTO message (ROWID, guid, text, handle_id, is_from_me, date)
		 VALUES (3, 'guid-3', 'hi', 1, 1, 788918400)`)
	require.NoError(t, err)

	guid := "guid-3"
	store := &ChatDB{Path: path}
	snap := store.ReadSnapshot(context.Background(), Correlation{GUID: &guid})

	assert.False(t, snap.Delivered)
	assert.False(t, snap.Received)
	assert.Nil(t, snap.DeliveredAt)
	assert.Nil(t, snap.ReceivedAt)
	assert.Empty(t, snap.Notes)
}

func TestReadSnapshotFallsBackToGUID(t *testing.T) {
	path, db := newChatStore(t, modernSchema)
	_, err := db.Exec(
		`INSERT INTO message (ROWID, guid, text, handle_id, is_from_me, date, is_delivered, is_read)
		 VALUES (9, 'guid-9', 'hi', 1, 1, 788918400, 1, 0)`)
	require.NoError(t, err)

	guid := "guid-9"
	store := &ChatDB{Path: path}
	snap := store.ReadSnapshot(context.Background(), Correlation{GUID: &guid})

	assert.True(t, snap.Delivered)
	assert.False(t, snap.Received)
}

func TestReadSnapshotWithoutCorrelationKeys(t *testing.T) {
	path, _ := newChatStore(t, modernSchema)
	store := &ChatDB{Path: path}
	snap := store.ReadSnapshot(context.Background(), Correlation{})
	assert.Equal(t, NoteMissingCorrelation, snap.Notes)
}

func TestReadSnapshotMissingStore(t *testing.T) {
	store := &ChatDB{Path: filepath.Join(t.TempDir(), "absent.db")}
	snap := store.ReadSnapshot(context.Background(), Correlation{})
	assert.Equal(t, NoteStoreNotFound, snap.Notes)
}
