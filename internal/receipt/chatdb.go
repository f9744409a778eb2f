package receipt

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// chat.db timestamps count from 2001-01-01T00:00:00Z. Newer macOS versions
// record nanoseconds since that epoch, older ones whole seconds, so windowed
// queries must try both representations.
const appleEpochSeconds = 978307200

const nanosThreshold = 1_000_000_000_000

// DefaultPath is the Messages log store of the current user.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

func toAppleSeconds(t time.Time) int64 {
	return t.Unix() - appleEpochSeconds
}

// fromAppleStamp converts a raw chat.db date value to UTC, accepting seconds
// or nanoseconds since the Apple epoch. Zero and negative values read as
// absent.
func fromAppleStamp(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	seconds := v
	if v > nanosThreshold {
		seconds = v / 1_000_000_000
	}
	t := time.Unix(seconds+appleEpochSeconds, 0).UTC()
	return &t
}

type timeWindow struct {
	startSeconds int64
	endSeconds   int64
	startNanos   int64
	endNanos     int64
}

func buildWindow(sentAt time.Time, radius time.Duration) timeWindow {
	center := toAppleSeconds(sentAt)
	offset := int64(radius / time.Second)
	w := timeWindow{
		startSeconds: center - offset,
		endSeconds:   center + offset,
	}
	w.startNanos = w.startSeconds * 1_000_000_000
	w.endNanos = w.endSeconds * 1_000_000_000
	return w
}

// ChatDB reads the external Messages log store. The store is file-backed,
// read-only and independently written; every outcome here is an observation,
// never an error that should fail a send.
type ChatDB struct {
	Path string

	// Exists and Open override filesystem and driver access, for tests.
	Exists func(path string) bool
	Open   func(path string) (*sql.DB, error)
}

func (c *ChatDB) exists() bool {
	if c.Exists != nil {
		return c.Exists(c.Path)
	}
	_, err := os.Stat(c.Path)
	return err == nil
}

func (c *ChatDB) open() (*sql.DB, error) {
	if c.Open != nil {
		return c.Open(c.Path)
	}
	return sql.Open("sqlite", "file:"+c.Path+"?mode=ro")
}

const findOutgoingQuery = `
SELECT message.ROWID, message.guid
FROM message
JOIN handle ON handle.ROWID = message.handle_id
WHERE handle.id = ?
  AND message.text = ?
  AND message.is_from_me = 1
  AND (message.date BETWEEN ? AND ? OR message.date BETWEEN ? AND ?)
ORDER BY message.date DESC
LIMIT 1`

// findOutgoing looks up the newest outgoing record matching the handle and
// exact text inside the window. A nil row with empty notes never happens:
// absence is reported through notes.
func (c *ChatDB) findOutgoing(ctx context.Context, handle, body string, w timeWindow) (rowID *int64, guid *string, notes string) {
	if !c.exists() {
		return nil, nil, NoteStoreNotFound
	}
	db, err := c.open()
	if err != nil {
		return nil, nil, NoteQueryFailed + err.Error()
	}
	defer db.Close()

	var id int64
	var g sql.NullString
	err = db.QueryRowContext(ctx, findOutgoingQuery,
		handle, body,
		w.startSeconds, w.endSeconds,
		w.startNanos, w.endNanos,
	).Scan(&id, &g)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, NoteNoMatch
	}
	if err != nil {
		return nil, nil, NoteQueryFailed + err.Error()
	}

	rowID = &id
	if g.Valid {
		guid = &g.String
	}
	return rowID, guid, ""
}

// Snapshot is the delivered/read view of a correlated row at one poll.
type Snapshot struct {
	Delivered   bool
	Received    bool
	DeliveredAt *time.Time
	ReceivedAt  *time.Time
	Notes       string
}

var receiptColumns = []string{"is_delivered", "is_read", "date_delivered", "date_read"}

// ReadSnapshot re-reads the correlated row's receipt flags. The schema varies
// across macOS versions, so available columns are detected first and missing
// ones read as "not yet".
func (c *ChatDB) ReadSnapshot(ctx context.Context, corr Correlation) Snapshot {
	if !c.exists() {
		return Snapshot{Notes: NoteStoreNotFound}
	}
	db, err := c.open()
	if err != nil {
		return Snapshot{Notes: NoteQueryFailed + err.Error()}
	}
	defer db.Close()

	available, err := messageColumns(ctx, db)
	if err != nil {
		return Snapshot{Notes: NoteQueryFailed + err.Error()}
	}
	fields := []string{"ROWID"}
	for _, col := range receiptColumns {
		if available[col] {
			fields = append(fields, col)
		}
	}

	query := "SELECT " + strings.Join(fields, ", ") + " FROM message"
	var arg any
	switch {
	case corr.RowID != nil:
		query += " WHERE ROWID = ?"
		arg = *corr.RowID
	case corr.GUID != nil:
		query += " WHERE guid = ?"
		arg = *corr.GUID
	default:
		return Snapshot{Notes: NoteMissingCorrelation}
	}
	query += " LIMIT 1"

	rows, err := db.QueryContext(ctx, query, arg)
	if err != nil {
		return Snapshot{Notes: NoteQueryFailed + err.Error()}
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Snapshot{Notes: NoteQueryFailed + err.Error()}
		}
		return Snapshot{Notes: NoteNoMatch}
	}

	values := make([]sql.NullInt64, len(fields))
	dest := make([]any, len(fields))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return Snapshot{Notes: NoteQueryFailed + err.Error()}
	}

	var snap Snapshot
	for i, field := range fields {
		if !values[i].Valid {
			continue
		}
		switch field {
		case "is_delivered":
			snap.Delivered = snap.Delivered || values[i].Int64 == 1
		case "is_read":
			snap.Received = snap.Received || values[i].Int64 == 1
		case "date_delivered":
			snap.DeliveredAt = fromAppleStamp(values[i].Int64)
		case "date_read":
			snap.ReceivedAt = fromAppleStamp(values[i].Int64)
		}
	}
	if snap.DeliveredAt != nil {
		snap.Delivered = true
	}
	if snap.ReceivedAt != nil {
		snap.Received = true
	}
	return snap
}

func messageColumns(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info(message)")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := map[string]bool{}
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
