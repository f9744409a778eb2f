package receipt

import (
	"context"
	"log"
	"time"

	"relay/internal/message"
)

const (
	// correlationWindow bounds the fuzzy time match around the send instant.
	correlationWindow = 5 * time.Minute

	DefaultRetryAttempts = 8
	DefaultRetryDelay    = 2 * time.Second
)

// Notes values describing non-matched correlation outcomes. None of them is a
// send failure; the worst case is "no receipts for this send".
const (
	NoteStoreNotFound      = "chat_db_not_found"
	NoteNoMatch            = "no_match"
	NoteMissingCorrelation = "missing_correlation"
	NoteQueryFailed        = "query_failed:"
)

// Correlation ties a sent message to a chat.db row. Until RowID or GUID is
// set it only describes the lookup that was attempted.
type Correlation struct {
	Method     string
	Handle     string
	BodyHash   string
	SentAt     time.Time
	Path       string
	RowID      *int64
	GUID       *string
	Confidence string
	Notes      string
}

func (c Correlation) Matched() bool {
	return c.RowID != nil || c.GUID != nil
}

// Correlator locates the chat.db record for a sent message.
type Correlator struct {
	DB            *ChatDB
	RetryAttempts int
	RetryDelay    time.Duration

	// Sleep overrides the inter-attempt wait, for tests.
	Sleep func(d time.Duration)
}

// Correlate runs a single lookup: exact text and handle, outgoing records
// only, newest match inside the ±5 minute window.
func (c *Correlator) Correlate(ctx context.Context, handle, body string, sentAt time.Time) Correlation {
	corr := Correlation{
		Method:   "chat.db",
		Handle:   handle,
		BodyHash: message.BodyFingerprint(body),
		SentAt:   sentAt,
		Path:     c.DB.Path,
	}

	rowID, guid, notes := c.DB.findOutgoing(ctx, handle, body, buildWindow(sentAt, correlationWindow))
	if notes != "" {
		corr.Notes = notes
		return corr
	}
	corr.RowID = rowID
	corr.GUID = guid
	corr.Confidence = "exact_text_handle"
	return corr
}

// CorrelateWithRetry re-runs the lookup while the outcome is no_match, since
// Messages writes the log with some lag. Store-not-found and query failures
// are not timing problems and stop the retries immediately.
func (c *Correlator) CorrelateWithRetry(ctx context.Context, handle, body string, sentAt time.Time) Correlation {
	attempts := c.RetryAttempts
	if attempts < 1 {
		attempts = DefaultRetryAttempts
	}
	delay := c.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var corr Correlation
	for attempt := 1; attempt <= attempts; attempt++ {
		corr = c.Correlate(ctx, handle, body, sentAt)
		if corr.Matched() || corr.Notes != NoteNoMatch {
			return corr
		}
		if attempt < attempts {
			log.Printf("[receipt] no match yet for %s (attempt %d/%d), retrying", handle, attempt, attempts)
			c.sleep(delay)
		}
		if ctx.Err() != nil {
			return corr
		}
	}
	return corr
}

func (c *Correlator) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}
