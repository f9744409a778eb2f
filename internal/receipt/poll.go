package receipt

import (
	"context"
	"log"
	"strings"
	"time"

	"relay/internal/message"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollTimeout  = 30 * time.Minute
)

// StatusFunc receives each observed status transition in order.
type StatusFunc func(status string, payload map[string]any)

// Poller re-reads a correlated chat.db row until the message is read, the
// deadline passes, or the store becomes unreadable. Consumers always see
// DELIVERED before RECEIVED, even when the read flag is observed first.
type Poller struct {
	DB       *ChatDB
	Interval time.Duration
	Timeout  time.Duration

	// Now, Sleep and Read override timing and store access, for tests.
	Now   func() time.Time
	Sleep func(d time.Duration)
	Read  func(ctx context.Context, corr Correlation) Snapshot
}

func (p *Poller) Poll(ctx context.Context, messageID string, corr Correlation, onStatus StatusFunc) {
	if !corr.Matched() {
		log.Printf("[receipt] skipping poll for %s (no correlated row)", messageID)
		return
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	deadline := p.now().Add(timeout)
	delivered := false

	for p.now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}

		snap := p.read(ctx, corr)
		if snap.queryFailed() {
			// availability problem, not a message-state signal
			log.Printf("[receipt] polling stopped for %s: %s", messageID, snap.Notes)
			return
		}

		if snap.Delivered && !delivered {
			delivered = true
			onStatus(message.StatusDelivered, deliveredPayload(corr, snap))
		}
		if snap.Received {
			if !delivered {
				onStatus(message.StatusDelivered, deliveredPayload(corr, snap))
			}
			onStatus(message.StatusReceived, receivedPayload(corr, snap))
			return
		}

		p.sleep(interval)
	}

	log.Printf("[receipt] polling timeout for %s", messageID)
}

func (s Snapshot) queryFailed() bool {
	return strings.HasPrefix(s.Notes, NoteQueryFailed)
}

func basePayload(corr Correlation) map[string]any {
	payload := map[string]any{"method": corr.Method}
	if corr.RowID != nil {
		payload["messageRowId"] = *corr.RowID
	}
	if corr.GUID != nil {
		payload["chatGuid"] = *corr.GUID
	}
	return payload
}

func deliveredPayload(corr Correlation, snap Snapshot) map[string]any {
	payload := basePayload(corr)
	if snap.DeliveredAt != nil {
		payload["deliveredAt"] = snap.DeliveredAt.Format(time.RFC3339)
	}
	return payload
}

func receivedPayload(corr Correlation, snap Snapshot) map[string]any {
	payload := deliveredPayload(corr, snap)
	if snap.ReceivedAt != nil {
		payload["receivedAt"] = snap.ReceivedAt.Format(time.RFC3339)
	}
	return payload
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Poller) sleep(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (p *Poller) read(ctx context.Context, corr Correlation) Snapshot {
	if p.Read != nil {
		return p.Read(ctx, corr)
	}
	return p.DB.ReadSnapshot(ctx, corr)
}
