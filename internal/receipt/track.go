package receipt

import (
	"context"
	"log"
	"time"
)

// StatusReporter posts an observed transition back to the owning system.
type StatusReporter interface {
	Report(ctx context.Context, messageID, status string, payload map[string]any) (bool, error)
}

// Tracker runs correlation and receipt polling for one sent message as a
// fire-and-forget task, so a slow poll never blocks the dispatch loop.
type Tracker struct {
	Correlator *Correlator
	Poller     *Poller
	Reporter   StatusReporter
}

func (t *Tracker) Track(ctx context.Context, messageID, handle, body string, sentAt time.Time) {
	go t.run(ctx, messageID, handle, body, sentAt)
}

func (t *Tracker) run(ctx context.Context, messageID, handle, body string, sentAt time.Time) {
	corr := t.Correlator.CorrelateWithRetry(ctx, handle, body, sentAt)
	if !corr.Matched() {
		log.Printf("[receipt] no correlation for %s (%s)", messageID, corr.Notes)
		return
	}
	log.Printf("[receipt] correlated %s (%s)", messageID, corr.Confidence)

	t.Poller.Poll(ctx, messageID, corr, func(status string, payload map[string]any) {
		ok, err := t.Reporter.Report(ctx, messageID, status, payload)
		if err != nil || !ok {
			log.Printf("[receipt] %s report for %s dropped (ok=%v err=%v)", status, messageID, ok, err)
		}
	})
}
