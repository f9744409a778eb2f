package dispatch

import (
	"context"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"relay/internal/message"
	"relay/internal/ratelimit"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 10
	defaultMaxAttempts  = 5
	defaultBaseBackoff  = 30
	defaultMaxBackoff   = 1800

	// defaultPerTick keeps the reference one-job-per-cycle pacing.
	defaultPerTick = 1
)

// JobStore is the slice of the message store the dispatcher needs.
type JobStore interface {
	SelectEligible(ctx context.Context, now time.Time, limit int) ([]message.Message, error)
	TryLock(ctx context.Context, id, workerID string, now time.Time) (bool, error)
	MarkSent(ctx context.Context, m *message.Message, now time.Time) error
	RetryLater(ctx context.Context, id string, attempts int, runAt time.Time, errMsg string, now time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, errMsg string, now time.Time) error
	UserLimit(ctx context.Context, userID string) (bool, ratelimit.State, error)
}

// Sender performs the external send. Each call is at most one delivery.
type Sender interface {
	Send(ctx context.Context, handle, body string) error
}

// Reporter posts a status transition back to the owning system.
type Reporter interface {
	Report(ctx context.Context, messageID, status string, payload map[string]any) (bool, error)
}

// ReceiptTracker follows a sent message through correlation and delivery
// polling, independent of later dispatch cycles.
type ReceiptTracker interface {
	Track(ctx context.Context, messageID, handle, body string, sentAt time.Time)
}

// Dispatcher runs the timer-driven send loop.
type Dispatcher struct {
	ID       string
	Store    JobStore
	Sender   Sender
	Reporter Reporter
	Receipts ReceiptTracker

	Limits             ratelimit.Config
	PollInterval       time.Duration
	BatchSize          int
	PerTick            int
	MaxAttempts        int
	BaseBackoffSeconds int
	MaxBackoffSeconds  int

	// Now overrides the clock, for tests.
	Now func() time.Time

	running atomic.Bool
}

func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one dispatch cycle. A tick that fires while the previous cycle is
// still in flight is a no-op.
func (d *Dispatcher) Tick(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	defer d.running.Store(false)

	if err := d.runOnce(ctx); err != nil {
		log.Printf("[worker] cycle error: %v", err)
	}
}

// runOnce fetches the eligible batch and processes up to PerTick candidates.
// Per-candidate send errors become retry/FAILED transitions; a store error is
// fatal for the cycle only and surfaces on the next tick.
func (d *Dispatcher) runOnce(ctx context.Context) error {
	batch, err := d.Store.SelectEligible(ctx, d.now(), d.batchSize())
	if err != nil {
		return err
	}
	SortFIFO(batch)

	processed := 0
	for i := range batch {
		if processed >= d.perTick() {
			break
		}
		job := batch[i]

		paid, state, err := d.Store.UserLimit(ctx, job.UserID)
		if err != nil {
			return err
		}
		decision := ratelimit.Evaluate(d.now(), state, paid, d.Limits)
		if !decision.Allowed {
			log.Printf("[worker] message %s deferred, user %s rate limited (%s)", job.ID, job.UserID, decision.Reason)
			continue
		}

		locked, err := d.Store.TryLock(ctx, job.ID, d.ID, d.now())
		if err != nil {
			return err
		}
		if !locked {
			// another worker won the race
			continue
		}

		d.process(ctx, job)
		processed++
	}
	return nil
}

func (d *Dispatcher) process(ctx context.Context, job message.Message) {
	log.Printf("[worker] sending %s to %s", job.ID, job.ToHandle)

	sentAt := d.now()
	if err := d.Sender.Send(ctx, job.ToHandle, job.Body); err != nil {
		d.fail(ctx, job, err)
		return
	}

	if err := d.Store.MarkSent(ctx, &job, d.now()); err != nil {
		log.Printf("[worker] mark sent %s: %v", job.ID, err)
		return
	}
	if d.Receipts != nil {
		d.Receipts.Track(ctx, job.ID, job.ToHandle, job.Body, sentAt)
	}
	d.report(ctx, job.ID, message.StatusSent, map[string]any{
		"method": "applescript",
		"sentAt": sentAt.UTC().Format(time.RFC3339),
	})
}

func (d *Dispatcher) fail(ctx context.Context, job message.Message, sendErr error) {
	attempts := job.AttemptCount + 1
	if attempts < d.maxAttempts() {
		delay := BackoffSeconds(attempts, d.baseBackoff(), d.maxBackoff())
		runAt := d.now().Add(time.Duration(delay) * time.Second)
		log.Printf("[worker] send failed for %s (attempt %d), retrying in %ds: %v", job.ID, attempts, delay, sendErr)
		if err := d.Store.RetryLater(ctx, job.ID, attempts, runAt, sendErr.Error(), d.now()); err != nil {
			log.Printf("[worker] requeue %s: %v", job.ID, err)
		}
		return
	}

	log.Printf("[worker] send failed for %s, attempts exhausted: %v", job.ID, sendErr)
	if err := d.Store.MarkFailed(ctx, job.ID, attempts, sendErr.Error(), d.now()); err != nil {
		log.Printf("[worker] mark failed %s: %v", job.ID, err)
	}
	d.report(ctx, job.ID, message.StatusFailed, map[string]any{
		"method": "applescript",
		"error":  sendErr.Error(),
	})
}

// report drops failed reports: receipts are best-effort telemetry, the store
// remains the source of truth.
func (d *Dispatcher) report(ctx context.Context, messageID, status string, payload map[string]any) {
	if d.Reporter == nil {
		return
	}
	ok, err := d.Reporter.Report(ctx, messageID, status, payload)
	if err != nil || !ok {
		log.Printf("[worker] %s report for %s dropped (ok=%v err=%v)", status, messageID, ok, err)
	}
}

// SortFIFO orders messages by intended delivery time, creation time breaking
// ties. The store query already orders this way, but the cycle must not
// depend on fetch ordering.
func SortFIFO(rows []message.Message) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ScheduledForUTC.Equal(rows[j].ScheduledForUTC) {
			return rows[i].ScheduledForUTC.Before(rows[j].ScheduledForUTC)
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return defaultBatchSize
}

func (d *Dispatcher) perTick() int {
	if d.PerTick > 0 {
		return d.PerTick
	}
	return defaultPerTick
}

func (d *Dispatcher) maxAttempts() int {
	if d.MaxAttempts > 0 {
		return d.MaxAttempts
	}
	return defaultMaxAttempts
}

func (d *Dispatcher) baseBackoff() int {
	if d.BaseBackoffSeconds > 0 {
		return d.BaseBackoffSeconds
	}
	return defaultBaseBackoff
}

func (d *Dispatcher) maxBackoff() int {
	if d.MaxBackoffSeconds > 0 {
		return d.MaxBackoffSeconds
	}
	return defaultMaxBackoff
}
