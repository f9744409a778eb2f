package status

import (
	"context"
	"errors"
	"time"

	"relay/internal/message"

	"gorm.io/gorm"
)

// chargedKey marks, inside the correlation map, that the send behind a SENT
// report was already charged against the rate limit.
const chargedKey = "rateLimitCharged"

// Report is a validated gateway status callback.
type Report struct {
	MessageID string
	Status    string
	Payload   map[string]any
}

// Reconciler applies gateway status reports to the message store.
type Reconciler struct {
	DB *gorm.DB

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Apply applies one status report as a single atomic unit: the status change
// when it represents forward progress, the additive payload merge always, and
// the rate-limit charge on the first accepted SENT. Returns whether the
// status itself was applied; a rejected transition is not an error.
func (r *Reconciler) Apply(ctx context.Context, rep Report) (bool, error) {
	now := r.now()
	applied := false

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m message.Message
		if err := tx.First(&m, "id = ?", rep.MessageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return message.ErrNotFound
			}
			return err
		}

		apply := message.ShouldApplyStatus(m.Status, rep.Status)
		merged := mergePayload(m.ReceiptCorrelation, rep.Payload)

		updates := map[string]any{}
		charge := false

		if apply {
			updates["status"] = rep.Status
			switch rep.Status {
			case message.StatusDelivered:
				updates["delivered_at"] = now
			case message.StatusReceived:
				updates["received_at"] = now
			case message.StatusFailed:
				if errMsg, ok := rep.Payload["error"].(string); ok {
					updates["last_error"] = errMsg
				}
			case message.StatusSent:
				if merged == nil {
					merged = message.Meta{}
				}
				if alreadyCharged, _ := merged[chargedKey].(bool); !alreadyCharged {
					merged[chargedKey] = true
					charge = true
				}
			}
		}

		if len(rep.Payload) > 0 || charge {
			updates["receipt_correlation"] = merged
		}
		if len(updates) == 0 {
			// rejected transition with no telemetry: nothing to write
			return nil
		}
		updates["updated_at"] = now

		if err := tx.Model(&message.Message{}).Where("id = ?", m.ID).Updates(updates).Error; err != nil {
			return err
		}
		if charge {
			if err := message.ChargeSend(tx, m.UserID, now); err != nil {
				return err
			}
		}
		applied = apply
		return nil
	})

	return applied, err
}

// mergePayload merges the report payload over the stored correlation map,
// later keys overwriting earlier ones. Telemetry accumulates regardless of
// whether the status transition was accepted.
func mergePayload(existing message.Meta, payload map[string]any) message.Meta {
	if len(payload) == 0 {
		return existing
	}
	merged := message.Meta{}
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range payload {
		merged[k] = v
	}
	return merged
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}
