package dispatch

import (
	"context"
	"errors"
	"time"

	"relay/internal/message"
	"relay/internal/ratelimit"

	"gorm.io/gorm"
)

// Store is the gorm-backed job store adapter used by the dispatcher.
type Store struct {
	DB *gorm.DB
}

// SelectEligible fetches up to limit due, uncanceled QUEUED messages ordered
// by intended delivery time then creation time.
func (s *Store) SelectEligible(ctx context.Context, now time.Time, limit int) ([]message.Message, error) {
	var rows []message.Message
	err := s.DB.WithContext(ctx).
		Where("status = ? AND scheduled_for_utc <= ? AND canceled_at IS NULL", message.StatusQueued, now).
		Order("scheduled_for_utc asc, created_at asc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// TryLock claims a QUEUED message for sending. The status guard makes this a
// compare-and-swap: if a concurrent worker already moved the row off QUEUED,
// zero rows are affected and the claim fails.
func (s *Store) TryLock(ctx context.Context, id, workerID string, now time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&message.Message{}).
		Where("id = ? AND status = ?", id, message.StatusQueued).
		Updates(map[string]any{
			"status":     message.StatusSending,
			"locked_at":  now,
			"locked_by":  workerID,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkSent transitions SENDING to SENT, clears the lock and charges the
// owner's rate limit, all in one transaction. The rateLimitCharged marker in
// the correlation map keeps a later SENT report from charging again.
func (s *Store) MarkSent(ctx context.Context, m *message.Message, now time.Time) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		merged := message.Meta{}
		for k, v := range m.ReceiptCorrelation {
			merged[k] = v
		}
		merged["rateLimitCharged"] = true

		if err := tx.Model(&message.Message{}).
			Where("id = ?", m.ID).
			Updates(map[string]any{
				"status":              message.StatusSent,
				"locked_at":           nil,
				"locked_by":           nil,
				"receipt_correlation": merged,
				"updated_at":          now,
			}).Error; err != nil {
			return err
		}
		return message.ChargeSend(tx, m.UserID, now)
	})
}

// RetryLater requeues a failed send for a later attempt.
func (s *Store) RetryLater(ctx context.Context, id string, attempts int, runAt time.Time, errMsg string, now time.Time) error {
	return s.DB.WithContext(ctx).Model(&message.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            message.StatusQueued,
			"attempt_count":     attempts,
			"scheduled_for_utc": runAt,
			"locked_at":         nil,
			"locked_by":         nil,
			"last_error":        errMsg,
			"updated_at":        now,
		}).Error
}

// MarkFailed makes the message terminally FAILED after attempts ran out.
func (s *Store) MarkFailed(ctx context.Context, id string, attempts int, errMsg string, now time.Time) error {
	return s.DB.WithContext(ctx).Model(&message.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        message.StatusFailed,
			"attempt_count": attempts,
			"locked_at":     nil,
			"locked_by":     nil,
			"last_error":    errMsg,
			"updated_at":    now,
		}).Error
}

// UserLimit loads the owner's tier and current rate-limit counters. Missing
// rows read as free tier with an empty window.
func (s *Store) UserLimit(ctx context.Context, userID string) (bool, ratelimit.State, error) {
	paid := false
	var u message.User
	if err := s.DB.WithContext(ctx).First(&u, "id = ?", userID).Error; err == nil {
		paid = u.PaidUser
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ratelimit.State{}, err
	}

	var row message.RateLimit
	if err := s.DB.WithContext(ctx).First(&row, "user_id = ?", userID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ratelimit.State{}, err
		}
		return paid, ratelimit.State{}, nil
	}
	return paid, ratelimit.State{
		LastSentAt:      row.LastSentAt,
		WindowStartedAt: row.WindowStartedAt,
		SentInWindow:    row.SentInWindow,
	}, nil
}
