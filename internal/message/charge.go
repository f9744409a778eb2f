package message

import (
	"errors"
	"time"

	"relay/internal/ratelimit"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChargeSend records one send against the user's rate-limit window. It must
// run inside the same transaction as the status write that triggered it.
func ChargeSend(tx *gorm.DB, userID string, now time.Time) error {
	var row RateLimit
	err := tx.Where("user_id = ?", userID).First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	next := ratelimit.ApplySend(now, ratelimit.State{
		LastSentAt:      row.LastSentAt,
		WindowStartedAt: row.WindowStartedAt,
		SentInWindow:    row.SentInWindow,
	})

	row.UserID = userID
	row.LastSentAt = next.LastSentAt
	row.WindowStartedAt = next.WindowStartedAt
	row.SentInWindow = next.SentInWindow

	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}
