package message

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	StatusQueued    = "QUEUED"
	StatusSending   = "SENDING"
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusReceived  = "RECEIVED"
	StatusFailed    = "FAILED"
	StatusCanceled  = "CANCELED"
)

// statusRank orders statuses for forward-progress checks. FAILED and CANCELED
// rank past RECEIVED so nothing applies after them.
var statusRank = map[string]int{
	StatusQueued:    0,
	StatusSending:   1,
	StatusSent:      2,
	StatusDelivered: 3,
	StatusReceived:  4,
	StatusFailed:    5,
	StatusCanceled:  5,
}

// ShouldApplyStatus decides whether an incoming gateway report may replace the
// current status. Terminal statuses are never overwritten, a FAILED report is
// rejected once the message is known delivered or read, and everything else
// must be forward progress.
func ShouldApplyStatus(current, incoming string) bool {
	if current == StatusFailed || current == StatusCanceled {
		return false
	}
	if incoming == StatusFailed {
		return current != StatusDelivered && current != StatusReceived
	}
	switch incoming {
	case StatusSent, StatusDelivered, StatusReceived:
		return statusRank[incoming] > statusRank[current]
	}
	return false
}

// Meta is a jsonb column holding the receipt correlation map. Reports merge
// into it additively over time.
type Meta map[string]any

func (m Meta) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Meta) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported meta column type %T", value)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

var ErrNotFound = errors.New("message not found")

type Message struct {
	ID     string `gorm:"type:varchar(36);primaryKey"`
	UserID string `gorm:"type:varchar(36);index;not null"`

	ToHandle string `gorm:"type:varchar(255);not null"`
	Body     string `gorm:"type:text;not null"`

	ScheduledForUTC time.Time `gorm:"column:scheduled_for_utc;index;not null"`
	Timezone        string    `gorm:"type:varchar(255);not null"` // display only

	Status       string `gorm:"index;not null;default:'QUEUED'"`
	AttemptCount int    `gorm:"not null;default:0"`
	LastError    *string

	LockedAt *time.Time `gorm:"type:timestamptz"`
	LockedBy *string    `gorm:"type:text"`

	ReceiptCorrelation Meta `gorm:"type:jsonb"`

	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
	CanceledAt  *time.Time
	DeliveredAt *time.Time
	ReceivedAt  *time.Time
}

type User struct {
	ID       string `gorm:"type:varchar(36);primaryKey"`
	PaidUser bool   `gorm:"not null;default:false"`
}

type RateLimit struct {
	UserID          string `gorm:"type:varchar(36);primaryKey"`
	LastSentAt      *time.Time
	WindowStartedAt *time.Time
	SentInWindow    int `gorm:"not null;default:0"`
}

func (RateLimit) TableName() string { return "user_rate_limits" }
