package db

import (
	"fmt"

	"relay/internal/message"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&message.Message{},
		&message.User{},
		&message.RateLimit{},
	); err != nil {
		return err
	}

	// Eligibility scan and the dashboard's per-user listing
	stmts := []string{
		`create index if not exists idx_messages_eligible on messages(status, scheduled_for_utc);`,
		`create index if not exists idx_messages_user_created on messages(user_id, created_at desc);`,
		`create index if not exists idx_messages_lock on messages(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
