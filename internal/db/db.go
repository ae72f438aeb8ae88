package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"memos/internal/auth"
	"memos/internal/jobs"
	"memos/internal/memo"
	"memos/internal/user"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

// Models lists every persisted type; tests migrate the same set onto
// their own database.
func Models() []any {
	return []any{
		&user.User{},
		&user.Delegate{},
		&user.Subscription{},
		&memo.Memo{},
		&memo.Signature{},
		&memo.Reference{},
		&memo.History{},
		&memo.File{},
		&jobs.Job{},
	}
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return err
	}

	stmts := []string{
		// one row per version, one ledger entry per signer
		`create unique index if not exists uq_memos_owner_number_version on memos(owner_id, number, version);`,
		`create unique index if not exists uq_signatures_memo_signer on signatures(memo_id, signer_id);`,
		`create unique index if not exists uq_delegates_owner_delegate on delegates(owner_id, delegate_id);`,
		`create unique index if not exists uq_subscriptions_pair on subscriptions(subscriber_id, subscription_id);`,
		`create index if not exists idx_memos_state_action on memos(state, action_date desc);`,
		`create index if not exists idx_history_memo_created on histories(memo_id, created_at);`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}

// SeedAdmin provisions the configured admin account once.
func SeedAdmin(gdb *gorm.DB, username, email, password string) error {
	if username == "" {
		return nil
	}
	var n int64
	if err := gdb.Model(&user.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u := user.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Admin:        true,
	}
	return gdb.Create(&u).Error
}
