package jobs

import "time"

const TypeEmailDispatch = "EMAIL_DISPATCH"

// Job is one outbox entry. Lifecycle transitions enqueue these inside
// their own transaction so a rolled-back transition never mails anyone.
type Job struct {
	ID uint64 `gorm:"primaryKey"`

	Type    string `gorm:"not null"` // EMAIL_DISPATCH
	Payload []byte `gorm:"not null"`

	RunAt  time.Time `gorm:"index;not null"`
	Status string    `gorm:"index;not null;default:'PENDING'"` // PENDING/RUNNING/DONE/FAILED

	Attempts    int `gorm:"not null;default:0"`
	MaxAttempts int `gorm:"not null;default:8"`

	LockedBy *string
	LockedAt *time.Time

	LastError *string

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
