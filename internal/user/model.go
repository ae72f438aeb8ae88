package user

import "time"

// User is keyed by username. Memo numbers are scoped per owner, so the
// username shows up as a foreign key all over the memo tables.
type User struct {
	Username     string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Admin        bool      `gorm:"not null;default:false"`
	ReadAll      bool      `gorm:"not null;default:false"`
	PageSize     int       `gorm:"not null;default:10"`
	CreatedAt    time.Time `gorm:"not null"`
}

// Delegate is a directed edge: DelegateID may act on behalf of OwnerID.
// Self and admin delegation are implicit and never stored as rows.
type Delegate struct {
	ID         uint64 `gorm:"primaryKey"`
	OwnerID    string `gorm:"index:idx_delegates_owner;not null"`
	DelegateID string `gorm:"index:idx_delegates_delegate;not null"`
}

// Subscription means SubscriberID wants to hear about SubscriptionID's
// newly activated memos.
type Subscription struct {
	ID             uint64 `gorm:"primaryKey"`
	SubscriberID   string `gorm:"index;not null"`
	SubscriptionID string `gorm:"index;not null"`
}
