package memo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

// recordHistory appends one audit event. History is append-only; the
// single exception is Cancel, which erases a draft's trail along with
// the draft itself.
func recordHistory(tx *gorm.DB, m *Memo, activity Activity, actor string, now time.Time) error {
	ev := History{
		MemoID:    m.ID,
		OwnerID:   m.OwnerID,
		Number:    m.Number,
		Version:   m.Version,
		Activity:  activity,
		UserID:    actor,
		CreatedAt: now,
	}
	return tx.Create(&ev).Error
}

// HistoryFor returns a memo's audit trail, oldest first.
func (s *Service) HistoryFor(ctx context.Context, owner string, number int, version string) ([]History, error) {
	var events []History
	err := s.DB.WithContext(ctx).
		Where("owner_id = ? AND number = ? AND version = ?", owner, number, strings.ToUpper(version)).
		Order("created_at asc, id asc").
		Find(&events).Error
	return events, err
}
