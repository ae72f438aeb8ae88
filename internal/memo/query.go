package memo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"memos/internal/user"
)

// Read-only, paginated views over the memo collection. Pages are
// 1-based; PageSize <= 0 falls back to the default.

const DefaultPageSize = 10

type Page struct {
	Memos    []Memo
	Total    int64
	Page     int
	PageSize int
}

func paginate(q *gorm.DB, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := &Page{Page: page, PageSize: pageSize}
	if err := q.Session(&gorm.Session{}).Count(&p.Total).Error; err != nil {
		return nil, err
	}
	err := q.Session(&gorm.Session{}).Order("action_date desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&p.Memos).Error
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListByOwner applies the most specific filter given: exact version,
// all versions of a number (any state), an owner's Active memos, or
// every Active memo in the system.
func (s *Service) ListByOwner(ctx context.Context, owner string, number *int, version *string, page, pageSize int) (*Page, error) {
	q := s.DB.WithContext(ctx).Model(&Memo{})
	switch {
	case owner != "" && number != nil && version != nil:
		q = q.Where("owner_id = ? AND number = ? AND version = ?", owner, *number, strings.ToUpper(*version))
	case owner != "" && number != nil:
		q = q.Where("owner_id = ? AND number = ?", owner, *number)
	case owner != "":
		q = q.Where("owner_id = ? AND state = ?", owner, StateActive)
	default:
		q = q.Where("state = ?", StateActive)
	}
	return paginate(q, page, pageSize)
}

// Inbox lists Signoff memos awaiting a signature the user can
// provide: their own unsigned entries plus those of any owner who
// delegated to them.
func (s *Service) Inbox(ctx context.Context, username string, page, pageSize int) (*Page, error) {
	db := s.DB.WithContext(ctx)

	names := []string{username}
	var edges []user.Delegate
	if err := db.Where("delegate_id = ?", username).Find(&edges).Error; err != nil {
		return nil, err
	}
	for _, e := range edges {
		names = append(names, e.OwnerID)
	}

	pending := db.Model(&Signature{}).
		Select("memo_id").
		Where("signer_id IN ? AND signed = ?", names, false)

	q := db.Model(&Memo{}).
		Where("state = ?", StateSignoff).
		Where("id IN (?)", pending)
	return paginate(q, page, pageSize)
}

// Drafts lists the Draft memos owned by the given user.
func (s *Service) Drafts(ctx context.Context, owner string, page, pageSize int) (*Page, error) {
	q := s.DB.WithContext(ctx).Model(&Memo{}).
		Where("owner_id = ? AND state = ?", owner, StateDraft)
	return paginate(q, page, pageSize)
}

// SearchByTitle is a case-insensitive substring match on titles.
func (s *Service) SearchByTitle(ctx context.Context, title string, page, pageSize int) (*Page, error) {
	q := s.DB.WithContext(ctx).Model(&Memo{}).
		Where("lower(title) LIKE ?", "%"+strings.ToLower(title)+"%")
	return paginate(q, page, pageSize)
}

// SearchByKeyword is a case-insensitive substring match on keywords.
func (s *Service) SearchByKeyword(ctx context.Context, keyword string, page, pageSize int) (*Page, error) {
	q := s.DB.WithContext(ctx).Model(&Memo{}).
		Where("lower(keywords) LIKE ?", "%"+strings.ToLower(keyword)+"%")
	return paginate(q, page, pageSize)
}
