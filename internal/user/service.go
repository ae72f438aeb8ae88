package user

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("user not found")

// splitRe matches the separators accepted in every roster-style field
// (signers, references, distribution, delegates).
var splitRe = regexp.MustCompile(`[\s,;:]+`)

// SplitNames splits a raw roster string into its non-empty tokens.
func SplitNames(raw string) []string {
	var out []string
	for _, tok := range splitRe.Split(raw, -1) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

type Service struct {
	DB *gorm.DB
}

func (s *Service) Find(ctx context.Context, username string) (*User, error) {
	return Find(s.DB.WithContext(ctx), username)
}

// Find resolves a username on the given handle so state-machine code
// can reuse it inside a transaction.
func Find(db *gorm.DB, username string) (*User, error) {
	var u User
	if err := db.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// IsDelegate reports whether delegate may act on owner's behalf.
// Three variants, checked in order: self, admin override, explicit
// edge. No transitive closure; each call re-evaluates.
func IsDelegate(db *gorm.DB, owner, delegate *User) (bool, error) {
	if owner == nil || delegate == nil {
		return false, nil
	}
	if owner.Username == delegate.Username {
		return true, nil
	}
	if delegate.Admin {
		return true, nil
	}
	var n int64
	err := db.Model(&Delegate{}).
		Where("owner_id = ? AND delegate_id = ?", owner.Username, delegate.Username).
		Count(&n).Error
	return n > 0, err
}

func (s *Service) IsDelegate(ctx context.Context, owner, delegate *User) (bool, error) {
	return IsDelegate(s.DB.WithContext(ctx), owner, delegate)
}

// Roster is the result of parsing a raw name list: resolvable users in
// first-seen order, plus the tokens that did not resolve.
type Roster struct {
	Users   []*User
	Invalid []string
}

// ParseRoster resolves a raw name list. Duplicates collapse to the
// first occurrence; unresolvable names are reported, not fatal.
func ParseRoster(db *gorm.DB, raw string) (*Roster, error) {
	r := &Roster{}
	seen := map[string]bool{}
	for _, name := range SplitNames(raw) {
		if seen[name] {
			continue
		}
		seen[name] = true
		u, err := Find(db, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				r.Invalid = append(r.Invalid, name)
				continue
			}
			return nil, err
		}
		r.Users = append(r.Users, u)
	}
	return r, nil
}

// SetDelegates replaces owner's entire outgoing delegate set with the
// resolvable names in raw. Returns the dropped tokens.
func (s *Service) SetDelegates(ctx context.Context, owner *User, raw string) ([]string, error) {
	var invalid []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", owner.Username).Delete(&Delegate{}).Error; err != nil {
			return err
		}
		roster, err := ParseRoster(tx, raw)
		if err != nil {
			return err
		}
		invalid = roster.Invalid
		for _, d := range roster.Users {
			if err := tx.Create(&Delegate{OwnerID: owner.Username, DelegateID: d.Username}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return invalid, err
}

// ListDelegates returns the users owner has authorized.
func (s *Service) ListDelegates(ctx context.Context, owner *User) ([]*User, error) {
	return s.edgeUsers(ctx, "owner_id = ?", owner.Username, func(d Delegate) string { return d.DelegateID })
}

// ListDelegators returns the owners that have authorized delegate.
func (s *Service) ListDelegators(ctx context.Context, delegate *User) ([]*User, error) {
	return s.edgeUsers(ctx, "delegate_id = ?", delegate.Username, func(d Delegate) string { return d.OwnerID })
}

func (s *Service) edgeUsers(ctx context.Context, cond, arg string, pick func(Delegate) string) ([]*User, error) {
	var edges []Delegate
	if err := s.DB.WithContext(ctx).Where(cond, arg).Find(&edges).Error; err != nil {
		return nil, err
	}
	out := make([]*User, 0, len(edges))
	for _, e := range edges {
		u, err := Find(s.DB.WithContext(ctx), pick(e))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// SetSubscriptions replaces the set of owners the subscriber follows.
func (s *Service) SetSubscriptions(ctx context.Context, subscriber *User, raw string) ([]string, error) {
	var invalid []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subscriber_id = ?", subscriber.Username).Delete(&Subscription{}).Error; err != nil {
			return err
		}
		roster, err := ParseRoster(tx, raw)
		if err != nil {
			return err
		}
		invalid = roster.Invalid
		for _, u := range roster.Users {
			sub := Subscription{SubscriberID: subscriber.Username, SubscriptionID: u.Username}
			if err := tx.Create(&sub).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return invalid, err
}

// Subscriptions returns the usernames subscriber follows.
func (s *Service) Subscriptions(ctx context.Context, subscriber *User) ([]string, error) {
	var subs []Subscription
	if err := s.DB.WithContext(ctx).Where("subscriber_id = ?", subscriber.Username).Find(&subs).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub.SubscriptionID)
	}
	return out, nil
}

// SubscriberEmails returns the email addresses of everyone following
// the given owner. Used when a memo goes active.
func SubscriberEmails(db *gorm.DB, owner string) ([]string, error) {
	var subs []Subscription
	if err := db.Where("subscription_id = ?", owner).Find(&subs).Error; err != nil {
		return nil, err
	}
	var out []string
	for _, sub := range subs {
		u, err := Find(db, sub.SubscriberID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, u.Email)
	}
	return out, nil
}

// ResolveEmails maps a distribution-style list to email addresses.
// Tokens containing '@' are taken as literal addresses; everything
// else must resolve to a username. Unresolvable tokens are dropped.
func ResolveEmails(db *gorm.DB, raw string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, tok := range SplitNames(raw) {
		var email string
		if strings.Contains(tok, "@") {
			email = tok
		} else {
			u, err := Find(db, tok)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, err
			}
			email = u.Email
		}
		if email != "" && !seen[email] {
			seen[email] = true
			out = append(out, email)
		}
	}
	return out, nil
}
