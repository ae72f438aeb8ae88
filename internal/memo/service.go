package memo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memos/internal/jobs"
	"memos/internal/notify"
	"memos/internal/user"
)

var ErrNotFound = errors.New("memo not found")
var ErrNotAllowed = errors.New("operation not allowed")

// Service is the memo lifecycle state machine. Every mutating
// operation runs as one transaction covering the memo row, its
// ledger, references, history and the notification outbox; the JSON
// mirror is refreshed from committed state afterwards.
type Service struct {
	DB        *gorm.DB
	Files     *FileStore
	Snapshots *SnapshotStore

	// BaseURL, when set, is appended to notification bodies as a link
	// to the memo.
	BaseURL string
}

func lockMemo(tx *gorm.DB, owner string, number int, version string) (*Memo, error) {
	q := forUpdate(tx)
	var m Memo
	err := q.Where("owner_id = ? AND number = ? AND version = ?",
		owner, number, strings.ToUpper(version)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// forUpdate adds a row lock on engines that speak FOR UPDATE. SQLite
// (tests) serializes writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// latestVersion returns the highest version of (owner, number), or nil.
// Version strings are bijective base-26, so longer always outranks
// lexically-larger.
func latestVersion(tx *gorm.DB, owner string, number int) (*Memo, error) {
	var m Memo
	err := forUpdate(tx).Where("owner_id = ? AND number = ?", owner, number).
		Order("length(version) desc, version desc").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func nextNumber(tx *gorm.DB, owner string) (int, error) {
	var m Memo
	err := tx.Where("owner_id = ?", owner).Order("number desc").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return m.Number + 1, nil
}

////////////////////////////////////////////////////////////////////////
// Permission predicates. Pure reads, evaluated before any mutation.
////////////////////////////////////////////////////////////////////////

func canRevise(tx *gorm.DB, m *Memo, delegate *user.User) (bool, error) {
	if delegate == nil {
		return false, nil
	}
	if m.State != StateActive && m.State != StateObsolete {
		return false, nil
	}
	return ownerDelegate(tx, m, delegate)
}

func canSign(tx *gorm.DB, m *Memo, signer, delegate *user.User) (bool, error) {
	st, ok, err := signoffRole(tx, m, signer, delegate)
	if err != nil || !ok {
		return false, err
	}
	return st.IsSigner && !st.HasSigned, nil
}

func canUnsign(tx *gorm.DB, m *Memo, signer, delegate *user.User) (bool, error) {
	st, ok, err := signoffRole(tx, m, signer, delegate)
	if err != nil || !ok {
		return false, err
	}
	return st.IsSigner && st.HasSigned, nil
}

// canReject: any signer may reject, signed or not.
func canReject(tx *gorm.DB, m *Memo, signer, delegate *user.User) (bool, error) {
	st, ok, err := signoffRole(tx, m, signer, delegate)
	if err != nil || !ok {
		return false, err
	}
	return st.IsSigner, nil
}

func canObsolete(tx *gorm.DB, m *Memo, delegate *user.User) (bool, error) {
	if delegate == nil || m.State != StateActive {
		return false, nil
	}
	return ownerDelegate(tx, m, delegate)
}

func canCancel(tx *gorm.DB, m *Memo, delegate *user.User) (bool, error) {
	if delegate == nil || m.State != StateDraft {
		return false, nil
	}
	return ownerDelegate(tx, m, delegate)
}

func ownerDelegate(tx *gorm.DB, m *Memo, delegate *user.User) (bool, error) {
	owner, err := user.Find(tx, m.OwnerID)
	if err != nil {
		return false, err
	}
	return user.IsDelegate(tx, owner, delegate)
}

// signoffRole bundles the checks shared by sign/unsign/reject: memo
// must be in Signoff and delegate must act for signer.
func signoffRole(tx *gorm.DB, m *Memo, signer, delegate *user.User) (SignerStatus, bool, error) {
	if signer == nil || delegate == nil || m.State != StateSignoff {
		return SignerStatus{}, false, nil
	}
	ok, err := user.IsDelegate(tx, signer, delegate)
	if err != nil || !ok {
		return SignerStatus{}, false, err
	}
	st, err := signerStatus(tx, m.ID, signer.Username)
	if err != nil {
		return SignerStatus{}, false, err
	}
	return st, true, nil
}

////////////////////////////////////////////////////////////////////////
// Lifecycle operations
////////////////////////////////////////////////////////////////////////

// CreateOrRevise starts a new memo or the next version of an existing
// one. With no number (or an unused one) it allocates the owner's next
// number at version A. If the number's latest version is a Draft, that
// draft is returned unchanged (resume-edit). A version in Signoff
// blocks revision; an Active or Obsolete latest version gets a new
// version letter with title, keywords, distribution, confidentiality,
// signers and references carried over.
func (s *Service) CreateOrRevise(ctx context.Context, ownerName, delegateName string, number *int) (*Memo, error) {
	var out *Memo
	var touched []uint64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := user.Find(tx, ownerName)
		if err != nil {
			return err
		}
		delegate, err := user.Find(tx, delegateName)
		if err != nil {
			return err
		}
		ok, err := user.IsDelegate(tx, owner, delegate)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAllowed
		}

		now := time.Now().UTC()

		var latest *Memo
		if number != nil {
			if latest, err = latestVersion(tx, owner.Username, *number); err != nil {
				return err
			}
		}

		if latest == nil {
			n, err := nextNumber(tx, owner.Username)
			if err != nil {
				return err
			}
			m := &Memo{
				OwnerID:    owner.Username,
				Number:     n,
				Version:    "A",
				State:      StateDraft,
				ActionDate: now,
				CreateDate: &now,
			}
			if err := tx.Create(m).Error; err != nil {
				return err
			}
			if err := recordHistory(tx, m, ActivityCreate, delegate.Username, now); err != nil {
				return err
			}
			log.Printf("created memo %s", m)
			out = m
			touched = append(touched, m.ID)
			return nil
		}

		if latest.State == StateDraft {
			out = latest
			return nil
		}
		ok, err = canRevise(tx, latest, delegate)
		if err != nil {
			return err
		}
		if !ok {
			// A version in Signoff keeps the number locked.
			return ErrNotAllowed
		}

		m := &Memo{
			OwnerID:      latest.OwnerID,
			Number:       latest.Number,
			Version:      NextVersion(latest.Version),
			Title:        latest.Title,
			Keywords:     latest.Keywords,
			Distribution: latest.Distribution,
			Confidential: latest.Confidential,
			State:        StateDraft,
			ActionDate:   now,
			CreateDate:   &now,
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		// Signers and references need the new row's id before they can
		// be carried over.
		if _, err := setSigners(tx, m, latest.SignerNames); err != nil {
			return err
		}
		prior, err := forwardRefs(tx, latest.ID)
		if err != nil {
			return err
		}
		if _, err := setReferences(tx, m, strings.Join(prior, " ")); err != nil {
			return err
		}
		if err := tx.Save(m).Error; err != nil {
			return err
		}
		if err := recordHistory(tx, m, ActivityCreate, delegate.Username, now); err != nil {
			return err
		}
		out = m
		touched = append(touched, m.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.refreshSnapshots(ctx, touched)
	return out, nil
}

// DraftUpdate carries the fields the presentation layer may set on a
// Draft before submitting it.
type DraftUpdate struct {
	Title        string
	Keywords     string
	Distribution string
	Confidential bool
	Pinned       bool
	Template     bool
	Signers      string
	References   string
}

// DraftResult reports which roster/reference tokens were dropped.
type DraftResult struct {
	Memo              *Memo
	InvalidSigners    []string
	InvalidReferences []string
}

// UpdateDraft replaces a Draft's editable fields and re-populates its
// signer ledger and reference edges. Invalid tokens are dropped from
// the stored sets and reported.
func (s *Service) UpdateDraft(ctx context.Context, owner string, number int, version, delegateName string, in DraftUpdate) (*DraftResult, error) {
	res := &DraftResult{}
	err := s.mutate(ctx, owner, number, version, func(tx *gorm.DB, m *Memo, touched *[]uint64) error {
		delegate, err := user.Find(tx, delegateName)
		if err != nil {
			return err
		}
		if m.State != StateDraft {
			return ErrNotAllowed
		}
		ok, err := ownerDelegate(tx, m, delegate)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAllowed
		}

		m.Title = in.Title
		m.Keywords = in.Keywords
		m.Distribution = in.Distribution
		m.Confidential = in.Confidential
		m.Pinned = in.Pinned
		m.Template = in.Template
		if res.InvalidSigners, err = setSigners(tx, m, in.Signers); err != nil {
			return err
		}
		if res.InvalidReferences, err = setReferences(tx, m, in.References); err != nil {
			return err
		}
		m.ActionDate = time.Now().UTC()
		if err := tx.Save(m).Error; err != nil {
			return err
		}
		res.Memo = m
		*touched = append(*touched, m.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Submit reevaluates a Draft: with unsigned entries on the ledger it
// moves to Signoff and the signers are notified; with a fully (or
// vacuously) signed ledger it activates immediately.
func (s *Service) Submit(ctx context.Context, owner string, number int, version, delegateName string) error {
	return s.mutate(ctx, owner, number, version, func(tx *gorm.DB, m *Memo, touched *[]uint64) error {
		delegate, err := user.Find(tx, delegateName)
		if err != nil {
			return err
		}
		if m.State != StateDraft {
			return ErrNotAllowed
		}
		ok, err := ownerDelegate(tx, m, delegate)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAllowed
		}
		return s.processState(tx, m, delegate, time.Now().UTC(), touched)
	})
}

// Sign marks one ledger entry signed and reevaluates the state.
func (s *Service) Sign(ctx context.Context, owner string, number int, version, signerName, delegateName string) error {
	return s.mutate(ctx, owner, number, version, func(tx *gorm.DB, m *Memo, touched *[]uint64) error {
		signer, err := user.Find(tx, signerName)
		if err != nil {
			return err
		}
		delegate, err := user.Find(tx, delegateName)
		if err != nil {
			return err
		}
		ok, err := canSign(tx, m, signer, delegate)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAllowed
		}
		now := time.Now().UTC()
		if err := signEntry(tx, m.ID, signer.Username, delegate.Username, now); err != nil {
			return err
		}
		if err := recordHistory(tx, m, ActivitySign, delegate.Username, now); err != nil {
			return err
		}
		return s.processState(tx, m, delegate, now, touched)
	})
}

// Unsign clears one signed entry. The memo stays in Signoff; only the
// ledger aggregate changes.
func (s *Service) Unsign(ctx context.Context, owner string, number int, version, signerName, delegateName string) error {
	return s.mutate(ctx, owner, number, version, func(tx *gorm.DB, m *Memo, touched *[]uint64) error {
		signer, err := user.Find(tx, signerName)
		if err != nil {
			return err
		}
		delegate, err := user.Find(tx, delegateName)
		if err != nil {
			return err
		}
		ok, err := canUnsign(tx, m, signer, delegate)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAllowed
		}
		now := time.Now().UTC()
		if err := unsignEntry(tx, m.ID, signer.Username); err != nil {
			return err
		}
		if err := recordHistory(tx, m, ActivityUnsign, delegate.Username, now); err != nil {
			return err
		}
		return s.processState(tx, m, delegate, now, touched)
	})
}

// Obsolete retires an Active memo.
func (s *Service) Obsolete(ctx context.Context, owner string, number int, version, delegateName string) error {
	return s.mutate(ctx, owner, number, version, func(tx *gorm.DB, m *Memo, touched *[]uint64) error {
		delegate, err := user.Find(tx, delegateName)
		if err != nil {
			return err
		}
		ok, err := canObsolete(tx, m, delegate)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAllowed
		}
		now := time.Now().UTC()
		m.State = StateObsolete
		m.ActionDate = now
		m.ObsoleteDate = &now
		if err := recordHistory(tx, m, ActivityObsolete, delegate.Username, now); err != nil {
			return err
		}
		if err := tx.Save(m).Error; err != nil {
			return err
		}
		*touched = append(*touched, m.ID)
		return nil
	})
}

// Cancel removes a Draft entirely: attachments, references, ledger,
// prior history, the row itself and its on-disk directory. The Cancel
// history event is the only remaining trace.
func (s *Service) Cancel(ctx context.Context, owner string, number int, version, delegateName string) error {
	var dir string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockMemo(tx, owner, number, version)
		if err != nil {
			return err
		}
		delegate, err := user.Find(tx, delegateName)
		if err != nil {
			return err
		}
		ok, err := canCancel(tx, m, delegate)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAllowed
		}
		now := time.Now().UTC()
		if err := tx.Where("memo_id = ?", m.ID).Delete(&File{}).Error; err != nil {
			return err
		}
		if err := tx.Where("source_id = ?", m.ID).Delete(&Reference{}).Error; err != nil {
			return err
		}
		if err := tx.Where("memo_id = ?", m.ID).Delete(&Signature{}).Error; err != nil {
			return err
		}
		if err := tx.Where("memo_id = ?", m.ID).Delete(&History{}).Error; err != nil {
			return err
		}
		if err := recordHistory(tx, m, ActivityCancel, delegate.Username, now); err != nil {
			return err
		}
		if err := tx.Delete(m).Error; err != nil {
			return err
		}
		dir = s.Files.Dir(m)
		log.Printf("canceled memo %s", m)
		return nil
	})
	if err != nil {
		return err
	}
	s.Files.RemoveTree(dir)
	return nil
}

// Reject sends a Signoff memo back to Draft: timestamps are cleared,
// every ledger entry reverts to unsigned and the signers are told.
func (s *Service) Reject(ctx context.Context, owner string, number int, version, signerName, delegateName string) error {
	return s.mutate(ctx, owner, number, version, func(tx *gorm.DB, m *Memo, touched *[]uint64) error {
		signer, err := user.Find(tx, signerName)
		if err != nil {
			return err
		}
		delegate, err := user.Find(tx, delegateName)
		if err != nil {
			return err
		}
		ok, err := canReject(tx, m, signer, delegate)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAllowed
		}
		now := time.Now().UTC()
		m.State = StateDraft
		m.ActionDate = now
		m.SubmitDate = nil
		m.ActiveDate = nil
		m.ObsoleteDate = nil
		if err := recordHistory(tx, m, ActivityReject, delegate.Username, now); err != nil {
			return err
		}
		if err := unsignAll(tx, m.ID); err != nil {
			return err
		}
		if err := tx.Save(m).Error; err != nil {
			return err
		}
		msg := fmt.Sprintf("memo %s has been rejected for %s by %s", m, signer.Username, delegate.Username)
		if err := s.notifySigners(tx, m, msg); err != nil {
			return err
		}
		*touched = append(*touched, m.ID)
		return nil
	})
}

////////////////////////////////////////////////////////////////////////
// State reevaluation
////////////////////////////////////////////////////////////////////////

// processState runs after creation, sign and unsign. Draft moves to
// Signoff (or straight to Active when the ledger is already
// satisfied); Signoff moves to Active once the last signature lands.
func (s *Service) processState(tx *gorm.DB, m *Memo, actor *user.User, now time.Time, touched *[]uint64) error {
	m.ActionDate = now
	if m.State == StateDraft {
		full, err := fullySigned(tx, m.ID)
		if err != nil {
			return err
		}
		if !full {
			m.State = StateSignoff
			m.SubmitDate = &now
			if err := recordHistory(tx, m, ActivitySignoff, actor.Username, now); err != nil {
				return err
			}
			if err := tx.Save(m).Error; err != nil {
				return err
			}
			*touched = append(*touched, m.ID)
			msg := fmt.Sprintf("memo %s has gone into signoff", m)
			return s.notifySigners(tx, m, msg)
		}
		return s.activate(tx, m, actor, now, touched)
	}
	if m.State == StateSignoff {
		full, err := fullySigned(tx, m.ID)
		if err != nil {
			return err
		}
		if full {
			return s.activate(tx, m, actor, now, touched)
		}
		// signatures still required
	}
	if err := tx.Save(m).Error; err != nil {
		return err
	}
	*touched = append(*touched, m.ID)
	return nil
}

func (s *Service) activate(tx *gorm.DB, m *Memo, actor *user.User, now time.Time, touched *[]uint64) error {
	m.State = StateActive
	m.ActiveDate = &now
	if err := recordHistory(tx, m, ActivityActivate, actor.Username, now); err != nil {
		return err
	}
	if err := s.obsoletePrevious(tx, m, actor, now, touched); err != nil {
		return err
	}
	if err := tx.Save(m).Error; err != nil {
		return err
	}
	*touched = append(*touched, m.ID)
	msg := fmt.Sprintf("memo %s has been published", m)
	return s.notifyDistribution(tx, m, msg)
}

// obsoletePrevious retires every other Active version of the same
// (owner, number); activating a version supersedes its siblings.
func (s *Service) obsoletePrevious(tx *gorm.DB, m *Memo, actor *user.User, now time.Time, touched *[]uint64) error {
	var prev []Memo
	err := forUpdate(tx).
		Where("owner_id = ? AND number = ? AND id <> ? AND state = ?", m.OwnerID, m.Number, m.ID, StateActive).
		Find(&prev).Error
	if err != nil {
		return err
	}
	for i := range prev {
		p := &prev[i]
		p.State = StateObsolete
		p.ActionDate = now
		p.ObsoleteDate = &now
		if err := recordHistory(tx, p, ActivityObsolete, actor.Username, now); err != nil {
			return err
		}
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		*touched = append(*touched, p.ID)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////
// Notifications (enqueued in-transaction, dispatched by the worker)
////////////////////////////////////////////////////////////////////////

func (s *Service) notifySigners(tx *gorm.DB, m *Memo, message string) error {
	recipients, err := signerEmails(tx, m.ID)
	if err != nil {
		return err
	}
	return s.enqueueNotification(tx, m, recipients, message)
}

// notifyDistribution mails the distribution list plus the owner's
// subscribers.
func (s *Service) notifyDistribution(tx *gorm.DB, m *Memo, message string) error {
	recipients, err := user.ResolveEmails(tx, m.Distribution)
	if err != nil {
		return err
	}
	subs, err := user.SubscriberEmails(tx, m.OwnerID)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, r := range recipients {
		seen[r] = true
	}
	for _, r := range subs {
		if !seen[r] {
			seen[r] = true
			recipients = append(recipients, r)
		}
	}
	return s.enqueueNotification(tx, m, recipients, message)
}

func (s *Service) enqueueNotification(tx *gorm.DB, m *Memo, recipients []string, message string) error {
	if len(recipients) == 0 {
		return nil
	}
	owner, err := user.Find(tx, m.OwnerID)
	if err != nil {
		return err
	}
	body := message
	if s.BaseURL != "" {
		body = fmt.Sprintf("%s\n\n%s/memo/%s/%d/%s", message, s.BaseURL, m.OwnerID, m.Number, m.Version)
	}
	return jobs.EnqueueEmail(tx, notify.Message{
		Recipients: recipients,
		ReplyTo:    owner.Email,
		Subject:    message,
		Body:       body,
	})
}

////////////////////////////////////////////////////////////////////////
// Reads used by the presentation layer
////////////////////////////////////////////////////////////////////////

// Find returns the exact (owner, number, version) memo.
func (s *Service) Find(ctx context.Context, owner string, number int, version string) (*Memo, error) {
	var m Memo
	err := s.DB.WithContext(ctx).
		Where("owner_id = ? AND number = ? AND version = ?", owner, number, strings.ToUpper(version)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Signers returns the ledger rows for a memo, roster order.
func (s *Service) Signers(ctx context.Context, m *Memo) ([]Signature, error) {
	return listSignatures(s.DB.WithContext(ctx), m.ID)
}

// SignerStatus answers roster membership and signed state for one user.
func (s *Service) SignerStatus(ctx context.Context, m *Memo, username string) (SignerStatus, error) {
	return signerStatus(s.DB.WithContext(ctx), m.ID, username)
}

// FullySigned is the ledger aggregate; vacuously true with no roster.
func (s *Service) FullySigned(ctx context.Context, m *Memo) (bool, error) {
	return fullySigned(s.DB.WithContext(ctx), m.ID)
}

// ForwardRefs lists the memo's outgoing reference strings.
func (s *Service) ForwardRefs(ctx context.Context, m *Memo) ([]string, error) {
	return forwardRefs(s.DB.WithContext(ctx), m.ID)
}

// BackRefs lists every memo citing this one.
func (s *Service) BackRefs(ctx context.Context, m *Memo) ([]string, error) {
	return backRefs(s.DB.WithContext(ctx), m)
}

// CanSign and friends let the presentation layer decide which actions
// to offer without attempting them.
func (s *Service) CanSign(ctx context.Context, m *Memo, signer, delegate *user.User) (bool, error) {
	return canSign(s.DB.WithContext(ctx), m, signer, delegate)
}

func (s *Service) CanUnsign(ctx context.Context, m *Memo, signer, delegate *user.User) (bool, error) {
	return canUnsign(s.DB.WithContext(ctx), m, signer, delegate)
}

func (s *Service) CanReject(ctx context.Context, m *Memo, signer, delegate *user.User) (bool, error) {
	return canReject(s.DB.WithContext(ctx), m, signer, delegate)
}

func (s *Service) CanObsolete(ctx context.Context, m *Memo, delegate *user.User) (bool, error) {
	return canObsolete(s.DB.WithContext(ctx), m, delegate)
}

func (s *Service) CanCancel(ctx context.Context, m *Memo, delegate *user.User) (bool, error) {
	return canCancel(s.DB.WithContext(ctx), m, delegate)
}

func (s *Service) CanRevise(ctx context.Context, m *Memo, delegate *user.User) (bool, error) {
	return canRevise(s.DB.WithContext(ctx), m, delegate)
}

// HasAccess gates reads on confidential memos: owner, admin, readAll
// and the distribution list get through.
func HasAccess(m *Memo, u *user.User) bool {
	if !m.Confidential {
		return true
	}
	if u == nil {
		return false
	}
	if u.Username == m.OwnerID || u.Admin || u.ReadAll {
		return true
	}
	for _, name := range user.SplitNames(m.Distribution) {
		if name == u.Username {
			return true
		}
	}
	return false
}

////////////////////////////////////////////////////////////////////////

// mutate wraps one lifecycle operation: lock the memo row, run fn in
// the transaction, then refresh the JSON mirror of every touched memo
// from committed state.
func (s *Service) mutate(ctx context.Context, owner string, number int, version string, fn func(tx *gorm.DB, m *Memo, touched *[]uint64) error) error {
	var touched []uint64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockMemo(tx, owner, number, version)
		if err != nil {
			return err
		}
		return fn(tx, m, &touched)
	})
	if err != nil {
		return err
	}
	s.refreshSnapshots(ctx, touched)
	return nil
}

// refreshSnapshots regenerates the denormalized mirror for each memo
// id. The mirror is a derived view; failure is logged, never fatal.
func (s *Service) refreshSnapshots(ctx context.Context, ids []uint64) {
	if s.Snapshots == nil {
		return
	}
	seen := map[uint64]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := s.writeSnapshot(ctx, id); err != nil {
			log.Printf("snapshot refresh for memo id %d: %v", id, err)
		}
	}
}
