package memo

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"memos/internal/user"
)

// The signature ledger: one row per required signer per memo. These
// run on the caller's transaction handle; the state machine is the
// only writer.

// SignerStatus answers "is this user on the roster, and have they signed".
type SignerStatus struct {
	IsSigner  bool
	HasSigned bool
}

// setSigners re-populates the ledger from a raw roster string:
// delete-then-insert, duplicates collapsed to first occurrence,
// unresolvable names dropped and reported.
func setSigners(tx *gorm.DB, m *Memo, raw string) ([]string, error) {
	m.SignerNames = raw
	if err := tx.Where("memo_id = ?", m.ID).Delete(&Signature{}).Error; err != nil {
		return nil, err
	}
	roster, err := user.ParseRoster(tx, raw)
	if err != nil {
		return nil, err
	}
	for _, signer := range roster.Users {
		sig := Signature{MemoID: m.ID, SignerID: signer.Username}
		if err := tx.Create(&sig).Error; err != nil {
			return nil, err
		}
	}
	return roster.Invalid, nil
}

func signerStatus(tx *gorm.DB, memoID uint64, username string) (SignerStatus, error) {
	var sig Signature
	err := tx.Where("memo_id = ? AND signer_id = ?", memoID, username).First(&sig).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SignerStatus{}, nil
	}
	if err != nil {
		return SignerStatus{}, err
	}
	return SignerStatus{IsSigner: true, HasSigned: sig.Signed}, nil
}

func signEntry(tx *gorm.DB, memoID uint64, signer, delegate string, now time.Time) error {
	return tx.Model(&Signature{}).
		Where("memo_id = ? AND signer_id = ?", memoID, signer).
		Updates(map[string]any{
			"signed":      true,
			"signed_at":   now,
			"delegate_id": delegate,
		}).Error
}

func unsignEntry(tx *gorm.DB, memoID uint64, signer string) error {
	return tx.Model(&Signature{}).
		Where("memo_id = ? AND signer_id = ?", memoID, signer).
		Updates(map[string]any{
			"signed":      false,
			"signed_at":   nil,
			"delegate_id": "",
		}).Error
}

// unsignAll clears every entry; used on reject.
func unsignAll(tx *gorm.DB, memoID uint64) error {
	return tx.Model(&Signature{}).
		Where("memo_id = ?", memoID).
		Updates(map[string]any{
			"signed":      false,
			"signed_at":   nil,
			"delegate_id": "",
		}).Error
}

// fullySigned is the ledger aggregate: true iff no unsigned entry
// remains, vacuously true for an empty roster.
func fullySigned(tx *gorm.DB, memoID uint64) (bool, error) {
	var n int64
	err := tx.Model(&Signature{}).
		Where("memo_id = ? AND signed = ?", memoID, false).
		Count(&n).Error
	return n == 0, err
}

func listSignatures(tx *gorm.DB, memoID uint64) ([]Signature, error) {
	var sigs []Signature
	err := tx.Where("memo_id = ?", memoID).Order("id asc").Find(&sigs).Error
	return sigs, err
}

// signerEmails collects the roster's addresses for notification.
func signerEmails(tx *gorm.DB, memoID uint64) ([]string, error) {
	sigs, err := listSignatures(tx, memoID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, sig := range sigs {
		u, err := user.Find(tx, sig.SignerID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if u.Email != "" {
			out = append(out, u.Email)
		}
	}
	return out, nil
}
