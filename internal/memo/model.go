package memo

import (
	"fmt"
	"time"
)

// State is the lifecycle position of one memo version.
type State string

const (
	StateDraft    State = "Draft"
	StateSignoff  State = "Signoff"
	StateActive   State = "Active"
	StateObsolete State = "Obsolete"
)

// Activity is the kind of a history event.
type Activity string

const (
	ActivityCreate   Activity = "Create"
	ActivitySignoff  Activity = "Signoff"
	ActivitySign     Activity = "Sign"
	ActivityUnsign   Activity = "Unsign"
	ActivityActivate Activity = "Activate"
	ActivityObsolete Activity = "Obsolete"
	ActivityCancel   Activity = "Cancel"
	ActivityReject   Activity = "Reject"
)

// Memo is one version of a document. The natural key is
// (owner, number, version); numbers count up per owner, versions are
// bijective base-26 letters per number.
type Memo struct {
	ID      uint64 `gorm:"primaryKey"`
	OwnerID string `gorm:"index:idx_memos_owner_number,priority:1;not null"`
	Number  int    `gorm:"index:idx_memos_owner_number,priority:2;not null"`
	Version string `gorm:"not null"`

	Title        string `gorm:"not null;default:''"`
	Keywords     string `gorm:"not null;default:''"`
	Distribution string `gorm:"not null;default:''"`
	Confidential bool   `gorm:"not null;default:false"`
	Pinned       bool   `gorm:"not null;default:false"`
	Template     bool   `gorm:"not null;default:false"`

	// Raw roster strings as last supplied by the owner. The resolved
	// sets live in the signatures and references tables.
	SignerNames    string `gorm:"not null;default:''"`
	ReferenceNames string `gorm:"not null;default:''"`

	State State `gorm:"index;not null"`

	ActionDate   time.Time `gorm:"index;not null"` // last time anything happened
	CreateDate   *time.Time
	SubmitDate   *time.Time
	ActiveDate   *time.Time
	ObsoleteDate *time.Time

	NumFiles int `gorm:"not null;default:0"`
}

func (m *Memo) String() string {
	return fmt.Sprintf("%s-%d-%s", m.OwnerID, m.Number, m.Version)
}

// Signature is one required-signer ledger entry.
type Signature struct {
	ID         uint64 `gorm:"primaryKey"`
	MemoID     uint64 `gorm:"index:idx_signatures_memo_signer,priority:1;not null"`
	SignerID   string `gorm:"index:idx_signatures_memo_signer,priority:2;index:idx_signatures_signer;not null"`
	DelegateID string `gorm:"not null;default:''"` // who actually acted
	Signed     bool   `gorm:"not null;default:false"`
	SignedAt   *time.Time
}

// Reference is a directed edge from a memo to (owner, number[, version]).
// A nil RefVersion means "latest", resolved at query time.
type Reference struct {
	ID         uint64 `gorm:"primaryKey"`
	SourceID   uint64 `gorm:"index;not null"`
	RefOwnerID string `gorm:"index:idx_references_target,priority:1;not null"`
	RefNumber  int    `gorm:"index:idx_references_target,priority:2;not null"`
	RefVersion *string
}

func (r *Reference) String() string {
	if r.RefVersion == nil {
		return fmt.Sprintf("%s-%d", r.RefOwnerID, r.RefNumber)
	}
	return fmt.Sprintf("%s-%d-%s", r.RefOwnerID, r.RefNumber, *r.RefVersion)
}

// History is one audit event. It carries an identity snapshot rather
// than a foreign key so the Cancel event survives the memo's deletion.
type History struct {
	ID        uint64    `gorm:"primaryKey"`
	MemoID    uint64    `gorm:"index;not null"`
	OwnerID   string    `gorm:"not null"`
	Number    int       `gorm:"not null"`
	Version   string    `gorm:"not null"`
	Activity  Activity  `gorm:"not null"`
	UserID    string    `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"index;not null"`
}

// File is the record of one attached blob, stored on disk under the
// memo's directory keyed by UUID.
type File struct {
	ID        uint64    `gorm:"primaryKey"`
	MemoID    uint64    `gorm:"index;not null"`
	UUID      string    `gorm:"uniqueIndex;not null"`
	Filename  string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
