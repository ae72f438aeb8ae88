package memo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// SnapshotStore writes the denormalized JSON mirror of each memo:
// one meta-<owner>-<number>-<version>.json per version, in the same
// directory as its attachments. It is a read-optimized derived view,
// never the system of record.
type SnapshotStore struct {
	Root string
}

type Snapshot struct {
	Owner        string           `json:"owner"`
	Number       int              `json:"number"`
	Version      string           `json:"version"`
	Title        string           `json:"title"`
	Keywords     string           `json:"keywords"`
	Distribution string           `json:"distribution"`
	Confidential bool             `json:"confidential"`
	State        State            `json:"state"`
	ActiveDate   *time.Time       `json:"active_date,omitempty"`
	ObsoleteDate *time.Time       `json:"obsolete_date,omitempty"`
	Signers      []SnapshotSigner `json:"signers"`
	References   []string         `json:"references"`
	Files        []SnapshotFile   `json:"files"`
}

type SnapshotSigner struct {
	Signer   string     `json:"signer"`
	SignedAt *time.Time `json:"signed_at,omitempty"`
}

type SnapshotFile struct {
	Filename string `json:"filename"`
	UUID     string `json:"uuid"`
}

func (ss *SnapshotStore) dir(m *Memo) string {
	return filepath.Join(ss.Root, m.OwnerID, strconv.Itoa(m.Number), m.Version)
}

func (ss *SnapshotStore) Write(m *Memo, snap *Snapshot) error {
	dir := ss.dir(m)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("meta-%s-%d-%s.json", m.OwnerID, m.Number, m.Version)
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// writeSnapshot builds and writes the mirror from committed state.
func (s *Service) writeSnapshot(ctx context.Context, memoID uint64) error {
	db := s.DB.WithContext(ctx)
	var m Memo
	err := db.Where("id = ?", memoID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil // canceled underneath us
	}
	if err != nil {
		return err
	}

	snap := &Snapshot{
		Owner:        m.OwnerID,
		Number:       m.Number,
		Version:      m.Version,
		Title:        m.Title,
		Keywords:     m.Keywords,
		Distribution: m.Distribution,
		Confidential: m.Confidential,
		State:        m.State,
		ActiveDate:   m.ActiveDate,
		ObsoleteDate: m.ObsoleteDate,
		References:   []string{},
		Signers:      []SnapshotSigner{},
		Files:        []SnapshotFile{},
	}

	sigs, err := listSignatures(db, m.ID)
	if err != nil {
		return err
	}
	for _, sig := range sigs {
		snap.Signers = append(snap.Signers, SnapshotSigner{Signer: sig.SignerID, SignedAt: sig.SignedAt})
	}

	if snap.References, err = forwardRefs(db, m.ID); err != nil {
		return err
	}
	if snap.References == nil {
		snap.References = []string{}
	}

	files, err := s.FilesFor(ctx, &m)
	if err != nil {
		return err
	}
	for _, f := range files {
		snap.Files = append(snap.Files, SnapshotFile{Filename: f.Filename, UUID: f.UUID})
	}

	return s.Snapshots.Write(&m, snap)
}
