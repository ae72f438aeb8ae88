package memo

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"memos/internal/user"
)

// FileStore keeps attached blobs on disk under
// <root>/<owner>/<number>/<version>/<uuid>, next to the memo's JSON
// snapshot. The database holds the manifest.
type FileStore struct {
	Root string
}

func (fs *FileStore) Dir(m *Memo) string {
	return filepath.Join(fs.Root, m.OwnerID, strconv.Itoa(m.Number), m.Version)
}

func (fs *FileStore) path(m *Memo, id string) string {
	return filepath.Join(fs.Dir(m), id)
}

// RemoveTree deletes a memo's whole directory; used on cancel. Errors
// are ignored like the original did, the rows are already gone.
func (fs *FileStore) RemoveTree(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("remove %s: %v", dir, err)
	}
}

// StoreFile attaches an uploaded blob to a Draft memo. Only an owner's
// delegate may attach, and only while drafting.
func (s *Service) StoreFile(ctx context.Context, owner string, number int, version, delegateName, filename string, r io.Reader) (*File, error) {
	var f *File
	var m *Memo
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if m, err = lockMemo(tx, owner, number, version); err != nil {
			return err
		}
		ok, err := editableBy(tx, m, delegateName)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAllowed
		}
		f = &File{
			MemoID:    m.ID,
			UUID:      uuid.NewString(),
			Filename:  filename,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(f).Error; err != nil {
			return err
		}
		m.NumFiles++
		m.ActionDate = f.CreatedAt
		return tx.Save(m).Error
	})
	if err != nil {
		return nil, err
	}

	dir := s.Files.Dir(m)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dst, err := os.Create(s.Files.path(m, f.UUID))
	if err != nil {
		return nil, err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, r); err != nil {
		return nil, err
	}
	s.refreshSnapshots(ctx, []uint64{m.ID})
	return f, nil
}

// RemoveFile detaches one blob by uuid.
func (s *Service) RemoveFile(ctx context.Context, owner string, number int, version, delegateName, fileID string) error {
	var path string
	var id uint64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockMemo(tx, owner, number, version)
		if err != nil {
			return err
		}
		ok, err := editableBy(tx, m, delegateName)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAllowed
		}
		var f File
		err = tx.Where("memo_id = ? AND uuid = ?", m.ID, fileID).First(&f).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&f).Error; err != nil {
			return err
		}
		if m.NumFiles > 0 {
			m.NumFiles--
		}
		m.ActionDate = time.Now().UTC()
		if err := tx.Save(m).Error; err != nil {
			return err
		}
		path = s.Files.path(m, f.UUID)
		id = m.ID
		return nil
	})
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("remove %s: %v", path, err)
	}
	s.refreshSnapshots(ctx, []uint64{id})
	return nil
}

// FilesFor lists a memo's attachment manifest.
func (s *Service) FilesFor(ctx context.Context, m *Memo) ([]File, error) {
	var files []File
	err := s.DB.WithContext(ctx).Where("memo_id = ?", m.ID).Order("id asc").Find(&files).Error
	return files, err
}

// ResolveFilePath maps an attachment uuid to its on-disk location.
// Access control is the caller's job via HasAccess.
func (s *Service) ResolveFilePath(ctx context.Context, m *Memo, fileID string) (string, string, error) {
	var f File
	err := s.DB.WithContext(ctx).Where("memo_id = ? AND uuid = ?", m.ID, fileID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return s.Files.path(m, f.UUID), f.Filename, nil
}

// editableBy: drafts only, owner's delegate only.
func editableBy(tx *gorm.DB, m *Memo, delegateName string) (bool, error) {
	if m.State != StateDraft {
		return false, nil
	}
	delegate, err := user.Find(tx, delegateName)
	if err != nil {
		return false, err
	}
	return ownerDelegate(tx, m, delegate)
}
