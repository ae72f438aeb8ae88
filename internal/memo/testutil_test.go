package memo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"memos/internal/jobs"
	"memos/internal/user"
)

// openTestDB migrates the full model set onto a throwaway sqlite file.
// A file, not :memory:, so every pooled connection sees the same data.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&user.User{},
		&user.Delegate{},
		&user.Subscription{},
		&Memo{},
		&Signature{},
		&Reference{},
		&History{},
		&File{},
		&jobs.Job{},
	))
	return gdb
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	return &Service{
		DB:        openTestDB(t),
		Files:     &FileStore{Root: dir},
		Snapshots: &SnapshotStore{Root: dir},
	}
}

func seedUser(t *testing.T, gdb *gorm.DB, username string) *user.User {
	t.Helper()
	u := &user.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "irrelevant",
		PageSize:     10,
	}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

func delegateEdge(t *testing.T, gdb *gorm.DB, owner, delegate string) {
	t.Helper()
	require.NoError(t, gdb.Create(&user.Delegate{OwnerID: owner, DelegateID: delegate}).Error)
}

// newDraft creates a draft and fills in its editable fields.
func newDraft(t *testing.T, s *Service, owner string, upd DraftUpdate) *Memo {
	t.Helper()
	ctx := context.Background()
	m, err := s.CreateOrRevise(ctx, owner, owner, nil)
	require.NoError(t, err)
	res, err := s.UpdateDraft(ctx, m.OwnerID, m.Number, m.Version, owner, upd)
	require.NoError(t, err)
	return res.Memo
}

// activateMemo drives a memo to Active: submit, then sign with every
// roster member acting for themselves.
func activateMemo(t *testing.T, s *Service, m *Memo, signers ...string) *Memo {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, m.OwnerID))
	for _, name := range signers {
		require.NoError(t, s.Sign(ctx, m.OwnerID, m.Number, m.Version, name, name))
	}
	out, err := s.Find(ctx, m.OwnerID, m.Number, m.Version)
	require.NoError(t, err)
	require.Equal(t, StateActive, out.State)
	return out
}

func reload(t *testing.T, s *Service, m *Memo) *Memo {
	t.Helper()
	out, err := s.Find(context.Background(), m.OwnerID, m.Number, m.Version)
	require.NoError(t, err)
	return out
}

func countJobs(t *testing.T, gdb *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(&jobs.Job{}).Count(&n).Error)
	return n
}
