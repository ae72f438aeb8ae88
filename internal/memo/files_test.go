package memo

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreFileOnDraft(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Title: "with attachment"})

	f, err := s.StoreFile(ctx, m.OwnerID, m.Number, m.Version, "alice", "report.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)
	require.Equal(t, "report.pdf", f.Filename)
	require.NotEmpty(t, f.UUID)

	m = reload(t, s, m)
	require.Equal(t, 1, m.NumFiles)

	path, filename, err := s.ResolveFilePath(ctx, m, f.UUID)
	require.NoError(t, err)
	require.Equal(t, "report.pdf", filename)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "pdf bytes", string(data))
}

func TestStoreFileRefusedAfterSubmit(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Signers: "bob"})
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))

	_, err := s.StoreFile(ctx, m.OwnerID, m.Number, m.Version, "alice", "late.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestStoreFileRequiresDelegation(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "mallory")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{})
	_, err := s.StoreFile(ctx, m.OwnerID, m.Number, m.Version, "mallory", "x.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestRemoveFile(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{})
	f, err := s.StoreFile(ctx, m.OwnerID, m.Number, m.Version, "alice", "gone.txt", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, s.RemoveFile(ctx, m.OwnerID, m.Number, m.Version, "alice", f.UUID))

	m = reload(t, s, m)
	require.Zero(t, m.NumFiles)

	_, _, err = s.ResolveFilePath(ctx, m, f.UUID)
	require.ErrorIs(t, err, ErrNotFound)

	err = s.RemoveFile(ctx, m.OwnerID, m.Number, m.Version, "alice", f.UUID)
	require.ErrorIs(t, err, ErrNotFound)
}
