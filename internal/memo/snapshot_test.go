package memo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func readSnapshot(t *testing.T, s *Service, m *Memo) *Snapshot {
	t.Helper()
	name := fmt.Sprintf("meta-%s-%d-%s.json", m.OwnerID, m.Number, m.Version)
	path := filepath.Join(s.Snapshots.Root, m.OwnerID, strconv.Itoa(m.Number), m.Version, name)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return &snap
}

func TestSnapshotTracksLifecycle(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Title: "mirrored", Signers: "bob"})

	snap := readSnapshot(t, s, m)
	require.Equal(t, StateDraft, snap.State)
	require.Equal(t, "mirrored", snap.Title)
	require.Len(t, snap.Signers, 1)
	require.Equal(t, "bob", snap.Signers[0].Signer)
	require.Nil(t, snap.Signers[0].SignedAt)

	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))
	snap = readSnapshot(t, s, m)
	require.Equal(t, StateSignoff, snap.State)

	require.NoError(t, s.Sign(ctx, m.OwnerID, m.Number, m.Version, "bob", "bob"))
	snap = readSnapshot(t, s, m)
	require.Equal(t, StateActive, snap.State)
	require.NotNil(t, snap.ActiveDate)
	require.NotNil(t, snap.Signers[0].SignedAt)
}

func TestSnapshotRefreshesSupersededVersion(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	a := activateMemo(t, s, newDraft(t, s, "alice", DraftUpdate{Title: "v1"}))
	b, err := s.CreateOrRevise(ctx, "alice", "alice", &a.Number)
	require.NoError(t, err)
	activateMemo(t, s, b)

	// activating B rewrites A's mirror too
	snap := readSnapshot(t, s, a)
	require.Equal(t, StateObsolete, snap.State)
	require.NotNil(t, snap.ObsoleteDate)
}
