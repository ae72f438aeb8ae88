package memo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	ref, ok := parseRef("alice-3")
	require.True(t, ok)
	require.Equal(t, "alice", ref.Owner)
	require.Equal(t, 3, ref.Number)
	require.Nil(t, ref.Version)

	ref, ok = parseRef("alice-3-b")
	require.True(t, ok)
	require.NotNil(t, ref.Version)
	require.Equal(t, "B", *ref.Version)

	for _, bad := range []string{"alice", "alice-x", "-3", "alice-3-9", "alice-3-b-c", ""} {
		_, ok := parseRef(bad)
		require.False(t, ok, "token %q should not parse", bad)
	}
}

func TestReferencesOnlyResolveToPublishedMemos(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	active := activateMemo(t, s, newDraft(t, s, "alice", DraftUpdate{Title: "target"}))
	draft := newDraft(t, s, "alice", DraftUpdate{Title: "still drafting"})

	src, err := s.CreateOrRevise(ctx, "alice", "alice", nil)
	require.NoError(t, err)
	res, err := s.UpdateDraft(ctx, src.OwnerID, src.Number, src.Version, "alice", DraftUpdate{
		References: active.String() + " " + draft.String(),
	})
	require.NoError(t, err)

	// a Draft target is not citable
	require.Equal(t, []string{draft.String()}, res.InvalidReferences)

	refs, err := s.ForwardRefs(ctx, res.Memo)
	require.NoError(t, err)
	require.Equal(t, []string{active.String()}, refs)
}

func TestVersionlessRefResolvesToLatest(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	a := activateMemo(t, s, newDraft(t, s, "alice", DraftUpdate{Title: "v1"}))
	b, err := s.CreateOrRevise(ctx, "alice", "alice", &a.Number)
	require.NoError(t, err)
	b = activateMemo(t, s, b)

	src, err := s.CreateOrRevise(ctx, "alice", "alice", nil)
	require.NoError(t, err)
	res, err := s.UpdateDraft(ctx, src.OwnerID, src.Number, src.Version, "alice", DraftUpdate{
		References: "alice-1",
	})
	require.NoError(t, err)
	require.Empty(t, res.InvalidReferences)

	// the stored edge stays versionless and matches every version
	back, err := s.BackRefs(ctx, a)
	require.NoError(t, err)
	require.Equal(t, []string{res.Memo.String()}, back)

	back, err = s.BackRefs(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []string{res.Memo.String()}, back)
}

func TestVersionedRefMatchesOnlyThatVersion(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	a := activateMemo(t, s, newDraft(t, s, "alice", DraftUpdate{Title: "v1"}))
	b, err := s.CreateOrRevise(ctx, "alice", "alice", &a.Number)
	require.NoError(t, err)
	b = activateMemo(t, s, b)

	src, err := s.CreateOrRevise(ctx, "alice", "alice", nil)
	require.NoError(t, err)
	_, err = s.UpdateDraft(ctx, src.OwnerID, src.Number, src.Version, "alice", DraftUpdate{
		References: a.String(),
	})
	require.NoError(t, err)

	back, err := s.BackRefs(ctx, a)
	require.NoError(t, err)
	require.Len(t, back, 1)

	back, err = s.BackRefs(ctx, b)
	require.NoError(t, err)
	require.Empty(t, back)
}

func TestBackRefsDeduplicateSources(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	target := activateMemo(t, s, newDraft(t, s, "alice", DraftUpdate{Title: "target"}))

	src, err := s.CreateOrRevise(ctx, "alice", "alice", nil)
	require.NoError(t, err)
	_, err = s.UpdateDraft(ctx, src.OwnerID, src.Number, src.Version, "alice", DraftUpdate{
		// both the exact and the versionless form of the same target
		References: target.String() + " alice-1",
	})
	require.NoError(t, err)

	back, err := s.BackRefs(ctx, target)
	require.NoError(t, err)
	require.Len(t, back, 1)
}
