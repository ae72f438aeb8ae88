package memo

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"memos/internal/jobs"
	"memos/internal/notify"
	"memos/internal/user"
)

func TestCreateAllocatesNextNumber(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	m1, err := s.CreateOrRevise(ctx, "alice", "alice", nil)
	require.NoError(t, err)
	require.Equal(t, 1, m1.Number)
	require.Equal(t, "A", m1.Version)
	require.Equal(t, StateDraft, m1.State)
	require.NotNil(t, m1.CreateDate)

	m2, err := s.CreateOrRevise(ctx, "alice", "alice", nil)
	require.NoError(t, err)
	require.Equal(t, 2, m2.Number)

	events, err := s.HistoryFor(ctx, "alice", 1, "A")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, ActivityCreate, events[0].Activity)
}

func TestCreateResumesExistingDraft(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	m, err := s.CreateOrRevise(ctx, "alice", "alice", nil)
	require.NoError(t, err)

	again, err := s.CreateOrRevise(ctx, "alice", "alice", &m.Number)
	require.NoError(t, err)
	require.Equal(t, m.ID, again.ID)
}

func TestCreateRequiresDelegation(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "mallory")
	ctx := context.Background()

	_, err := s.CreateOrRevise(ctx, "alice", "mallory", nil)
	require.ErrorIs(t, err, ErrNotAllowed)

	delegateEdge(t, s.DB, "alice", "mallory")
	m, err := s.CreateOrRevise(ctx, "alice", "mallory", nil)
	require.NoError(t, err)
	require.Equal(t, "alice", m.OwnerID)
}

func TestSubmitWithEmptyRosterActivates(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Title: "standalone"})
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))

	m = reload(t, s, m)
	require.Equal(t, StateActive, m.State)
	require.NotNil(t, m.ActiveDate)
	require.Nil(t, m.SubmitDate)

	events, err := s.HistoryFor(ctx, m.OwnerID, m.Number, m.Version)
	require.NoError(t, err)
	require.Equal(t, ActivityActivate, events[len(events)-1].Activity)
}

func TestSignoffFlow(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	seedUser(t, s.DB, "carol")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Title: "two signers", Signers: "bob carol"})
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))

	m = reload(t, s, m)
	require.Equal(t, StateSignoff, m.State)
	require.NotNil(t, m.SubmitDate)

	full, err := s.FullySigned(ctx, m)
	require.NoError(t, err)
	require.False(t, full)

	require.NoError(t, s.Sign(ctx, m.OwnerID, m.Number, m.Version, "bob", "bob"))
	m = reload(t, s, m)
	require.Equal(t, StateSignoff, m.State)

	require.NoError(t, s.Sign(ctx, m.OwnerID, m.Number, m.Version, "carol", "carol"))
	m = reload(t, s, m)
	require.Equal(t, StateActive, m.State)
	require.NotNil(t, m.ActiveDate)
}

func TestSubmitNotifiesSigners(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Title: "notify me", Signers: "bob"})
	require.Equal(t, int64(0), countJobs(t, s.DB))
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))
	require.Equal(t, int64(1), countJobs(t, s.DB))

	var job jobs.Job
	require.NoError(t, s.DB.Order("id desc").First(&job).Error)
	require.Equal(t, jobs.TypeEmailDispatch, job.Type)

	var msg notify.Message
	require.NoError(t, json.Unmarshal(job.Payload, &msg))
	require.Equal(t, []string{"bob@example.com"}, msg.Recipients)
	require.Equal(t, "alice@example.com", msg.ReplyTo)
}

func TestActivationNotifiesDistributionAndSubscribers(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "dave")
	sub := seedUser(t, s.DB, "sue")
	require.NoError(t, s.DB.Create(&user.Subscription{
		SubscriberID:   sub.Username,
		SubscriptionID: "alice",
	}).Error)
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Title: "broadcast", Distribution: "dave ext@example.org"})
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))

	var job jobs.Job
	require.NoError(t, s.DB.Order("id desc").First(&job).Error)
	var msg notify.Message
	require.NoError(t, json.Unmarshal(job.Payload, &msg))
	require.ElementsMatch(t,
		[]string{"dave@example.com", "ext@example.org", "sue@example.com"},
		msg.Recipients)
}

func TestThirdPartyCannotSign(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	seedUser(t, s.DB, "mallory")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Signers: "bob"})
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))

	err := s.Sign(ctx, m.OwnerID, m.Number, m.Version, "mallory", "mallory")
	require.ErrorIs(t, err, ErrNotAllowed)

	err = s.Sign(ctx, m.OwnerID, m.Number, m.Version, "bob", "mallory")
	require.ErrorIs(t, err, ErrNotAllowed)

	st, err := s.SignerStatus(ctx, reload(t, s, m), "bob")
	require.NoError(t, err)
	require.True(t, st.IsSigner)
	require.False(t, st.HasSigned)
}

func TestDelegateSignsOnBehalf(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	seedUser(t, s.DB, "deputy")
	delegateEdge(t, s.DB, "bob", "deputy")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Signers: "bob"})
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))
	require.NoError(t, s.Sign(ctx, m.OwnerID, m.Number, m.Version, "bob", "deputy"))

	sigs, err := s.Signers(ctx, reload(t, s, m))
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Equal(t, "bob", sigs[0].SignerID)
	require.Equal(t, "deputy", sigs[0].DelegateID)
	require.True(t, sigs[0].Signed)
	require.NotNil(t, sigs[0].SignedAt)
}

func TestUnsignRevertsLedgerEntry(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	seedUser(t, s.DB, "carol")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Signers: "bob carol"})
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))
	require.NoError(t, s.Sign(ctx, m.OwnerID, m.Number, m.Version, "bob", "bob"))

	// unsign while nothing is signed for carol yet
	err := s.Unsign(ctx, m.OwnerID, m.Number, m.Version, "carol", "carol")
	require.ErrorIs(t, err, ErrNotAllowed)

	require.NoError(t, s.Unsign(ctx, m.OwnerID, m.Number, m.Version, "bob", "bob"))
	m = reload(t, s, m)
	require.Equal(t, StateSignoff, m.State)

	st, err := s.SignerStatus(ctx, m, "bob")
	require.NoError(t, err)
	require.True(t, st.IsSigner)
	require.False(t, st.HasSigned)
}

func TestRejectReturnsToDraft(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	seedUser(t, s.DB, "carol")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Signers: "bob carol"})
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))
	require.NoError(t, s.Sign(ctx, m.OwnerID, m.Number, m.Version, "bob", "bob"))

	// any roster member may reject, signed or not
	require.NoError(t, s.Reject(ctx, m.OwnerID, m.Number, m.Version, "carol", "carol"))

	m = reload(t, s, m)
	require.Equal(t, StateDraft, m.State)
	require.Nil(t, m.SubmitDate)
	require.Nil(t, m.ActiveDate)

	sigs, err := s.Signers(ctx, m)
	require.NoError(t, err)
	for _, sig := range sigs {
		require.False(t, sig.Signed)
		require.Nil(t, sig.SignedAt)
	}

	events, err := s.HistoryFor(ctx, m.OwnerID, m.Number, m.Version)
	require.NoError(t, err)
	require.Equal(t, ActivityReject, events[len(events)-1].Activity)
}

func TestObsoleteOnlyFromActive(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Title: "retire me"})
	err := s.Obsolete(ctx, m.OwnerID, m.Number, m.Version, "alice")
	require.ErrorIs(t, err, ErrNotAllowed)

	m = activateMemo(t, s, m)
	require.NoError(t, s.Obsolete(ctx, m.OwnerID, m.Number, m.Version, "alice"))

	m = reload(t, s, m)
	require.Equal(t, StateObsolete, m.State)
	require.NotNil(t, m.ObsoleteDate)
}

func TestActivationObsoletesPreviousVersion(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	a := newDraft(t, s, "alice", DraftUpdate{Title: "v1"})
	a = activateMemo(t, s, a)

	b, err := s.CreateOrRevise(ctx, "alice", "alice", &a.Number)
	require.NoError(t, err)
	require.Equal(t, "B", b.Version)
	require.NoError(t, s.Submit(ctx, b.OwnerID, b.Number, b.Version, "alice"))

	a = reload(t, s, a)
	b = reload(t, s, b)
	require.Equal(t, StateObsolete, a.State)
	require.Equal(t, StateActive, b.State)
}

func TestReviseCopiesFieldsSignersAndReferences(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	ctx := context.Background()

	target := newDraft(t, s, "alice", DraftUpdate{Title: "cited"})
	target = activateMemo(t, s, target)

	a := newDraft(t, s, "alice", DraftUpdate{
		Title:        "procedure",
		Keywords:     "safety",
		Distribution: "bob",
		Confidential: true,
		Signers:      "bob",
		References:   target.String(),
	})
	a = activateMemo(t, s, a, "bob")

	b, err := s.CreateOrRevise(ctx, "alice", "alice", &a.Number)
	require.NoError(t, err)
	require.Equal(t, "B", b.Version)
	require.Equal(t, StateDraft, b.State)
	require.Equal(t, "procedure", b.Title)
	require.Equal(t, "safety", b.Keywords)
	require.Equal(t, "bob", b.Distribution)
	require.True(t, b.Confidential)

	sigs, err := s.Signers(ctx, b)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Equal(t, "bob", sigs[0].SignerID)
	require.False(t, sigs[0].Signed)

	refs, err := s.ForwardRefs(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []string{target.String()}, refs)
}

func TestReviseBlockedWhileSignoffInFlight(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Signers: "bob"})
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))

	_, err := s.CreateOrRevise(ctx, "alice", "alice", &m.Number)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestCancelErasesDraft(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Title: "doomed", Signers: "bob"})
	dir := s.Files.Dir(m)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, s.Cancel(ctx, m.OwnerID, m.Number, m.Version, "alice"))

	_, err := s.Find(ctx, m.OwnerID, m.Number, m.Version)
	require.ErrorIs(t, err, ErrNotFound)

	var n int64
	require.NoError(t, s.DB.Model(&Signature{}).Where("memo_id = ?", m.ID).Count(&n).Error)
	require.Zero(t, n)

	// the Cancel event is the only surviving trace
	events, err := s.HistoryFor(ctx, m.OwnerID, m.Number, m.Version)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, ActivityCancel, events[0].Activity)

	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestCancelOnlyDrafts(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Title: "published"})
	m = activateMemo(t, s, m)

	err := s.Cancel(ctx, m.OwnerID, m.Number, m.Version, "alice")
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestUpdateDraftReportsInvalidTokens(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	ctx := context.Background()

	m, err := s.CreateOrRevise(ctx, "alice", "alice", nil)
	require.NoError(t, err)

	res, err := s.UpdateDraft(ctx, m.OwnerID, m.Number, m.Version, "alice", DraftUpdate{
		Title:      "tokens",
		Signers:    "bob nobody bob",
		References: "alice-999 garbage",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"nobody"}, res.InvalidSigners)
	require.ElementsMatch(t, []string{"alice-999", "garbage"}, res.InvalidReferences)

	sigs, err := s.Signers(ctx, res.Memo)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
}

func TestUpdateDraftRejectedAfterSubmit(t *testing.T) {
	s := newTestService(t)
	seedUser(t, s.DB, "alice")
	seedUser(t, s.DB, "bob")
	ctx := context.Background()

	m := newDraft(t, s, "alice", DraftUpdate{Signers: "bob"})
	require.NoError(t, s.Submit(ctx, m.OwnerID, m.Number, m.Version, "alice"))

	_, err := s.UpdateDraft(ctx, m.OwnerID, m.Number, m.Version, "alice", DraftUpdate{Title: "too late"})
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestHasAccess(t *testing.T) {
	s := newTestService(t)
	owner := seedUser(t, s.DB, "alice")
	reader := seedUser(t, s.DB, "bob")
	admin := seedUser(t, s.DB, "root")
	admin.Admin = true

	open := &Memo{OwnerID: "alice", Confidential: false}
	secret := &Memo{OwnerID: "alice", Confidential: true, Distribution: "carol dave"}

	require.True(t, HasAccess(open, nil))
	require.False(t, HasAccess(secret, nil))
	require.True(t, HasAccess(secret, owner))
	require.True(t, HasAccess(secret, admin))
	require.False(t, HasAccess(secret, reader))

	reader.Username = "carol"
	require.True(t, HasAccess(secret, reader))
}
