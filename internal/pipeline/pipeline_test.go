package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lead-identity/internal/config"
	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/leadcard"
	"github.com/sells-group/lead-identity/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testOptions returns a ticking clock and sequential IDs.
func testOptions() Options {
	var ids, ticks int
	return Options{
		ConflictRetries: 3,
		Now: func() time.Time {
			ticks++
			return t0.Add(time.Duration(ticks) * time.Second)
		},
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	}
}

func newPipeline(t *testing.T, st store.Store) *Pipeline {
	t.Helper()
	svc, err := dedup.New(config.DefaultMergeConfig(), st, st)
	require.NoError(t, err)
	return New(st, svc, testOptions())
}

func newSQLitePipeline(t *testing.T) (*Pipeline, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return newPipeline(t, st), st
}

func robert() identity.IdentityRecord {
	return identity.IdentityRecord{
		SourceType: identity.SourceConsumer,
		SourceID:   "c-1",
		FirstName:  "Robert",
		LastName:   "Smith",
		Phones:     []identity.Phone{{Number: "(512) 555-7199", Type: identity.PhoneMobile}},
		Emails:     []identity.Email{{Address: "rob.smith@acme.io", Type: identity.EmailPersonal}},
	}
}

func bob() identity.IdentityRecord {
	return identity.IdentityRecord{
		SourceType: identity.SourceSkiptrace,
		SourceID:   "s-1",
		FirstName:  "Bob",
		MiddleName: "James",
		LastName:   "Smith",
		Phones:     []identity.Phone{{Number: "+1 512-555-7199", Type: identity.PhoneLandline}},
		Addresses: []identity.Address{{
			Street: "100 Congress Ave Ste 200", City: "Austin", State: "TX", Zip: "78701",
			Type: identity.AddressResidential, IsCurrent: true,
		}},
	}
}

func jennifer() identity.IdentityRecord {
	return identity.IdentityRecord{
		SourceType: identity.SourceApollo,
		SourceID:   "a-1",
		FirstName:  "Jennifer",
		LastName:   "Smith",
		Phones:     []identity.Phone{{Number: "512.555.7199"}},
	}
}

func fields(updates []dedup.FieldUpdate) []string {
	out := make([]string, 0, len(updates))
	for _, u := range updates {
		out = append(out, u.Field)
	}
	return out
}

// --- End to end over SQLite ---

func TestIngest_CreateMergeAndDuplicate(t *testing.T) {
	p, st := newSQLitePipeline(t)
	ctx := context.Background()

	first, err := p.Ingest(ctx, robert())
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, first.Action)
	assert.Equal(t, dedup.ReasonNoCandidates, first.Reason)
	require.NotEmpty(t, first.CardID)

	again, err := p.Ingest(ctx, robert())
	require.NoError(t, err)
	assert.Equal(t, ActionDuplicate, again.Action)
	assert.Equal(t, first.RecordID, again.RecordID)
	assert.Equal(t, first.CardID, again.CardID)

	merged, err := p.Ingest(ctx, bob())
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, merged.Action)
	assert.Equal(t, first.RecordID, merged.TargetID)
	assert.Equal(t, first.CardID, merged.CardID)
	assert.Equal(t, identity.ConfidenceHigh, merged.Confidence)
	assert.ElementsMatch(t, []string{identity.FieldMiddleName, identity.FieldAddress}, fields(merged.Updates))

	target, err := st.GetRecord(ctx, first.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "James", target.MiddleName)
	assert.Equal(t, "Robert", target.FirstName)
	assert.Equal(t, int64(2), target.Version)

	card, err := st.GetCard(ctx, first.CardID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.RecordID, merged.RecordID}, card.RecordIDs)
	require.Len(t, card.Phones, 1)
	assert.ElementsMatch(t, []string{"consumer", "skiptrace"}, card.Phones[0].Sources)
	assert.Equal(t, leadcard.EnrichmentComplete, card.Enrichment.Status)
	assert.Equal(t, 2, card.Enrichment.RecordCount)
	require.NotNil(t, card.PrimaryPhone)
	assert.Equal(t, "5125557199", card.PrimaryPhone.Normalized)
}

func TestIngest_ReviewThenApprove(t *testing.T) {
	p, st := newSQLitePipeline(t)
	ctx := context.Background()

	first, err := p.Ingest(ctx, robert())
	require.NoError(t, err)

	held, err := p.Ingest(ctx, jennifer())
	require.NoError(t, err)
	assert.Equal(t, ActionReview, held.Action)
	assert.Equal(t, identity.ConfidenceMedium, held.Confidence)
	assert.Equal(t, first.RecordID, held.TargetID)
	require.NotEmpty(t, held.ReviewID)

	rec, err := st.GetRecord(ctx, held.RecordID)
	require.NoError(t, err)
	assert.Empty(t, rec.CardID)

	pending, err := p.PendingReviews(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, held.ReviewID, pending[0].ID)

	out, err := p.DecideReview(ctx, held.ReviewID, true)
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, out.Action)
	assert.Equal(t, first.CardID, out.CardID)

	card, err := p.Card(ctx, first.CardID)
	require.NoError(t, err)
	assert.Contains(t, card.RecordIDs, held.RecordID)
	assert.Equal(t, "Jennifer Smith", card.Person.DisplayName)

	rec, err = st.GetRecord(ctx, held.RecordID)
	require.NoError(t, err)
	assert.Equal(t, first.CardID, rec.CardID)

	_, err = p.DecideReview(ctx, held.ReviewID, false)
	assert.True(t, errors.Is(err, store.ErrReviewClosed))

	pending, err = p.PendingReviews(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDecideReview_Reject(t *testing.T) {
	p, st := newSQLitePipeline(t)
	ctx := context.Background()

	first, err := p.Ingest(ctx, robert())
	require.NoError(t, err)
	held, err := p.Ingest(ctx, jennifer())
	require.NoError(t, err)
	require.Equal(t, ActionReview, held.Action)

	out, err := p.DecideReview(ctx, held.ReviewID, false)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.NotEqual(t, first.CardID, out.CardID)

	card, err := st.GetCard(ctx, out.CardID)
	require.NoError(t, err)
	assert.Equal(t, []string{held.RecordID}, card.RecordIDs)

	target, err := st.GetRecord(ctx, first.RecordID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), target.Version)
}

// cancelOnDecide cancels the caller's context once a review status is written.
type cancelOnDecide struct {
	*store.SQLiteStore
	cancel context.CancelFunc
}

func (s *cancelOnDecide) UpdateReviewStatus(ctx context.Context, id string, status store.ReviewStatus, decidedAt time.Time) error {
	err := s.SQLiteStore.UpdateReviewStatus(ctx, id, status, decidedAt)
	if s.cancel != nil {
		s.cancel()
	}
	return err
}

func TestDecideReview_FailureReopensReview(t *testing.T) {
	_, st := newSQLitePipeline(t)
	wrapped := &cancelOnDecide{SQLiteStore: st}
	p := newPipeline(t, wrapped)

	first, err := p.Ingest(context.Background(), robert())
	require.NoError(t, err)
	held, err := p.Ingest(context.Background(), jennifer())
	require.NoError(t, err)
	require.Equal(t, ActionReview, held.Action)

	ctx, cancel := context.WithCancel(context.Background())
	wrapped.cancel = cancel
	_, err = p.DecideReview(ctx, held.ReviewID, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	review, err := st.GetReview(context.Background(), held.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, store.ReviewPending, review.Status)
	assert.Nil(t, review.DecidedAt)

	rec, err := st.GetRecord(context.Background(), held.RecordID)
	require.NoError(t, err)
	assert.Empty(t, rec.CardID)

	out, err := p.DecideReview(context.Background(), held.ReviewID, true)
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, out.Action)
	assert.Equal(t, first.CardID, out.CardID)

	rec, err = st.GetRecord(context.Background(), held.RecordID)
	require.NoError(t, err)
	assert.Equal(t, first.CardID, rec.CardID)
}

func TestDecideReview_RejectFailureReopensReview(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	held := jennifer()
	held.ID = "r-2"
	ms.On("GetReview", mock.Anything, "rv-1").
		Return(&store.Review{ID: "rv-1", RecordID: "r-2", TargetID: "r-1", Status: store.ReviewPending}, nil)
	ms.On("UpdateReviewStatus", mock.Anything, "rv-1", store.ReviewRejected, mock.Anything).Return(nil).Once()
	ms.On("GetRecord", mock.Anything, "r-2").Return(&held, nil)
	ms.On("CreateCard", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()
	ms.On("ReopenReview", mock.Anything, "rv-1", store.ReviewRejected).Return(nil).Once()

	_, err := p.DecideReview(context.Background(), "rv-1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	ms.AssertExpectations(t)
	ms.AssertNotCalled(t, "AttachRecord", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_NoIdentifyingFields(t *testing.T) {
	p, _ := newSQLitePipeline(t)

	out, err := p.Ingest(context.Background(), identity.IdentityRecord{
		SourceType: identity.SourceManual,
		FirstName:  "Pat",
		Phones:     []identity.Phone{{Number: "555-555-5555"}},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, dedup.ReasonNoIdentifyingFields, out.Reason)
}

func TestIngest_MergeIntoSeededRecordCreatesCard(t *testing.T) {
	p, st := newSQLitePipeline(t)
	ctx := context.Background()

	seed := robert()
	seed.ID = "seed-1"
	seed.CreatedAt, seed.UpdatedAt = t0, t0
	n, err := st.SeedRecords(ctx, []identity.IdentityRecord{seed})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	out, err := p.Ingest(ctx, bob())
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, out.Action)
	require.NotEmpty(t, out.CardID)

	target, err := st.GetRecord(ctx, "seed-1")
	require.NoError(t, err)
	assert.Equal(t, out.CardID, target.CardID)

	card, err := st.GetCard(ctx, out.CardID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"seed-1", out.RecordID}, card.RecordIDs)
}

// --- Mocked store ---

func TestIngest_InvalidSourceType(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	_, err := p.Ingest(context.Background(), identity.IdentityRecord{SourceType: "crm", SourceID: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRecord))
	assert.Contains(t, err.Error(), "invalid source type")
	ms.AssertExpectations(t)
}

func TestIngest_RetriesOnMergeConflict(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	target := robert()
	target.ID = "r-1"
	target.CardID = "card-1"
	target.Version = 1
	target.UpdatedAt = t0

	ms.On("GetRecordBySource", mock.Anything, identity.SourceSkiptrace, "s-1").Return(nil, nil).Once()
	ms.On("FetchCandidates", mock.Anything, mock.Anything).Return([]identity.IdentityRecord{target}, nil)
	ms.On("ApplyMerge", mock.Anything, mock.Anything).
		Return(eris.Wrap(dedup.ErrMergeConflict, "stale")).Once()
	ms.On("ApplyMerge", mock.Anything, mock.Anything).Return(nil).Once()
	ms.On("CreateRecord", mock.Anything, mock.MatchedBy(func(r identity.IdentityRecord) bool {
		return r.CardID == "card-1" && r.SourceID == "s-1"
	})).Return(nil).Once()
	existing := leadcard.New("card-1", target, t0)
	existing.Version = 4
	ms.On("GetCard", mock.Anything, "card-1").Return(&existing, nil).Once()
	ms.On("UpdateCard", mock.Anything, mock.Anything, int64(4)).Return(nil).Once()

	out, err := p.Ingest(context.Background(), bob())
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, out.Action)
	assert.Equal(t, "card-1", out.CardID)
	ms.AssertNumberOfCalls(t, "ApplyMerge", 2)
	ms.AssertNumberOfCalls(t, "FetchCandidates", 2)
	ms.AssertExpectations(t)
}

func TestIngest_ConflictRetriesExhausted(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	target := robert()
	target.ID = "r-1"
	target.CardID = "card-1"
	target.Version = 1

	ms.On("GetRecordBySource", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	ms.On("FetchCandidates", mock.Anything, mock.Anything).Return([]identity.IdentityRecord{target}, nil)
	ms.On("ApplyMerge", mock.Anything, mock.Anything).Return(eris.Wrap(dedup.ErrMergeConflict, "stale"))

	_, err := p.Ingest(context.Background(), bob())
	require.Error(t, err)
	assert.True(t, errors.Is(err, dedup.ErrMergeConflict))
	ms.AssertNumberOfCalls(t, "ApplyMerge", 4)
	ms.AssertNotCalled(t, "CreateRecord", mock.Anything, mock.Anything)
}

func TestIngest_LookupFailureIsNotCreateNew(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	ms.On("GetRecordBySource", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	ms.On("FetchCandidates", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := p.Ingest(context.Background(), robert())
	require.Error(t, err)
	assert.True(t, dedup.IsLookupError(err))
	ms.AssertNotCalled(t, "CreateRecord", mock.Anything, mock.Anything)
}

func TestIngest_LostSourceRace(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	winner := robert()
	winner.ID = "r-9"
	winner.CardID = "card-9"

	ms.On("GetRecordBySource", mock.Anything, identity.SourceConsumer, "c-1").Return(nil, nil).Once()
	ms.On("FetchCandidates", mock.Anything, mock.Anything).Return([]identity.IdentityRecord{}, nil)
	ms.On("CreateRecord", mock.Anything, mock.Anything).
		Return(eris.Wrap(store.ErrDuplicateSource, "consumer:c-1")).Once()
	ms.On("GetRecordBySource", mock.Anything, identity.SourceConsumer, "c-1").Return(&winner, nil).Once()

	out, err := p.Ingest(context.Background(), robert())
	require.NoError(t, err)
	assert.Equal(t, ActionDuplicate, out.Action)
	assert.Equal(t, "r-9", out.RecordID)
	assert.Equal(t, "card-9", out.CardID)
	ms.AssertNotCalled(t, "CreateCard", mock.Anything, mock.Anything)
}

func TestDecideReview_NotPending(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	ms.On("GetReview", mock.Anything, "rv-1").Return(&store.Review{ID: "rv-1", Status: store.ReviewApproved}, nil)

	_, err := p.DecideReview(context.Background(), "rv-1", true)
	assert.True(t, errors.Is(err, store.ErrReviewClosed))
	ms.AssertNotCalled(t, "UpdateReviewStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
