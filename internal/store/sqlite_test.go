package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/leadcard"
	"github.com/sells-group/lead-identity/internal/resilience"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRecord(id, sourceID string, updated time.Time) identity.IdentityRecord {
	return identity.IdentityRecord{
		ID:         id,
		SourceType: identity.SourceConsumer,
		SourceID:   sourceID,
		FirstName:  "Robert",
		LastName:   "Smith",
		Phones:     []identity.Phone{{Number: "(512) 555-7199", Type: identity.PhoneMobile}},
		Emails:     []identity.Email{{Address: "rob.smith@acme.io"}},
		Version:    1,
		CreatedAt:  updated,
		UpdatedAt:  updated,
	}
}

// --- Records ---

func TestSQLite_CreateAndGetRecord(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord("r1", "c-1", t0)
	rec.CardID = "card-1"
	require.NoError(t, st.CreateRecord(ctx, rec))

	got, err := st.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Robert", got.FirstName)
	assert.Equal(t, "card-1", got.CardID)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.UpdatedAt.Equal(t0))
	assert.Equal(t, rec.Phones, got.Phones)

	bySource, err := st.GetRecordBySource(ctx, identity.SourceConsumer, "c-1")
	require.NoError(t, err)
	require.NotNil(t, bySource)
	assert.Equal(t, "r1", bySource.ID)

	missing, err := st.GetRecordBySource(ctx, identity.SourceConsumer, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = st.GetRecord(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CreateRecord_DuplicateSource(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRecord(ctx, testRecord("r1", "c-1", t0)))
	err := st.CreateRecord(ctx, testRecord("r2", "c-1", t0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateSource))
}

func TestSQLite_AttachRecord(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRecord(ctx, testRecord("r1", "c-1", t0)))
	require.NoError(t, st.AttachRecord(ctx, "r1", "card-9"))

	got, err := st.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "card-9", got.CardID)

	assert.True(t, errors.Is(st.AttachRecord(ctx, "nope", "card-9"), ErrNotFound))
}

// --- Candidates ---

func TestSQLite_FetchCandidates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	older := testRecord("r1", "c-1", t0)
	newer := identity.IdentityRecord{
		ID: "r2", SourceType: identity.SourceSkiptrace, SourceID: "s-1",
		FirstName: "Jane", LastName: "Doe",
		Emails:    []identity.Email{{Address: "rob.smith@acme.io"}},
		CreatedAt: t0.Add(time.Hour), UpdatedAt: t0.Add(time.Hour),
	}
	unrelated := identity.IdentityRecord{
		ID: "r3", SourceType: identity.SourceSkiptrace, SourceID: "s-2",
		LastName: "Jones", Phones: []identity.Phone{{Number: "3125557100"}},
		CreatedAt: t0, UpdatedAt: t0,
	}
	for _, r := range []identity.IdentityRecord{older, newer, unrelated} {
		require.NoError(t, st.CreateRecord(ctx, r))
	}

	got, err := st.FetchCandidates(ctx, identity.QueryHints{
		Phones:   []string{"5125557199"},
		Emails:   []string{"rob.smith@acme.io"},
		LastName: "smith",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r2", got[0].ID)
	assert.Equal(t, "r1", got[1].ID)

	byName, err := st.FetchCandidates(ctx, identity.QueryHints{LastName: "jones"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "r3", byName[0].ID)

	none, err := st.FetchCandidates(ctx, identity.QueryHints{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_FetchCandidates_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	recs := make([]identity.IdentityRecord, 0, CandidateLimit+5)
	for i := range CandidateLimit + 5 {
		r := identity.IdentityRecord{
			ID:         "r" + string(rune('a'+i/26)) + string(rune('a'+i%26)),
			SourceType: identity.SourceImport,
			SourceID:   "row-" + string(rune('a'+i/26)) + string(rune('a'+i%26)),
			LastName:   "Smith",
			CreatedAt:  t0,
			UpdatedAt:  t0.Add(time.Duration(i) * time.Minute),
		}
		recs = append(recs, r)
	}
	n, err := st.SeedRecords(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, int64(CandidateLimit+5), n)

	got, err := st.FetchCandidates(ctx, identity.QueryHints{LastName: "smith"})
	require.NoError(t, err)
	require.Len(t, got, CandidateLimit)
	// most recently updated first
	assert.Equal(t, recs[len(recs)-1].ID, got[0].ID)
}

func TestSQLite_SeedRecords_SkipsExisting(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRecord(ctx, testRecord("r1", "c-1", t0)))
	n, err := st.SeedRecords(ctx, []identity.IdentityRecord{
		testRecord("other-id", "c-1", t0),
		testRecord("r2", "c-2", t0),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.GetRecordBySource(ctx, identity.SourceConsumer, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
}

// --- Merge ---

func TestSQLite_ApplyMerge(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	target := testRecord("r1", "c-1", t0)
	target.Emails = nil
	require.NoError(t, st.CreateRecord(ctx, target))

	written := t0.Add(time.Hour)
	req := dedup.MergeRequest{
		TargetID:        "r1",
		ExpectedVersion: 1,
		Updates: []dedup.FieldUpdate{
			{Field: identity.FieldMiddleName, Value: "James", Source: "skiptrace:9", WrittenAt: written},
			{Field: identity.FieldEmail, Emails: []identity.Email{{Address: "bob@acme.io"}}, Source: "skiptrace:9", WrittenAt: written},
		},
		Provenance: dedup.Provenance{RecordID: "r9", SourceType: identity.SourceSkiptrace, SourceID: "9", MatchScore: 0.9},
	}
	require.NoError(t, st.ApplyMerge(ctx, req))

	got, err := st.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "James", got.MiddleName)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.UpdatedAt.Equal(written))
	require.Len(t, got.Emails, 1)

	// keys were refreshed so the new email finds the record
	cands, err := st.FetchCandidates(ctx, identity.QueryHints{Emails: []string{"bob@acme.io"}})
	require.NoError(t, err)
	require.Len(t, cands, 1)

	var count int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM field_provenance WHERE record_id = 'r1'`).Scan(&count))
	assert.Equal(t, 2, count)

	// stale version
	err = st.ApplyMerge(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dedup.ErrMergeConflict))

	req.TargetID = "missing"
	assert.True(t, errors.Is(st.ApplyMerge(ctx, req), ErrNotFound))
}

// --- Cards ---

func TestSQLite_Cards(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	card := leadcard.New("card-1", testRecord("r1", "c-1", t0), t0)
	require.NoError(t, st.CreateCard(ctx, card))

	got, err := st.GetCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "Robert Smith", got.Person.DisplayName)
	require.NotNil(t, got.PrimaryPhone)
	assert.Equal(t, "5125557199", got.PrimaryPhone.Normalized)

	updated := leadcard.Assign(*got, "spring", t0.Add(time.Hour))
	require.NoError(t, st.UpdateCard(ctx, updated, 1))

	got, err = st.GetCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	require.NotNil(t, got.Campaign)
	assert.Equal(t, "spring", got.Campaign.CampaignID)

	err = st.UpdateCard(ctx, updated, 1)
	assert.True(t, errors.Is(err, dedup.ErrMergeConflict))

	_, err = st.GetCard(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- Reviews ---

func TestSQLite_Reviews(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRecord(ctx, testRecord("r1", "c-1", t0)))
	require.NoError(t, st.CreateRecord(ctx, testRecord("r2", "c-2", t0)))

	review := Review{
		ID:        "rv-1",
		RecordID:  "r2",
		TargetID:  "r1",
		Score:     0.71,
		Result:    identity.IdentityMatchResult{SourceID: "r2", TargetID: "r1", OverallScore: 0.71, Confidence: identity.ConfidenceMedium},
		CreatedAt: t0,
	}
	require.NoError(t, st.CreateReview(ctx, review))

	got, err := st.GetReview(ctx, "rv-1")
	require.NoError(t, err)
	assert.Equal(t, ReviewPending, got.Status)
	assert.Equal(t, identity.ConfidenceMedium, got.Result.Confidence)
	assert.Nil(t, got.DecidedAt)

	pending, err := st.ListReviews(ctx, ReviewPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	decided := t0.Add(time.Hour)
	require.NoError(t, st.UpdateReviewStatus(ctx, "rv-1", ReviewApproved, decided))

	got, err = st.GetReview(ctx, "rv-1")
	require.NoError(t, err)
	assert.Equal(t, ReviewApproved, got.Status)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, got.DecidedAt.Equal(decided))

	err = st.UpdateReviewStatus(ctx, "rv-1", ReviewRejected, decided)
	assert.True(t, errors.Is(err, ErrReviewClosed))

	err = st.UpdateReviewStatus(ctx, "nope", ReviewRejected, decided)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.ReopenReview(ctx, "rv-1", ReviewRejected)
	assert.True(t, errors.Is(err, ErrReviewClosed))
	err = st.ReopenReview(ctx, "nope", ReviewApproved)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, st.ReopenReview(ctx, "rv-1", ReviewApproved))
	got, err = st.GetReview(ctx, "rv-1")
	require.NoError(t, err)
	assert.Equal(t, ReviewPending, got.Status)
	assert.Nil(t, got.DecidedAt)
	require.NoError(t, st.UpdateReviewStatus(ctx, "rv-1", ReviewRejected, decided))

	pending, err = st.ListReviews(ctx, ReviewPending, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := st.ListReviews(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// --- Dead letter queue ---

func TestSQLite_DLQ(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	entry := resilience.NewDLQEntry(testRecord("", "c-1", t0), resilience.NewTransientError(errors.New("database is locked")), 3, past)
	entry.NextRetryAt = past
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	due, err := st.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: resilience.ErrorTransient})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "c-1", due[0].Record.SourceID)

	none, err := st.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: resilience.ErrorPermanent})
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, st.IncrementDLQRetry(ctx, due[0].ID, time.Now().UTC().Add(time.Hour), "still locked"))
	notDue, err := st.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	assert.Empty(t, notDue)

	assert.True(t, errors.Is(st.IncrementDLQRetry(ctx, "nope", time.Now(), "x"), ErrNotFound))

	require.NoError(t, st.RemoveDLQ(ctx, due[0].ID))
	count, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), configFor("mysql", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), configFor("sqlite", filepath.Join(t.TempDir(), "open.db")))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.NoError(t, st.Ping(context.Background()))
}
