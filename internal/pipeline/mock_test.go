package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/leadcard"
	"github.com/sells-group/lead-identity/internal/resilience"
	"github.com/sells-group/lead-identity/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FetchCandidates(ctx context.Context, hints identity.QueryHints) ([]identity.IdentityRecord, error) {
	args := m.Called(ctx, hints)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]identity.IdentityRecord), args.Error(1)
}

func (m *mockStore) ApplyMerge(ctx context.Context, req dedup.MergeRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *mockStore) GetRecordBySource(ctx context.Context, sourceType identity.SourceType, sourceID string) (*identity.IdentityRecord, error) {
	args := m.Called(ctx, sourceType, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.IdentityRecord), args.Error(1)
}

func (m *mockStore) GetRecord(ctx context.Context, id string) (*identity.IdentityRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.IdentityRecord), args.Error(1)
}

func (m *mockStore) CreateRecord(ctx context.Context, rec identity.IdentityRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) AttachRecord(ctx context.Context, recordID, cardID string) error {
	args := m.Called(ctx, recordID, cardID)
	return args.Error(0)
}

func (m *mockStore) SeedRecords(ctx context.Context, recs []identity.IdentityRecord) (int64, error) {
	args := m.Called(ctx, recs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) GetCard(ctx context.Context, id string) (*leadcard.UnifiedLeadCard, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*leadcard.UnifiedLeadCard), args.Error(1)
}

func (m *mockStore) CreateCard(ctx context.Context, card leadcard.UnifiedLeadCard) error {
	args := m.Called(ctx, card)
	return args.Error(0)
}

func (m *mockStore) UpdateCard(ctx context.Context, card leadcard.UnifiedLeadCard, expectedVersion int64) error {
	args := m.Called(ctx, card, expectedVersion)
	return args.Error(0)
}

func (m *mockStore) CreateReview(ctx context.Context, r store.Review) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockStore) GetReview(ctx context.Context, id string) (*store.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Review), args.Error(1)
}

func (m *mockStore) ListReviews(ctx context.Context, status store.ReviewStatus, limit int) ([]store.Review, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Review), args.Error(1)
}

func (m *mockStore) UpdateReviewStatus(ctx context.Context, id string, status store.ReviewStatus, decidedAt time.Time) error {
	args := m.Called(ctx, id, status, decidedAt)
	return args.Error(0)
}

func (m *mockStore) ReopenReview(ctx context.Context, id string, from store.ReviewStatus) error {
	args := m.Called(ctx, id, from)
	return args.Error(0)
}

func (m *mockStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resilience.DLQEntry), args.Error(1)
}

func (m *mockStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	args := m.Called(ctx, id, nextRetryAt, lastErr)
	return args.Error(0)
}

func (m *mockStore) RemoveDLQ(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) CountDLQ(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
