package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/leadcard"
	"github.com/sells-group/lead-identity/internal/resilience"
	"github.com/sells-group/lead-identity/internal/store"
)

func TestDefer_LookupFailureIsTransient(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	ms.On("EnqueueDLQ", mock.Anything, mock.MatchedBy(func(e resilience.DLQEntry) bool {
		return e.ID == "id-1" &&
			e.ErrorType == resilience.ErrorTransient &&
			e.MaxRetries == DefaultMaxRetries &&
			e.Record.SourceID == "c-1"
	})).Return(nil).Once()

	err := p.Defer(context.Background(), robert(), &dedup.LookupError{Err: errors.New("too many clients")})
	require.NoError(t, err)
	ms.AssertExpectations(t)
}

func TestDefer_PermanentFailureGetsNoRetries(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	ms.On("EnqueueDLQ", mock.Anything, mock.MatchedBy(func(e resilience.DLQEntry) bool {
		return e.ErrorType == resilience.ErrorPermanent && e.MaxRetries == 0
	})).Return(nil).Once()

	require.NoError(t, p.Defer(context.Background(), robert(), errors.New("payload too large")))
	ms.AssertExpectations(t)
}

func TestRetryFailed_ReingestsAndRemoves(t *testing.T) {
	p, st := newSQLitePipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Defer(ctx, robert(), resilience.NewTransientError(errors.New("database is locked"))))
	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	stats, err := p.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, RetryStats{Attempted: 1, Succeeded: 1, Failed: 0, Remaining: 0}, stats)

	rec, err := st.GetRecordBySource(ctx, identity.SourceConsumer, "c-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.CardID)
}

func TestRetryFailed_ReschedulesFailures(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	due := resilience.DLQEntry{ID: "d-1", Record: robert(), ErrorType: resilience.ErrorTransient, RetryCount: 1, MaxRetries: 3}
	spent := resilience.DLQEntry{ID: "d-2", Record: bob(), ErrorType: resilience.ErrorTransient, RetryCount: 3, MaxRetries: 3}

	ms.On("DequeueDLQ", mock.Anything, resilience.DLQFilter{Limit: 5}).Return([]resilience.DLQEntry{due, spent}, nil)
	ms.On("GetRecordBySource", mock.Anything, identity.SourceConsumer, "c-1").Return(nil, errors.New("conn closed"))
	ms.On("IncrementDLQRetry", mock.Anything, "d-1", mock.Anything, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "check source")
	})).Return(nil).Once()
	ms.On("CountDLQ", mock.Anything).Return(2, nil)

	stats, err := p.RetryFailed(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, RetryStats{Attempted: 1, Succeeded: 0, Failed: 1, Remaining: 2}, stats)
	ms.AssertNotCalled(t, "GetRecordBySource", mock.Anything, identity.SourceSkiptrace, "s-1")
	ms.AssertNotCalled(t, "RemoveDLQ", mock.Anything, mock.Anything)
	ms.AssertExpectations(t)
}

func TestAssignCampaign(t *testing.T) {
	p, st := newSQLitePipeline(t)
	ctx := context.Background()

	out, err := p.Ingest(ctx, robert())
	require.NoError(t, err)

	card, err := p.AssignCampaign(ctx, out.CardID, "spring-roofing")
	require.NoError(t, err)
	require.NotNil(t, card.Campaign)
	assert.Equal(t, "spring-roofing", card.Campaign.CampaignID)

	stored, err := st.GetCard(ctx, out.CardID)
	require.NoError(t, err)
	require.NotNil(t, stored.Campaign)
	assert.Equal(t, "spring-roofing", stored.Campaign.CampaignID)
	assert.Equal(t, card.Version, stored.Version)
}

func TestAssignCampaign_RetriesOnCardConflict(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	rec := robert()
	rec.ID = "r-1"
	first := leadcard.New("card-1", rec, t0)
	first.Version = 2
	second := first
	second.Version = 3

	ms.On("GetCard", mock.Anything, "card-1").Return(&first, nil).Once()
	ms.On("UpdateCard", mock.Anything, mock.Anything, int64(2)).Return(eris.Wrap(dedup.ErrMergeConflict, "stale card")).Once()
	ms.On("GetCard", mock.Anything, "card-1").Return(&second, nil).Once()
	ms.On("UpdateCard", mock.Anything, mock.Anything, int64(3)).Return(nil).Once()

	card, err := p.AssignCampaign(context.Background(), "card-1", "spring-roofing")
	require.NoError(t, err)
	assert.Equal(t, int64(4), card.Version)
	ms.AssertExpectations(t)
}

func TestAssignCampaign_Errors(t *testing.T) {
	ms := new(mockStore)
	p := newPipeline(t, ms)

	_, err := p.AssignCampaign(context.Background(), "card-1", "")
	assert.True(t, errors.Is(err, ErrInvalidRecord))

	ms.On("GetCard", mock.Anything, "missing").Return(nil, store.ErrNotFound)
	_, err = p.AssignCampaign(context.Background(), "missing", "spring-roofing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	ms.AssertNumberOfCalls(t, "GetCard", 1)
}
