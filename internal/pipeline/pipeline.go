// Package pipeline ingests identity records: it resolves each record against
// stored identities, commits auto-merges, unifies lead cards and holds
// medium-confidence matches for review.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/leadcard"
	"github.com/sells-group/lead-identity/internal/resilience"
	"github.com/sells-group/lead-identity/internal/store"
)

// Action is what Ingest did with a record.
type Action string

// Ingest actions.
const (
	ActionCreated   Action = "created"
	ActionMerged    Action = "merged"
	ActionReview    Action = "review"
	ActionDuplicate Action = "duplicate"
)

// Outcome reports the result of ingesting one record.
type Outcome struct {
	Action     Action              `json:"action"`
	RecordID   string              `json:"record_id"`
	CardID     string              `json:"card_id,omitempty"`
	TargetID   string              `json:"target_id,omitempty"`
	ReviewID   string              `json:"review_id,omitempty"`
	Score      float64             `json:"score,omitempty"`
	Confidence identity.Confidence `json:"confidence,omitempty"`
	Reason     dedup.CreateReason  `json:"reason,omitempty"`
	Updates    []dedup.FieldUpdate `json:"updates,omitempty"`
}

// ErrInvalidRecord is returned for records that cannot be ingested.
var ErrInvalidRecord = eris.New("pipeline: invalid record")

// Options tunes a Pipeline. Zero values select defaults.
type Options struct {
	// ConflictRetries is how many times a record is re-resolved after its
	// merge target changed underneath it. Default: 3.
	ConflictRetries int

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	// NewID generates record, card and review IDs. Default: uuid.NewString.
	NewID func() string
}

// Pipeline orchestrates resolution, merge commits and card unification.
type Pipeline struct {
	store   store.Store
	svc     *dedup.Service
	retries int
	now     func() time.Time
	newID   func() string
}

// New creates a Pipeline over st, resolving with svc.
func New(st store.Store, svc *dedup.Service, opts Options) *Pipeline {
	p := &Pipeline{
		store:   st,
		svc:     svc,
		retries: opts.ConflictRetries,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if p.retries <= 0 {
		p.retries = 3
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	return p
}

// Resolve returns the decision for rec without writing anything.
func (p *Pipeline) Resolve(ctx context.Context, rec identity.IdentityRecord) (dedup.Decision, error) {
	d, err := p.svc.Resolve(ctx, rec)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve")
	}
	return d, nil
}

// Ingest resolves rec and persists the result. A record whose source key was
// already ingested is reported as a duplicate and not re-processed. When a
// merge target changes between resolution and commit the record is resolved
// again, up to the configured number of retries.
func (p *Pipeline) Ingest(ctx context.Context, rec identity.IdentityRecord) (*Outcome, error) {
	if !rec.SourceType.Valid() {
		return nil, eris.Wrapf(ErrInvalidRecord, "pipeline: invalid source type %q", rec.SourceType)
	}
	if rec.SourceID == "" {
		rec.SourceID = p.newID()
	}

	existing, err := p.store.GetRecordBySource(ctx, rec.SourceType, rec.SourceID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: check source")
	}
	if existing != nil {
		return duplicate(*existing), nil
	}

	now := p.now().UTC()
	if rec.ID == "" {
		rec.ID = p.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Version = 1
	rec.CardID = ""

	cfg := resilience.ConflictRetryConfig(p.retries, isConflict)
	cfg.OnRetry = resilience.RetryLogger("pipeline", "ingest")

	out, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*Outcome, error) {
		return p.ingestOnce(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("pipeline: ingested",
		zap.String("record_id", out.RecordID),
		zap.String("source", rec.SourceKey()),
		zap.String("action", string(out.Action)),
		zap.String("card_id", out.CardID),
	)
	return out, nil
}

func (p *Pipeline) ingestOnce(ctx context.Context, rec identity.IdentityRecord) (*Outcome, error) {
	decision, err := p.svc.Resolve(ctx, rec)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve")
	}

	switch d := decision.(type) {
	case dedup.CreateNew:
		return p.createNew(ctx, rec, d)
	case dedup.AutoMerge:
		return p.autoMerge(ctx, rec, d)
	case dedup.ReviewRequired:
		return p.holdForReview(ctx, rec, d)
	default:
		return nil, eris.Errorf("pipeline: unexpected decision %T", decision)
	}
}

func (p *Pipeline) createNew(ctx context.Context, rec identity.IdentityRecord, d dedup.CreateNew) (*Outcome, error) {
	rec.CardID = p.newID()
	if err := p.store.CreateRecord(ctx, rec); err != nil {
		return p.createFailed(ctx, rec, err)
	}

	card := leadcard.New(rec.CardID, rec, p.now().UTC())
	if err := p.store.CreateCard(ctx, card); err != nil {
		return nil, eris.Wrapf(err, "pipeline: create card for %s", rec.ID)
	}

	out := &Outcome{Action: ActionCreated, RecordID: rec.ID, CardID: rec.CardID, Reason: d.Reason}
	if d.Best != nil {
		out.TargetID = d.Best.TargetID
		out.Score = d.Best.OverallScore
		out.Confidence = d.Best.Confidence
	}
	return out, nil
}

func (p *Pipeline) autoMerge(ctx context.Context, rec identity.IdentityRecord, am dedup.AutoMerge) (*Outcome, error) {
	updates, err := p.svc.Commit(ctx, rec, am)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: auto-merge")
	}

	cardID, err := p.ensureCard(ctx, am.Target)
	if err != nil {
		return nil, err
	}

	rec.CardID = cardID
	if err := p.store.CreateRecord(ctx, rec); err != nil {
		return p.createFailed(ctx, rec, err)
	}
	if err := p.mergeCard(ctx, cardID, rec); err != nil {
		return nil, err
	}

	return &Outcome{
		Action:     ActionMerged,
		RecordID:   rec.ID,
		CardID:     cardID,
		TargetID:   am.TargetID,
		Score:      am.Result.OverallScore,
		Confidence: am.Result.Confidence,
		Updates:    updates,
	}, nil
}

func (p *Pipeline) holdForReview(ctx context.Context, rec identity.IdentityRecord, rr dedup.ReviewRequired) (*Outcome, error) {
	if err := p.store.CreateRecord(ctx, rec); err != nil {
		return p.createFailed(ctx, rec, err)
	}

	review := store.Review{
		ID:        p.newID(),
		RecordID:  rec.ID,
		TargetID:  rr.TargetID,
		Score:     rr.Result.OverallScore,
		Result:    rr.Result,
		Status:    store.ReviewPending,
		CreatedAt: p.now().UTC(),
	}
	if err := p.store.CreateReview(ctx, review); err != nil {
		return nil, eris.Wrapf(err, "pipeline: create review for %s", rec.ID)
	}

	zap.L().Info("pipeline: match held for review",
		zap.String("record_id", rec.ID),
		zap.String("target_id", rr.TargetID),
		zap.Float64("score", rr.Result.OverallScore),
	)
	return &Outcome{
		Action:     ActionReview,
		RecordID:   rec.ID,
		TargetID:   rr.TargetID,
		ReviewID:   review.ID,
		Score:      rr.Result.OverallScore,
		Confidence: rr.Result.Confidence,
	}, nil
}

// createFailed turns a lost race on the source key into a duplicate outcome.
func (p *Pipeline) createFailed(ctx context.Context, rec identity.IdentityRecord, err error) (*Outcome, error) {
	if !errors.Is(err, store.ErrDuplicateSource) {
		return nil, eris.Wrapf(err, "pipeline: create record %s", rec.ID)
	}
	existing, lookupErr := p.store.GetRecordBySource(ctx, rec.SourceType, rec.SourceID)
	if lookupErr != nil || existing == nil {
		return &Outcome{Action: ActionDuplicate, RecordID: rec.ID}, nil
	}
	return duplicate(*existing), nil
}

// ensureCard returns the card of target, creating one when target has none.
func (p *Pipeline) ensureCard(ctx context.Context, target identity.IdentityRecord) (string, error) {
	if target.CardID != "" {
		return target.CardID, nil
	}

	cardID := p.newID()
	card := leadcard.New(cardID, target, p.now().UTC())
	if err := p.store.CreateCard(ctx, card); err != nil {
		return "", eris.Wrapf(err, "pipeline: create card for %s", target.ID)
	}
	if err := p.store.AttachRecord(ctx, target.ID, cardID); err != nil {
		return "", eris.Wrapf(err, "pipeline: attach %s", target.ID)
	}
	return cardID, nil
}

// mergeCard folds rec into the card, retrying when a concurrent writer bumped
// the card version. A missing card is recreated from rec.
func (p *Pipeline) mergeCard(ctx context.Context, cardID string, rec identity.IdentityRecord) error {
	cfg := resilience.ConflictRetryConfig(p.retries, isConflict)
	cfg.OnRetry = resilience.RetryLogger("pipeline", "update card")

	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		card, err := p.store.GetCard(ctx, cardID)
		if errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("pipeline: card missing, recreating", zap.String("card_id", cardID))
			return p.store.CreateCard(ctx, leadcard.New(cardID, rec, p.now().UTC()))
		}
		if err != nil {
			return err
		}
		merged := leadcard.MergeIntoCard(*card, rec, p.now().UTC())
		return p.store.UpdateCard(ctx, merged, card.Version)
	})
	return eris.Wrapf(err, "pipeline: merge %s into card %s", rec.ID, cardID)
}

func duplicate(existing identity.IdentityRecord) *Outcome {
	return &Outcome{Action: ActionDuplicate, RecordID: existing.ID, CardID: existing.CardID}
}

func isConflict(err error) bool {
	return errors.Is(err, dedup.ErrMergeConflict)
}
