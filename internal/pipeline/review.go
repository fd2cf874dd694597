package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/leadcard"
	"github.com/sells-group/lead-identity/internal/resilience"
	"github.com/sells-group/lead-identity/internal/store"
)

// DecideReview closes a pending review. Approving merges the held record into
// the target's identity and card; rejecting gives the held record its own
// card. Deciding a review twice fails with store.ErrReviewClosed. When the
// merge or card creation fails the review is reopened so the decision can be
// retried.
func (p *Pipeline) DecideReview(ctx context.Context, reviewID string, approve bool) (*Outcome, error) {
	review, err := p.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: get review %s", reviewID)
	}
	if review.Status != store.ReviewPending {
		return nil, eris.Wrapf(store.ErrReviewClosed, "pipeline: review %s is %s", reviewID, review.Status)
	}

	status := store.ReviewRejected
	if approve {
		status = store.ReviewApproved
	}
	if err := p.store.UpdateReviewStatus(ctx, reviewID, status, p.now().UTC()); err != nil {
		return nil, eris.Wrapf(err, "pipeline: decide review %s", reviewID)
	}

	out, err := p.applyDecision(ctx, *review, approve)
	if err != nil {
		if rerr := p.store.ReopenReview(context.WithoutCancel(ctx), reviewID, status); rerr != nil {
			zap.L().Error("pipeline: reopen review failed",
				zap.String("review_id", reviewID),
				zap.Error(rerr),
			)
		}
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) applyDecision(ctx context.Context, review store.Review, approve bool) (*Outcome, error) {
	reviewID := review.ID
	rec, err := p.store.GetRecord(ctx, review.RecordID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load held record %s", review.RecordID)
	}

	log := zap.L().With(
		zap.String("review_id", reviewID),
		zap.String("record_id", rec.ID),
		zap.String("target_id", review.TargetID),
	)

	if !approve {
		cardID := p.newID()
		rec.CardID = cardID
		if err := p.store.CreateCard(ctx, leadcard.New(cardID, *rec, p.now().UTC())); err != nil {
			return nil, eris.Wrapf(err, "pipeline: create card for %s", rec.ID)
		}
		if err := p.store.AttachRecord(ctx, rec.ID, cardID); err != nil {
			return nil, eris.Wrapf(err, "pipeline: attach %s", rec.ID)
		}
		log.Info("pipeline: review rejected", zap.String("card_id", cardID))
		return &Outcome{Action: ActionCreated, RecordID: rec.ID, CardID: cardID, ReviewID: reviewID}, nil
	}

	cfg := resilience.ConflictRetryConfig(p.retries, isConflict)
	cfg.OnRetry = resilience.RetryLogger("pipeline", "approve review")

	var updates []dedup.FieldUpdate
	var cardID string
	err = resilience.Do(ctx, cfg, func(ctx context.Context) error {
		target, err := p.store.GetRecord(ctx, review.TargetID)
		if err != nil {
			return err
		}
		am := dedup.AutoMerge{TargetID: target.ID, Target: *target, Result: review.Result}
		if updates, err = p.svc.Commit(ctx, *rec, am); err != nil {
			return err
		}
		cardID, err = p.ensureCard(ctx, *target)
		return err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: approve review %s", reviewID)
	}

	if err := p.store.AttachRecord(ctx, rec.ID, cardID); err != nil {
		return nil, eris.Wrapf(err, "pipeline: attach %s", rec.ID)
	}
	rec.CardID = cardID
	if err := p.mergeCard(ctx, cardID, *rec); err != nil {
		return nil, err
	}

	log.Info("pipeline: review approved", zap.String("card_id", cardID), zap.Int("updates", len(updates)))
	return &Outcome{
		Action:     ActionMerged,
		RecordID:   rec.ID,
		CardID:     cardID,
		TargetID:   review.TargetID,
		ReviewID:   reviewID,
		Score:      review.Score,
		Confidence: review.Result.Confidence,
		Updates:    updates,
	}, nil
}

// PendingReviews lists reviews awaiting a decision, oldest first.
func (p *Pipeline) PendingReviews(ctx context.Context, limit int) ([]store.Review, error) {
	reviews, err := p.store.ListReviews(ctx, store.ReviewPending, limit)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list reviews")
	}
	return reviews, nil
}

// Card returns a lead card by ID.
func (p *Pipeline) Card(ctx context.Context, id string) (*leadcard.UnifiedLeadCard, error) {
	card, err := p.store.GetCard(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: get card %s", id)
	}
	return card, nil
}

// AssignCampaign records a campaign assignment on a card, retrying when a
// concurrent writer bumped the card version.
func (p *Pipeline) AssignCampaign(ctx context.Context, cardID, campaignID string) (*leadcard.UnifiedLeadCard, error) {
	if campaignID == "" {
		return nil, eris.Wrap(ErrInvalidRecord, "pipeline: campaign id is required")
	}

	cfg := resilience.ConflictRetryConfig(p.retries, isConflict)
	cfg.OnRetry = resilience.RetryLogger("pipeline", "assign campaign")

	card, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*leadcard.UnifiedLeadCard, error) {
		card, err := p.store.GetCard(ctx, cardID)
		if err != nil {
			return nil, err
		}
		assigned := leadcard.Assign(*card, campaignID, p.now().UTC())
		if err := p.store.UpdateCard(ctx, assigned, card.Version); err != nil {
			return nil, err
		}
		assigned.Version = card.Version + 1
		return &assigned, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: assign card %s", cardID)
	}

	zap.L().Info("pipeline: card assigned",
		zap.String("card_id", cardID),
		zap.String("campaign_id", campaignID),
	)
	return card, nil
}
