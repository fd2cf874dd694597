package dedup

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-identity/internal/config"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/match"
	"github.com/sells-group/lead-identity/internal/normalize"
)

// DefaultMaxCandidates bounds how many candidates are scored per record.
const DefaultMaxCandidates = 50

// Service resolves incoming records against stored identities.
type Service struct {
	matcher       *match.Matcher
	lookup        CandidateLookup
	committer     MergeCommitter
	maxCandidates int
	now           func() time.Time
}

// New validates cfg and returns a Service. An invalid config is reported as
// an error wrapping match.ErrInvalidConfig.
func New(cfg config.MergeConfig, lookup CandidateLookup, committer MergeCommitter) (*Service, error) {
	if err := match.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if lookup == nil {
		return nil, eris.New("dedup: candidate lookup is required")
	}

	maxCandidates := cfg.MaxCandidates
	if maxCandidates == 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &Service{
		matcher:       match.New(cfg),
		lookup:        lookup,
		committer:     committer,
		maxCandidates: maxCandidates,
		now:           time.Now,
	}, nil
}

// Matcher returns the matcher the service scores with.
func (s *Service) Matcher() *match.Matcher {
	return s.matcher
}

// Resolve decides what to do with rec. Lookup failures are returned as a
// *LookupError rather than a CreateNew decision.
func (s *Service) Resolve(ctx context.Context, rec identity.IdentityRecord) (Decision, error) {
	log := zap.L().With(zap.String("record_id", rec.ID), zap.String("source", rec.SourceKey()))

	hints := normalize.Hints(rec)
	logDegraded(log, rec, hints)
	if hints.Empty() {
		log.Debug("dedup: no identifying fields")
		return CreateNew{Reason: ReasonNoIdentifyingFields}, nil
	}

	candidates, err := s.lookup.FetchCandidates(ctx, hints)
	if err != nil {
		return nil, &LookupError{Err: err}
	}

	candidates = slices.DeleteFunc(slices.Clone(candidates), func(c identity.IdentityRecord) bool {
		return (rec.ID != "" && c.ID == rec.ID) || (rec.SourceID != "" && c.SourceKey() == rec.SourceKey())
	})
	if len(candidates) > s.maxCandidates {
		log.Warn("dedup: candidate set truncated",
			zap.Int("candidates", len(candidates)),
			zap.Int("max", s.maxCandidates),
		)
		candidates = candidates[:s.maxCandidates]
	}
	if len(candidates) == 0 {
		log.Debug("dedup: no candidates")
		return CreateNew{Reason: ReasonNoCandidates}, nil
	}

	type scored struct {
		target identity.IdentityRecord
		result identity.IdentityMatchResult
	}
	results := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, scored{target: c, result: s.matcher.Score(rec, c)})
	}
	slices.SortStableFunc(results, func(a, b scored) int {
		if c := cmp.Compare(b.result.OverallScore, a.result.OverallScore); c != 0 {
			return c
		}
		if c := b.target.UpdatedAt.Compare(a.target.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.target.ID, b.target.ID)
	})

	best := results[0]
	log.Debug("dedup: best candidate",
		zap.String("target_id", best.target.ID),
		zap.Float64("score", best.result.OverallScore),
		zap.String("confidence", string(best.result.Confidence)),
		zap.Int("candidates", len(results)),
	)

	if !match.AtLeast(best.result.OverallScore, s.matcher.Config().MinMatchScore) {
		return CreateNew{Reason: ReasonBelowMinScore, Best: &best.result}, nil
	}
	switch best.result.Confidence {
	case identity.ConfidenceHigh:
		return AutoMerge{TargetID: best.target.ID, Target: best.target, Result: best.result}, nil
	case identity.ConfidenceMedium:
		return ReviewRequired{TargetID: best.target.ID, Target: best.target, Result: best.result}, nil
	default:
		return CreateNew{Reason: ReasonLowConfidence, Best: &best.result}, nil
	}
}

// Commit fills the target's empty fields from incoming, conditioned on the
// target's version at resolve time. It returns the applied updates; no
// updates means nothing was written. A stale target surfaces as an error
// wrapping ErrMergeConflict.
func (s *Service) Commit(ctx context.Context, incoming identity.IdentityRecord, am AutoMerge) ([]FieldUpdate, error) {
	if s.committer == nil {
		return nil, eris.New("dedup: merge committer is required to commit")
	}

	updates := PlanMerge(am.Target, incoming, incoming.SourceKey(), s.now().UTC())
	if len(updates) == 0 {
		zap.L().Debug("dedup: nothing to merge",
			zap.String("record_id", incoming.ID),
			zap.String("target_id", am.TargetID),
		)
		return nil, nil
	}

	req := MergeRequest{
		TargetID:        am.TargetID,
		ExpectedVersion: am.Target.Version,
		Updates:         updates,
		Provenance: Provenance{
			RecordID:   incoming.ID,
			SourceType: incoming.SourceType,
			SourceID:   incoming.SourceID,
			MatchScore: am.Result.OverallScore,
		},
	}
	if err := s.committer.ApplyMerge(ctx, req); err != nil {
		return nil, eris.Wrapf(err, "dedup: commit merge into %s", am.TargetID)
	}

	zap.L().Debug("dedup: merged",
		zap.String("record_id", incoming.ID),
		zap.String("target_id", am.TargetID),
		zap.Int("updates", len(updates)),
	)
	return updates, nil
}

// logDegraded notes channel values dropped by normalization.
func logDegraded(log *zap.Logger, rec identity.IdentityRecord, hints identity.QueryHints) {
	if dropped := len(rec.Phones) - len(hints.Phones); dropped > 0 {
		log.Debug("dedup: dropped invalid phones", zap.Int("dropped", dropped))
	}
	if dropped := len(rec.Emails) - len(hints.Emails); dropped > 0 {
		log.Debug("dedup: dropped invalid emails", zap.Int("dropped", dropped))
	}
}
