// Package dedup decides, for each incoming identity record, whether it
// belongs to an existing identity (auto-merge), needs a human decision
// (review) or starts a new identity.
package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/lead-identity/internal/identity"
)

// DecisionKind names a Decision variant.
type DecisionKind string

// Decision kinds.
const (
	KindCreateNew      DecisionKind = "create_new"
	KindAutoMerge      DecisionKind = "auto_merge"
	KindReviewRequired DecisionKind = "review_required"
)

// Decision is the outcome of resolving a record. It is one of CreateNew,
// AutoMerge or ReviewRequired.
type Decision interface {
	Kind() DecisionKind
	decision()
}

// CreateReason explains a CreateNew decision.
type CreateReason string

// Create reasons.
const (
	ReasonNoIdentifyingFields CreateReason = "no identifying fields"
	ReasonNoCandidates        CreateReason = "no candidates"
	ReasonBelowMinScore       CreateReason = "best score below minimum"
	ReasonLowConfidence       CreateReason = "low confidence"
)

// CreateNew means no existing identity matched well enough.
type CreateNew struct {
	Reason CreateReason `json:"reason"`
	// Best is the strongest rejected candidate match, if any was scored.
	Best *identity.IdentityMatchResult `json:"best,omitempty"`
}

// AutoMerge means the record matched Target with high confidence.
type AutoMerge struct {
	TargetID string                       `json:"target_id"`
	Target   identity.IdentityRecord      `json:"target"`
	Result   identity.IdentityMatchResult `json:"result"`
}

// ReviewRequired means the record matched Target with medium confidence.
type ReviewRequired struct {
	TargetID string                       `json:"target_id"`
	Target   identity.IdentityRecord      `json:"target"`
	Result   identity.IdentityMatchResult `json:"result"`
}

// Kind implements Decision.
func (CreateNew) Kind() DecisionKind { return KindCreateNew }

// Kind implements Decision.
func (AutoMerge) Kind() DecisionKind { return KindAutoMerge }

// Kind implements Decision.
func (ReviewRequired) Kind() DecisionKind { return KindReviewRequired }

func (CreateNew) decision()      {}
func (AutoMerge) decision()      {}
func (ReviewRequired) decision() {}

// CandidateLookup returns stored records sharing at least one hint with the
// incoming record.
type CandidateLookup interface {
	FetchCandidates(ctx context.Context, hints identity.QueryHints) ([]identity.IdentityRecord, error)
}

// MergeCommitter applies field updates to a stored record. It must reject
// the write with an error wrapping ErrMergeConflict when the record's
// version no longer equals ExpectedVersion.
type MergeCommitter interface {
	ApplyMerge(ctx context.Context, req MergeRequest) error
}

// MergeRequest is a conditional, provenance-tagged update of one record.
type MergeRequest struct {
	TargetID        string        `json:"target_id"`
	ExpectedVersion int64         `json:"expected_version"`
	Updates         []FieldUpdate `json:"updates"`
	Provenance      Provenance    `json:"provenance"`
}

// Provenance identifies the observation that caused a merge.
type Provenance struct {
	RecordID   string              `json:"record_id"`
	SourceType identity.SourceType `json:"source_type"`
	SourceID   string              `json:"source_id"`
	MatchScore float64             `json:"match_score"`
}

// FieldUpdate fills one empty field of the target record. Name parts use
// Value; channel lists use the matching slice.
type FieldUpdate struct {
	Field     string             `json:"field"`
	Value     string             `json:"value,omitempty"`
	Phones    []identity.Phone   `json:"phones,omitempty"`
	Emails    []identity.Email   `json:"emails,omitempty"`
	Addresses []identity.Address `json:"addresses,omitempty"`
	Source    string             `json:"source"`
	WrittenAt time.Time          `json:"written_at"`
}

// DisplayValue renders the update value for provenance rows and logs.
func (u FieldUpdate) DisplayValue() string {
	var parts []string
	switch u.Field {
	case identity.FieldPhone:
		for _, p := range u.Phones {
			parts = append(parts, p.Number)
		}
	case identity.FieldEmail:
		for _, e := range u.Emails {
			parts = append(parts, e.Address)
		}
	case identity.FieldAddress:
		for _, a := range u.Addresses {
			parts = append(parts, a.Street+", "+a.City+", "+a.State+" "+a.Zip)
		}
	default:
		return u.Value
	}
	return strings.Join(parts, "; ")
}
