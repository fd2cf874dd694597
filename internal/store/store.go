// Package store persists identity records, lead cards, merge reviews and the
// ingest dead-letter queue. It serves as the candidate lookup and merge
// committer for the resolution policy.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-identity/internal/config"
	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/leadcard"
	"github.com/sells-group/lead-identity/internal/normalize"
	"github.com/sells-group/lead-identity/internal/resilience"
)

// CandidateLimit caps FetchCandidates results.
const CandidateLimit = 50

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = eris.New("store: not found")

	// ErrDuplicateSource is returned when a record with the same source
	// type and source ID already exists.
	ErrDuplicateSource = eris.New("store: duplicate source record")

	// ErrReviewClosed is returned when deciding a review that is no longer
	// pending.
	ErrReviewClosed = eris.New("store: review already decided")
)

// ReviewStatus is the state of a merge review.
type ReviewStatus string

// Review statuses. Reviews move from pending to exactly one of approved or
// rejected.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Review is a held match awaiting a human decision.
type Review struct {
	ID        string                       `json:"id"`
	RecordID  string                       `json:"record_id"`
	TargetID  string                       `json:"target_id"`
	Score     float64                      `json:"score"`
	Result    identity.IdentityMatchResult `json:"result"`
	Status    ReviewStatus                 `json:"status"`
	CreatedAt time.Time                    `json:"created_at"`
	DecidedAt *time.Time                   `json:"decided_at,omitempty"`
}

// Store defines the persistence interface for identity resolution.
type Store interface {
	dedup.CandidateLookup
	dedup.MergeCommitter

	// Records
	GetRecordBySource(ctx context.Context, sourceType identity.SourceType, sourceID string) (*identity.IdentityRecord, error)
	GetRecord(ctx context.Context, id string) (*identity.IdentityRecord, error)
	CreateRecord(ctx context.Context, rec identity.IdentityRecord) error
	AttachRecord(ctx context.Context, recordID, cardID string) error
	SeedRecords(ctx context.Context, recs []identity.IdentityRecord) (int64, error)

	// Cards
	GetCard(ctx context.Context, id string) (*leadcard.UnifiedLeadCard, error)
	CreateCard(ctx context.Context, card leadcard.UnifiedLeadCard) error
	UpdateCard(ctx context.Context, card leadcard.UnifiedLeadCard, expectedVersion int64) error

	// Reviews
	CreateReview(ctx context.Context, r Review) error
	GetReview(ctx context.Context, id string) (*Review, error)
	ListReviews(ctx context.Context, status ReviewStatus, limit int) ([]Review, error)
	UpdateReviewStatus(ctx context.Context, id string, status ReviewStatus, decidedAt time.Time) error
	ReopenReview(ctx context.Context, id string, from ReviewStatus) error

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "":
		st, err := NewPostgres(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite":
		st, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// Identity key kinds.
const (
	keyPhone    = "phone"
	keyEmail    = "email"
	keyLastName = "last_name"
)

type identityKey struct {
	kind  string
	value string
}

// recordKeys derives the lookup keys stored for a record. They match the
// hints normalize.Hints builds for an incoming record.
func recordKeys(rec identity.IdentityRecord) []identityKey {
	h := normalize.Hints(rec)
	keys := make([]identityKey, 0, len(h.Phones)+len(h.Emails)+1)
	for _, p := range h.Phones {
		keys = append(keys, identityKey{keyPhone, p})
	}
	for _, e := range h.Emails {
		keys = append(keys, identityKey{keyEmail, e})
	}
	if h.LastName != "" {
		keys = append(keys, identityKey{keyLastName, h.LastName})
	}
	return keys
}

// recordPayload is the JSON document stored for a record. Storage metadata
// lives in columns.
func recordPayload(rec identity.IdentityRecord) ([]byte, error) {
	rec.ID, rec.CardID, rec.Version = "", "", 0
	rec.CreatedAt, rec.UpdatedAt = time.Time{}, time.Time{}
	b, err := json.Marshal(rec)
	return b, eris.Wrap(err, "store: marshal record")
}

type recordRow struct {
	id        string
	data      []byte
	cardID    string
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

func (r recordRow) record() (identity.IdentityRecord, error) {
	var rec identity.IdentityRecord
	if err := json.Unmarshal(r.data, &rec); err != nil {
		return rec, eris.Wrapf(err, "store: unmarshal record %s", r.id)
	}
	rec.ID = r.id
	rec.CardID = r.cardID
	rec.Version = r.version
	rec.CreatedAt = r.createdAt
	rec.UpdatedAt = r.updatedAt
	return rec, nil
}

// provenanceRows flattens a merge request into field_provenance rows.
func provenanceRows(recordID string, req dedup.MergeRequest) [][]any {
	rows := make([][]any, 0, len(req.Updates))
	for _, u := range req.Updates {
		rows = append(rows, []any{recordID, u.Field, u.DisplayValue(), u.Source, req.Provenance.MatchScore, u.WrittenAt})
	}
	return rows
}

var provenanceColumns = []string{"record_id", "field", "value", "source", "match_score", "written_at"}

func conflictErr(id string, expected int64) error {
	return eris.Wrapf(dedup.ErrMergeConflict, "store: %s at version %d", id, expected)
}
