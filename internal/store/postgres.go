package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-identity/internal/db"
	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/leadcard"
	"github.com/sells-group/lead-identity/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS identity_records (
	id          TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	data        JSONB NOT NULL,
	card_id     TEXT,
	version     BIGINT NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_type, source_id)
);

CREATE INDEX IF NOT EXISTS idx_identity_records_card_id ON identity_records(card_id);
CREATE INDEX IF NOT EXISTS idx_identity_records_updated_at ON identity_records(updated_at DESC);

CREATE TABLE IF NOT EXISTS identity_keys (
	record_id TEXT NOT NULL,
	kind      TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (record_id, kind, value)
);

CREATE INDEX IF NOT EXISTS idx_identity_keys_lookup ON identity_keys(kind, value);

CREATE TABLE IF NOT EXISTS field_provenance (
	id          BIGSERIAL PRIMARY KEY,
	record_id   TEXT NOT NULL REFERENCES identity_records(id),
	field       TEXT NOT NULL,
	value       TEXT NOT NULL,
	source      TEXT NOT NULL,
	match_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	written_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_field_provenance_record ON field_provenance(record_id);

CREATE TABLE IF NOT EXISTS lead_cards (
	id         TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS merge_reviews (
	id         TEXT PRIMARY KEY,
	record_id  TEXT NOT NULL REFERENCES identity_records(id),
	target_id  TEXT NOT NULL REFERENCES identity_records(id),
	score      DOUBLE PRECISION NOT NULL,
	result     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	decided_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_merge_reviews_status ON merge_reviews(status, created_at);

CREATE TABLE IF NOT EXISTS ingest_dlq (
	id             TEXT PRIMARY KEY,
	record         JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ingest_dlq_next_retry ON ingest_dlq(next_retry_at);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const recordColumns = `id, data, COALESCE(card_id, ''), version, created_at, updated_at`

func scanPostgresRecord(row pgx.Row) (identity.IdentityRecord, error) {
	var r recordRow
	if err := row.Scan(&r.id, &r.data, &r.cardID, &r.version, &r.createdAt, &r.updatedAt); err != nil {
		return identity.IdentityRecord{}, err
	}
	return r.record()
}

// FetchCandidates returns records sharing a phone, email or last name with
// hints, most recently updated first.
func (s *PostgresStore) FetchCandidates(ctx context.Context, hints identity.QueryHints) ([]identity.IdentityRecord, error) {
	if hints.Empty() {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM identity_records
		 WHERE id IN (
		   SELECT record_id FROM identity_keys
		   WHERE (kind = 'phone' AND value = ANY($1))
		      OR (kind = 'email' AND value = ANY($2))
		      OR (kind = 'last_name' AND value = $3)
		 )
		 ORDER BY updated_at DESC, id
		 LIMIT $4`,
		nonNil(hints.Phones), nonNil(hints.Emails), hints.LastName, CandidateLimit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch candidates")
	}
	defer rows.Close()

	var out []identity.IdentityRecord
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: fetch candidates iterate")
}

// ApplyMerge fills the target's empty fields in one transaction. It fails
// with dedup.ErrMergeConflict when the target's version has moved.
func (s *PostgresStore) ApplyMerge(ctx context.Context, req dedup.MergeRequest) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: apply merge: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	target, err := scanPostgresRecord(tx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM identity_records WHERE id = $1 FOR UPDATE`,
		req.TargetID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: merge target %s", req.TargetID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: load merge target %s", req.TargetID)
	}
	if target.Version != req.ExpectedVersion {
		return conflictErr(req.TargetID, req.ExpectedVersion)
	}

	merged := dedup.ApplyUpdates(target, req.Updates)
	payload, err := recordPayload(merged)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE identity_records SET data = $1, version = version + 1, updated_at = $2
		 WHERE id = $3 AND version = $4`,
		payload, mergeTime(req), req.TargetID, req.ExpectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update merge target %s", req.TargetID)
	}
	if tag.RowsAffected() == 0 {
		return conflictErr(req.TargetID, req.ExpectedVersion)
	}

	if _, err := db.CopyFrom(ctx, tx, "field_provenance", provenanceColumns, provenanceRows(req.TargetID, req)); err != nil {
		return eris.Wrap(err, "postgres: write provenance")
	}
	if err := s.replaceKeys(ctx, tx, merged); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: apply merge: commit")
}

func (s *PostgresStore) replaceKeys(ctx context.Context, tx pgx.Tx, rec identity.IdentityRecord) error {
	if _, err := tx.Exec(ctx, `DELETE FROM identity_keys WHERE record_id = $1`, rec.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear keys for %s", rec.ID)
	}
	keys := recordKeys(rec)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{rec.ID, k.kind, k.value})
	}
	_, err := db.CopyFrom(ctx, tx, "identity_keys", []string{"record_id", "kind", "value"}, rows)
	return eris.Wrapf(err, "postgres: write keys for %s", rec.ID)
}

// GetRecordBySource returns the record for a source observation, or nil
// when it has not been seen.
func (s *PostgresStore) GetRecordBySource(ctx context.Context, sourceType identity.SourceType, sourceID string) (*identity.IdentityRecord, error) {
	rec, err := scanPostgresRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM identity_records WHERE source_type = $1 AND source_id = $2`,
		string(sourceType), sourceID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get record by source")
	}
	return &rec, nil
}

// GetRecord returns a record by ID.
func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*identity.IdentityRecord, error) {
	rec, err := scanPostgresRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM identity_records WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}
	return &rec, nil
}

// CreateRecord inserts a record and its lookup keys.
func (s *PostgresStore) CreateRecord(ctx context.Context, rec identity.IdentityRecord) error {
	payload, err := recordPayload(rec)
	if err != nil {
		return err
	}
	if rec.Version == 0 {
		rec.Version = 1
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: create record: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO identity_records (id, source_type, source_id, data, card_id, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		rec.ID, string(rec.SourceType), rec.SourceID, payload, rec.CardID, rec.Version, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return eris.Wrapf(ErrDuplicateSource, "postgres: %s", rec.SourceKey())
		}
		return eris.Wrapf(err, "postgres: insert record %s", rec.ID)
	}
	if err := s.replaceKeys(ctx, tx, rec); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: create record: commit")
}

// AttachRecord links a record to a card.
func (s *PostgresStore) AttachRecord(ctx context.Context, recordID, cardID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE identity_records SET card_id = $1 WHERE id = $2`, cardID, recordID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: attach record %s", recordID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: record %s", recordID)
	}
	return nil
}

var seedRecordColumns = []string{"id", "source_type", "source_id", "data", "card_id", "version", "created_at", "updated_at"}

// SeedRecords bulk-loads records that are not already present, keyed by
// source. Existing records are left untouched. It returns the number of
// records inserted.
func (s *PostgresStore) SeedRecords(ctx context.Context, recs []identity.IdentityRecord) (int64, error) {
	recordRows := make([][]any, 0, len(recs))
	var keyRows [][]any
	for _, rec := range recs {
		payload, err := recordPayload(rec)
		if err != nil {
			return 0, err
		}
		var cardID *string
		if rec.CardID != "" {
			cardID = &rec.CardID
		}
		version := max(rec.Version, 1)
		recordRows = append(recordRows, []any{rec.ID, string(rec.SourceType), rec.SourceID, payload, cardID, version, rec.CreatedAt, rec.UpdatedAt})
		for _, k := range recordKeys(rec) {
			keyRows = append(keyRows, []any{rec.ID, k.kind, k.value})
		}
	}

	n, err := db.BulkInsertNew(ctx, s.pool, db.InsertConfig{
		Table:        "identity_records",
		Columns:      seedRecordColumns,
		ConflictKeys: []string{"source_type", "source_id"},
	}, recordRows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: seed records")
	}
	if _, err := db.BulkInsertNew(ctx, s.pool, db.InsertConfig{
		Table:        "identity_keys",
		Columns:      []string{"record_id", "kind", "value"},
		ConflictKeys: []string{"record_id", "kind", "value"},
	}, keyRows); err != nil {
		return n, eris.Wrap(err, "postgres: seed keys")
	}
	return n, nil
}

// GetCard returns a card by ID.
func (s *PostgresStore) GetCard(ctx context.Context, id string) (*leadcard.UnifiedLeadCard, error) {
	var data []byte
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT data, version FROM lead_cards WHERE id = $1`, id).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: card %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get card %s", id)
	}

	var card leadcard.UnifiedLeadCard
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal card %s", id)
	}
	card.Version = version
	return &card, nil
}

// CreateCard inserts a new card.
func (s *PostgresStore) CreateCard(ctx context.Context, card leadcard.UnifiedLeadCard) error {
	if card.Version == 0 {
		card.Version = 1
	}
	data, err := json.Marshal(card)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal card")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO lead_cards (id, data, version, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		card.ID, data, card.Version, card.CreatedAt, card.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert card %s", card.ID)
}

// UpdateCard replaces a card if its stored version still equals
// expectedVersion, and bumps the version.
func (s *PostgresStore) UpdateCard(ctx context.Context, card leadcard.UnifiedLeadCard, expectedVersion int64) error {
	card.Version = expectedVersion + 1
	data, err := json.Marshal(card)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal card")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_cards SET data = $1, version = $2, updated_at = $3 WHERE id = $4 AND version = $5`,
		data, card.Version, card.UpdatedAt, card.ID, expectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update card %s", card.ID)
	}
	if tag.RowsAffected() == 0 {
		return conflictErr(card.ID, expectedVersion)
	}
	return nil
}

// CreateReview inserts a pending review.
func (s *PostgresStore) CreateReview(ctx context.Context, r Review) error {
	result, err := json.Marshal(r.Result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal review result")
	}
	if r.Status == "" {
		r.Status = ReviewPending
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO merge_reviews (id, record_id, target_id, score, result, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.RecordID, r.TargetID, r.Score, result, string(r.Status), r.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert review %s", r.ID)
}

const reviewColumns = `id, record_id, target_id, score, result, status, created_at, decided_at`

func scanPostgresReview(row pgx.Row) (Review, error) {
	var r Review
	var result []byte
	var status string
	if err := row.Scan(&r.ID, &r.RecordID, &r.TargetID, &r.Score, &result, &status, &r.CreatedAt, &r.DecidedAt); err != nil {
		return r, err
	}
	r.Status = ReviewStatus(status)
	if err := json.Unmarshal(result, &r.Result); err != nil {
		return r, eris.Wrapf(err, "postgres: unmarshal review %s", r.ID)
	}
	return r, nil
}

// GetReview returns a review by ID.
func (s *PostgresStore) GetReview(ctx context.Context, id string) (*Review, error) {
	r, err := scanPostgresReview(s.pool.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM merge_reviews WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: review %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get review %s", id)
	}
	return &r, nil
}

// ListReviews lists reviews oldest first, optionally filtered by status.
func (s *PostgresStore) ListReviews(ctx context.Context, status ReviewStatus, limit int) ([]Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM merge_reviews WHERE true`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(status))
		argIdx++
	}
	query += ` ORDER BY created_at ASC, id`

	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		r, err := scanPostgresReview(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan review")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reviews iterate")
}

// UpdateReviewStatus decides a pending review.
func (s *PostgresStore) UpdateReviewStatus(ctx context.Context, id string, status ReviewStatus, decidedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE merge_reviews SET status = $1, decided_at = $2 WHERE id = $3 AND status = 'pending'`,
		string(status), decidedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update review %s", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetReview(ctx, id); err != nil {
		return err
	}
	return eris.Wrapf(ErrReviewClosed, "postgres: review %s", id)
}

// ReopenReview returns a review decided as from to pending.
func (s *PostgresStore) ReopenReview(ctx context.Context, id string, from ReviewStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE merge_reviews SET status = 'pending', decided_at = NULL WHERE id = $1 AND status = $2`,
		id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reopen review %s", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetReview(ctx, id); err != nil {
		return err
	}
	return eris.Wrapf(ErrReviewClosed, "postgres: reopen review %s: not %s", id, from)
}

// EnqueueDLQ records a failed ingest, or updates an existing entry.
func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq record")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingest_dlq
		 (id, record, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $3, error_type = $4, retry_count = $5, next_retry_at = $7, last_failed_at = $9`,
		entry.ID, recordJSON, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

// DequeueDLQ returns entries that are due and still have retries left.
func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, record, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM ingest_dlq
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var recordJSON []byte
		if err := rows.Scan(&e.ID, &recordJSON, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(recordJSON, &e.Record); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq record")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

// IncrementDLQRetry records another failed attempt.
func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_dlq
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: dlq entry %s", id)
	}
	return nil
}

// RemoveDLQ deletes an entry.
func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ingest_dlq WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

// CountDLQ returns the number of entries.
func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ingest_dlq`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// mergeTime is the write time of a merge request.
func mergeTime(req dedup.MergeRequest) time.Time {
	for _, u := range req.Updates {
		if !u.WrittenAt.IsZero() {
			return u.WrittenAt
		}
	}
	return time.Now().UTC()
}
