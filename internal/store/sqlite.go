package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/leadcard"
	"github.com/sells-group/lead-identity/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// One writer at a time; keeps the pragmas on the only connection.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS identity_records (
	id          TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	data        TEXT NOT NULL,
	card_id     TEXT,
	version     INTEGER NOT NULL DEFAULT 1,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	UNIQUE (source_type, source_id)
);

CREATE INDEX IF NOT EXISTS idx_identity_records_card_id ON identity_records(card_id);
CREATE INDEX IF NOT EXISTS idx_identity_records_updated_at ON identity_records(updated_at);

CREATE TABLE IF NOT EXISTS identity_keys (
	record_id TEXT NOT NULL,
	kind      TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (record_id, kind, value)
);

CREATE INDEX IF NOT EXISTS idx_identity_keys_lookup ON identity_keys(kind, value);

CREATE TABLE IF NOT EXISTS field_provenance (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id   TEXT NOT NULL REFERENCES identity_records(id),
	field       TEXT NOT NULL,
	value       TEXT NOT NULL,
	source      TEXT NOT NULL,
	match_score REAL NOT NULL DEFAULT 0,
	written_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_field_provenance_record ON field_provenance(record_id);

CREATE TABLE IF NOT EXISTS lead_cards (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS merge_reviews (
	id         TEXT PRIMARY KEY,
	record_id  TEXT NOT NULL REFERENCES identity_records(id),
	target_id  TEXT NOT NULL REFERENCES identity_records(id),
	score      REAL NOT NULL,
	result     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	decided_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_merge_reviews_status ON merge_reviews(status, created_at);

CREATE TABLE IF NOT EXISTS ingest_dlq (
	id             TEXT PRIMARY KEY,
	record         TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingest_dlq_next_retry ON ingest_dlq(next_retry_at);
`

// Ping checks connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FetchCandidates returns records sharing a phone, email or last name with
// hints, most recently updated first.
func (s *SQLiteStore) FetchCandidates(ctx context.Context, hints identity.QueryHints) ([]identity.IdentityRecord, error) {
	var (
		clauses []string
		args    []any
	)
	if len(hints.Phones) > 0 {
		clauses = append(clauses, `(kind = 'phone' AND value IN (`+placeholders(len(hints.Phones))+`))`)
		args = appendStrings(args, hints.Phones)
	}
	if len(hints.Emails) > 0 {
		clauses = append(clauses, `(kind = 'email' AND value IN (`+placeholders(len(hints.Emails))+`))`)
		args = appendStrings(args, hints.Emails)
	}
	if hints.LastName != "" {
		clauses = append(clauses, `(kind = 'last_name' AND value = ?)`)
		args = append(args, hints.LastName)
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	args = append(args, CandidateLimit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM identity_records
		 WHERE id IN (SELECT record_id FROM identity_keys WHERE `+strings.Join(clauses, " OR ")+`)
		 ORDER BY updated_at DESC, id
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch candidates")
	}
	defer rows.Close()

	var out []identity.IdentityRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: fetch candidates iterate")
}

// ApplyMerge fills the target's empty fields in one transaction. It fails
// with dedup.ErrMergeConflict when the target's version has moved.
func (s *SQLiteStore) ApplyMerge(ctx context.Context, req dedup.MergeRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: apply merge: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	target, err := scanSQLiteRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM identity_records WHERE id = ?`, req.TargetID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: merge target %s", req.TargetID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: load merge target %s", req.TargetID)
	}
	if target.Version != req.ExpectedVersion {
		return conflictErr(req.TargetID, req.ExpectedVersion)
	}

	merged := dedup.ApplyUpdates(target, req.Updates)
	payload, err := recordPayload(merged)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE identity_records SET data = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(payload), mergeTime(req).UTC(), req.TargetID, req.ExpectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update merge target %s", req.TargetID)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return conflictErr(req.TargetID, req.ExpectedVersion)
	}

	for _, row := range provenanceRows(req.TargetID, req) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO field_provenance (`+strings.Join(provenanceColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?)`,
			row...,
		); err != nil {
			return eris.Wrap(err, "sqlite: write provenance")
		}
	}
	if err := replaceSQLiteKeys(ctx, tx, merged); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: apply merge: commit")
}

func replaceSQLiteKeys(ctx context.Context, tx *sql.Tx, rec identity.IdentityRecord) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM identity_keys WHERE record_id = ?`, rec.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear keys for %s", rec.ID)
	}
	for _, k := range recordKeys(rec) {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO identity_keys (record_id, kind, value) VALUES (?, ?, ?)`,
			rec.ID, k.kind, k.value,
		); err != nil {
			return eris.Wrapf(err, "sqlite: write keys for %s", rec.ID)
		}
	}
	return nil
}

// GetRecordBySource returns the record for a source observation, or nil
// when it has not been seen.
func (s *SQLiteStore) GetRecordBySource(ctx context.Context, sourceType identity.SourceType, sourceID string) (*identity.IdentityRecord, error) {
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM identity_records WHERE source_type = ? AND source_id = ?`,
		string(sourceType), sourceID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get record by source")
	}
	return &rec, nil
}

// GetRecord returns a record by ID.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*identity.IdentityRecord, error) {
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM identity_records WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: record %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}
	return &rec, nil
}

// CreateRecord inserts a record and its lookup keys.
func (s *SQLiteStore) CreateRecord(ctx context.Context, rec identity.IdentityRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: create record: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertSQLiteRecord(ctx, tx, rec, false); err != nil {
		return err
	}
	if err := replaceSQLiteKeys(ctx, tx, rec); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: create record: commit")
}

// insertSQLiteRecord inserts rec. With ignoreExisting set, a record whose
// source is already stored is skipped and reported as not inserted.
func insertSQLiteRecord(ctx context.Context, tx *sql.Tx, rec identity.IdentityRecord, ignoreExisting bool) error {
	payload, err := recordPayload(rec)
	if err != nil {
		return err
	}
	verb := "INSERT"
	if ignoreExisting {
		verb = "INSERT OR IGNORE"
	}
	var cardID any
	if rec.CardID != "" {
		cardID = rec.CardID
	}

	res, err := tx.ExecContext(ctx,
		verb+` INTO identity_records (id, source_type, source_id, data, card_id, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.SourceType), rec.SourceID, string(payload), cardID, max(rec.Version, 1),
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return eris.Wrapf(ErrDuplicateSource, "sqlite: %s", rec.SourceKey())
		}
		return eris.Wrapf(err, "sqlite: insert record %s", rec.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrDuplicateSource, "sqlite: %s", rec.SourceKey())
	}
	return nil
}

// AttachRecord links a record to a card.
func (s *SQLiteStore) AttachRecord(ctx context.Context, recordID, cardID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE identity_records SET card_id = ? WHERE id = ?`, cardID, recordID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: attach record %s", recordID)
	}
	return checkRowsAffected(res, "record", recordID)
}

// SeedRecords inserts records that are not already present, keyed by
// source. It returns the number of records inserted.
func (s *SQLiteStore) SeedRecords(ctx context.Context, recs []identity.IdentityRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: seed records: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, rec := range recs {
		err := insertSQLiteRecord(ctx, tx, rec, true)
		if errors.Is(err, ErrDuplicateSource) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if err := replaceSQLiteKeys(ctx, tx, rec); err != nil {
			return 0, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: seed records: commit")
	}
	return n, nil
}

// GetCard returns a card by ID.
func (s *SQLiteStore) GetCard(ctx context.Context, id string) (*leadcard.UnifiedLeadCard, error) {
	var data string
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT data, version FROM lead_cards WHERE id = ?`, id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: card %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get card %s", id)
	}

	var card leadcard.UnifiedLeadCard
	if err := json.Unmarshal([]byte(data), &card); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal card %s", id)
	}
	card.Version = version
	return &card, nil
}

// CreateCard inserts a new card.
func (s *SQLiteStore) CreateCard(ctx context.Context, card leadcard.UnifiedLeadCard) error {
	if card.Version == 0 {
		card.Version = 1
	}
	data, err := json.Marshal(card)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal card")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lead_cards (id, data, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		card.ID, string(data), card.Version, card.CreatedAt.UTC(), card.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert card %s", card.ID)
}

// UpdateCard replaces a card if its stored version still equals
// expectedVersion, and bumps the version.
func (s *SQLiteStore) UpdateCard(ctx context.Context, card leadcard.UnifiedLeadCard, expectedVersion int64) error {
	card.Version = expectedVersion + 1
	data, err := json.Marshal(card)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal card")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_cards SET data = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`,
		string(data), card.Version, card.UpdatedAt.UTC(), card.ID, expectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update card %s", card.ID)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return conflictErr(card.ID, expectedVersion)
	}
	return nil
}

// CreateReview inserts a pending review.
func (s *SQLiteStore) CreateReview(ctx context.Context, r Review) error {
	result, err := json.Marshal(r.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal review result")
	}
	if r.Status == "" {
		r.Status = ReviewPending
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO merge_reviews (id, record_id, target_id, score, result, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RecordID, r.TargetID, r.Score, string(result), string(r.Status), r.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert review %s", r.ID)
}

// GetReview returns a review by ID.
func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*Review, error) {
	r, err := scanSQLiteReview(s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM merge_reviews WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: review %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get review %s", id)
	}
	return &r, nil
}

// ListReviews lists reviews oldest first, optionally filtered by status.
func (s *SQLiteStore) ListReviews(ctx context.Context, status ReviewStatus, limit int) ([]Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM merge_reviews WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id`
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		r, err := scanSQLiteReview(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reviews iterate")
}

// UpdateReviewStatus decides a pending review.
func (s *SQLiteStore) UpdateReviewStatus(ctx context.Context, id string, status ReviewStatus, decidedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE merge_reviews SET status = ?, decided_at = ? WHERE id = ? AND status = 'pending'`,
		string(status), decidedAt.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update review %s", id)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.GetReview(ctx, id); err != nil {
		return err
	}
	return eris.Wrapf(ErrReviewClosed, "sqlite: review %s", id)
}

// ReopenReview returns a review decided as from to pending.
func (s *SQLiteStore) ReopenReview(ctx context.Context, id string, from ReviewStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE merge_reviews SET status = 'pending', decided_at = NULL WHERE id = ? AND status = ?`,
		id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reopen review %s", id)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.GetReview(ctx, id); err != nil {
		return err
	}
	return eris.Wrapf(ErrReviewClosed, "sqlite: reopen review %s: not %s", id, from)
}

// EnqueueDLQ records a failed ingest, or updates an existing entry.
func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq record")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingest_dlq
		 (id, record, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		entry.ID, string(recordJSON), entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt.UTC(), entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

// DequeueDLQ returns entries that are due and still have retries left.
func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, record, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM ingest_dlq
	          WHERE next_retry_at <= ? AND retry_count < max_retries`
	args := []any{time.Now().UTC()}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var recordJSON string
		if err := rows.Scan(&e.ID, &recordJSON, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if err := json.Unmarshal([]byte(recordJSON), &e.Record); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq record")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

// IncrementDLQRetry records another failed attempt.
func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_dlq
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt.UTC(), lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq entry", id)
}

// RemoveDLQ deletes an entry.
func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ingest_dlq WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

// CountDLQ returns the number of entries.
func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingest_dlq`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row scannable) (identity.IdentityRecord, error) {
	var r recordRow
	var data string
	if err := row.Scan(&r.id, &data, &r.cardID, &r.version, &r.createdAt, &r.updatedAt); err != nil {
		return identity.IdentityRecord{}, err
	}
	r.data = []byte(data)
	return r.record()
}

func scanSQLiteReview(row scannable) (Review, error) {
	var r Review
	var result, status string
	var decidedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.RecordID, &r.TargetID, &r.Score, &result, &status, &r.CreatedAt, &decidedAt); err != nil {
		return r, err
	}
	r.Status = ReviewStatus(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		r.DecidedAt = &t
	}
	if err := json.Unmarshal([]byte(result), &r.Result); err != nil {
		return r, eris.Wrapf(err, "sqlite: unmarshal review %s", r.ID)
	}
	return r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}
