package resilience

import (
	"time"

	"github.com/sells-group/lead-identity/internal/identity"
)

// Error classes recorded on dead-letter entries.
const (
	ErrorTransient = "transient"
	ErrorPermanent = "permanent"
)

// DLQEntry is an identity record whose ingest failed and may be retried.
type DLQEntry struct {
	ID           string                  `json:"id"`
	Record       identity.IdentityRecord `json:"record"`
	Error        string                  `json:"error"`
	ErrorType    string                  `json:"error_type"`
	RetryCount   int                     `json:"retry_count"`
	MaxRetries   int                     `json:"max_retries"`
	NextRetryAt  time.Time               `json:"next_retry_at"`
	CreatedAt    time.Time               `json:"created_at"`
	LastFailedAt time.Time               `json:"last_failed_at"`
}

// DLQFilter narrows a dead-letter query.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// NewDLQEntry builds an entry for a failed ingest. Permanent failures get no
// retries.
func NewDLQEntry(rec identity.IdentityRecord, err error, maxRetries int, now time.Time) DLQEntry {
	class := ClassifyError(err)
	if class == ErrorPermanent {
		maxRetries = 0
	}
	return DLQEntry{
		Record:       rec,
		Error:        err.Error(),
		ErrorType:    class,
		MaxRetries:   maxRetries,
		NextRetryAt:  NextRetryAt(0, now),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// CanRetry reports whether the entry has retries left.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// NextRetryAt schedules the next attempt: one minute doubled per prior
// retry, capped at one hour.
func NextRetryAt(retryCount int, now time.Time) time.Time {
	delay := time.Minute << min(retryCount, 6)
	return now.Add(min(delay, time.Hour))
}

// ClassifyError reports whether err is transient or permanent.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTransient
	}
	return ErrorPermanent
}
