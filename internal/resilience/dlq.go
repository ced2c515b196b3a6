package resilience

import (
	"time"
)

// DLQEntry is a document whose processing failed and can be retried later.
type DLQEntry struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	DocID        string    `json:"doc_id"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying failed documents.
type DLQFilter struct {
	ProjectID string `json:"project_id,omitempty"`
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// NextRetry returns when an entry that has failed retryCount times should be
// tried again, backing off exponentially from base up to maxDelay.
func NextRetry(now time.Time, retryCount int, base, maxDelay time.Duration) time.Time {
	d := base
	for i := 0; i < retryCount && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	return now.Add(d)
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
