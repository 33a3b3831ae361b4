package queue

import (
	"sync"
	"time"

	"github.com/awehrman/peas/internal/models"
)

// DeadLetterStore is in-memory bookkeeping for jobs that exhausted their
// retries, queried by the Dependency Container's
// diagnostics for operator visibility.
type DeadLetterStore struct {
	mu      sync.RWMutex
	records map[string]models.DeadLetterRecord // "<queueName>/<jobId>" -> latest record
}

// NewDeadLetterStore constructs an empty DeadLetterStore.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{records: make(map[string]models.DeadLetterRecord)}
}

// Record stores rec, replacing any earlier record for the same
// (queueName, jobId).
func (s *DeadLetterStore) Record(rec models.DeadLetterRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.QueueName+"/"+rec.JobID] = rec
}

// Snapshot returns every recorded dead letter.
func (s *DeadLetterStore) Snapshot() []models.DeadLetterRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DeadLetterRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}

// Prune discards every record whose LastAttemptAt is older than before,
// returning the number removed. Run periodically so operator diagnostics
// reflect recent failures rather than an ever-growing history.
func (s *DeadLetterStore) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, rec := range s.records {
		if rec.LastAttemptAt.Before(before) {
			delete(s.records, k)
			removed++
		}
	}
	return removed
}
