package queue

import (
	"testing"
	"time"

	"github.com/awehrman/peas/internal/models"
	"github.com/stretchr/testify/require"
)

func TestDeadLetterStoreRecordAndSnapshot(t *testing.T) {
	s := NewDeadLetterStore()
	s.Record(models.DeadLetterRecord{QueueName: "ingredient", JobID: "job-1", Attempts: 3, LastAttemptAt: time.Now()})
	s.Record(models.DeadLetterRecord{QueueName: "ingredient", JobID: "job-1", Attempts: 4, LastAttemptAt: time.Now()})

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, 4, snap[0].Attempts)
}

func TestDeadLetterStorePrune(t *testing.T) {
	s := NewDeadLetterStore()
	old := time.Now().Add(-time.Hour)
	s.Record(models.DeadLetterRecord{QueueName: "ingredient", JobID: "old", LastAttemptAt: old})
	s.Record(models.DeadLetterRecord{QueueName: "ingredient", JobID: "new", LastAttemptAt: time.Now()})

	removed := s.Prune(time.Now().Add(-time.Minute))
	require.Equal(t, 1, removed)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "new", snap[0].JobID)
}
