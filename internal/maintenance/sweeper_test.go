package maintenance

import (
	"testing"
	"time"

	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/queue"
	"github.com/stretchr/testify/require"
)

type fakeCache struct{ sweeps int }

func (f *fakeCache) Sweep() int {
	f.sweeps++
	return f.sweeps
}

func TestSweeperRunsRegisteredJobs(t *testing.T) {
	cache := &fakeCache{}
	deadLetters := queue.NewDeadLetterStore()
	deadLetters.Record(models.DeadLetterRecord{QueueName: "ingredient", JobID: "old", LastAttemptAt: time.Now().Add(-time.Hour)})

	s := NewSweeper(cache, deadLetters, time.Minute, nil)
	require.NoError(t, s.Start("@every 10ms", "@every 10ms"))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return cache.sweeps > 0 && len(deadLetters.Snapshot()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSweeperSkipsReaperWithoutTTL(t *testing.T) {
	cache := &fakeCache{}
	deadLetters := queue.NewDeadLetterStore()
	deadLetters.Record(models.DeadLetterRecord{QueueName: "ingredient", JobID: "old", LastAttemptAt: time.Now().Add(-time.Hour)})

	s := NewSweeper(cache, deadLetters, 0, nil)
	require.NoError(t, s.Start("@every 10ms", "@every 10ms"))
	defer s.Stop()

	require.Eventually(t, func() bool { return cache.sweeps > 0 }, time.Second, 5*time.Millisecond)
	require.Len(t, deadLetters.Snapshot(), 1)
}
