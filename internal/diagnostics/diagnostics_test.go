package diagnostics

import (
	"testing"
	"time"

	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/queue"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	snapshot map[string]models.NoteCompletionRecord
}

func (f *fakeTracker) Snapshot() map[string]models.NoteCompletionRecord { return f.snapshot }

func TestCollectAndDump(t *testing.T) {
	tracker := &fakeTracker{snapshot: map[string]models.NoteCompletionRecord{
		"note-1": {NoteID: "note-1", ImportID: "import-1", Terminal: true},
	}}
	deadLetters := queue.NewDeadLetterStore()
	deadLetters.Record(models.DeadLetterRecord{QueueName: "ingredient", JobID: "job-1", Attempts: 3})

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Collect(at, tracker, deadLetters)
	require.Equal(t, at, snap.GeneratedAt)
	require.Len(t, snap.Notes, 1)
	require.Len(t, snap.DeadLetters, 1)

	body, err := Dump(snap)
	require.NoError(t, err)
	require.Contains(t, string(body), "note-1")
	require.Contains(t, string(body), "job-1")
}
