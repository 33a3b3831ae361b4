// Package diagnostics builds an operator-facing YAML dump of in-memory
// pipeline state: per-note completion tracking and queue dead letters.
// Nothing in the pipeline core reads this back; it exists purely for a
// developer or operator to paste into a bug report.
package diagnostics

import (
	"time"

	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/queue"
	"gopkg.in/yaml.v3"
)

// Tracker is the subset of tracker.Tracker diagnostics needs.
type Tracker interface {
	Snapshot() map[string]models.NoteCompletionRecord
}

// Snapshot is the top-level shape marshaled to YAML.
type Snapshot struct {
	GeneratedAt time.Time                              `yaml:"generatedAt"`
	Notes       map[string]models.NoteCompletionRecord `yaml:"notes"`
	DeadLetters []models.DeadLetterRecord              `yaml:"deadLetters"`
}

// Collect gathers a Snapshot from the tracker and every registered queue's
// dead-letter store, at as time.
func Collect(at time.Time, tracker Tracker, deadLetters *queue.DeadLetterStore) Snapshot {
	snap := Snapshot{GeneratedAt: at, Notes: tracker.Snapshot()}
	if deadLetters != nil {
		snap.DeadLetters = deadLetters.Snapshot()
	}
	return snap
}

// Dump renders a Snapshot as YAML.
func Dump(snap Snapshot) ([]byte, error) {
	return yaml.Marshal(snap)
}
