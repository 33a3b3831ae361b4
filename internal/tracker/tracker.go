// Package tracker implements the Completion Tracker: process-wide
// per-note completion state, serialized per noteId, with a bounded-timeout
// categorization-ready wait.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
	"github.com/ternarybob/arbor"
)

type noteState struct {
	mu     sync.Mutex
	record models.NoteCompletionRecord
	seen   map[models.LineKind]map[int]bool // per-kind observed line indices, for dedup
	ready  chan struct{}                    // closed once when CategorizationReady flips true
}

// Tracker implements interfaces.CompletionTracker.
type Tracker struct {
	mu     sync.RWMutex // guards the notes map itself, not per-note state
	notes  map[string]*noteState
	logger arbor.ILogger
}

// New constructs an empty Tracker.
func New(logger arbor.ILogger) *Tracker {
	return &Tracker{
		notes:  make(map[string]*noteState),
		logger: logger,
	}
}

func (t *Tracker) stateFor(noteID string) *noteState {
	t.mu.RLock()
	s, ok := t.notes[noteID]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.notes[noteID]; ok {
		return s
	}
	s = &noteState{
		seen:  make(map[models.LineKind]map[int]bool),
		ready: make(chan struct{}),
	}
	t.notes[noteID] = s
	return s
}

// InitializeNoteCompletion creates the record for noteID, or no-ops if an
// identical importID was already initialized. A different importID for an
// already-initialized noteID is a programming error.
func (t *Tracker) InitializeNoteCompletion(noteID, importID string) error {
	s := t.stateFor(noteID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record.NoteID == "" {
		s.record = models.NoteCompletionRecord{
			NoteID:                  noteID,
			ImportID:                importID,
			WorkerCompletion:        make(map[models.LineKind]bool),
			ExpectedLineCounts:      make(map[models.LineKind]int),
			ObservedLineCompletions: make(map[models.LineKind]int),
		}
		return nil
	}
	if s.record.ImportID != importID {
		return pipeline.ProgrammingError("tracker.InitializeNoteCompletion", errDifferentImport(noteID, s.record.ImportID, importID))
	}
	return nil
}

// SetExpectedCounts may be called once per kind; a second call with the
// same value is a no-op, with a different value is a programming error.
func (t *Tracker) SetExpectedCounts(noteID string, counts map[models.LineKind]int) error {
	s := t.stateFor(noteID)
	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, want := range counts {
		if existing, ok := s.record.ExpectedLineCounts[kind]; ok {
			if existing != want {
				return pipeline.ProgrammingError("tracker.SetExpectedCounts", errExpectedCountChanged(noteID, kind, existing, want))
			}
			continue
		}
		s.record.ExpectedLineCounts[kind] = want
		if want == 0 {
			s.record.WorkerCompletion[kind] = true
		}
	}
	t.maybeReleaseCategorizationLocked(s)
	return nil
}

// MarkLineCompleted increments the observed count for (kind, lineIndex)
// only the first time it is seen, deduping at-least-once delivery. It
// flips WorkerCompletion[kind] once observed reaches expected.
func (t *Tracker) MarkLineCompleted(noteID string, kind models.LineKind, lineIndex int) error {
	s := t.stateFor(noteID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[kind] == nil {
		s.seen[kind] = make(map[int]bool)
	}
	if s.seen[kind][lineIndex] {
		return nil
	}
	s.seen[kind][lineIndex] = true
	s.record.ObservedLineCompletions[kind]++

	if want, ok := s.record.ExpectedLineCounts[kind]; ok && s.record.ObservedLineCompletions[kind] >= want {
		s.record.WorkerCompletion[kind] = true
	}
	t.maybeReleaseCategorizationLocked(s)
	return nil
}

// MarkWorkerCompleted is an idempotent set-to-true, used for non-counted
// kinds (note, source, and image when not line-counted).
func (t *Tracker) MarkWorkerCompleted(noteID string, kind models.LineKind) error {
	s := t.stateFor(noteID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.WorkerCompletion[kind] = true
	t.maybeReleaseCategorizationLocked(s)
	return nil
}

// maybeReleaseCategorizationLocked flips CategorizationReady once the
// kinds that gate it (ingredient and instruction: the required fan-out
// kinds, per the completion-check policy that treats image/source as
// optional) have both completed. Callers hold s.mu.
func (t *Tracker) maybeReleaseCategorizationLocked(s *noteState) {
	if s.record.CategorizationReady {
		return
	}
	if s.record.WorkerCompletion[models.KindIngredient] && s.record.WorkerCompletion[models.KindInstruction] {
		s.record.CategorizationReady = true
		close(s.ready)
	}
}

// IsNoteTerminal reports whether every kind with an expected count has
// been fully observed and every other required kind has completed.
func (t *Tracker) IsNoteTerminal(noteID string) (bool, error) {
	s := t.stateFor(noteID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.isTerminalLocked(s), nil
}

func (t *Tracker) isTerminalLocked(s *noteState) bool {
	if s.record.Terminal {
		return true
	}
	for kind, want := range s.record.ExpectedLineCounts {
		if s.record.ObservedLineCompletions[kind] < want {
			return false
		}
	}
	for _, done := range s.record.WorkerCompletion {
		if !done {
			return false
		}
	}
	if len(s.record.WorkerCompletion) == 0 {
		return false
	}
	s.record.Terminal = true
	return true
}

// OnCategorizationReady flips the record's CategorizationReady flag and
// releases any AwaitCategorizationReady callers waiting on noteID.
func (t *Tracker) OnCategorizationReady(noteID string) error {
	s := t.stateFor(noteID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record.CategorizationReady {
		return nil
	}
	s.record.CategorizationReady = true
	close(s.ready)
	return nil
}

// AwaitCategorizationReady blocks until noteID's CategorizationReady flips
// true, ctx is done, or timeout elapses — whichever comes first.
func (t *Tracker) AwaitCategorizationReady(ctx context.Context, noteID string, timeout time.Duration) error {
	s := t.stateFor(noteID)

	s.mu.Lock()
	alreadyReady := s.record.CategorizationReady
	ready := s.ready
	s.mu.Unlock()

	if alreadyReady {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return pipeline.Cancelled("tracker.AwaitCategorizationReady", ctx.Err())
	case <-timer.C:
		return pipeline.Timeout("tracker.AwaitCategorizationReady", errCategorizationTimeout(noteID, timeout))
	}
}

// Record returns a deep copy of noteID's completion record.
func (t *Tracker) Record(noteID string) (models.NoteCompletionRecord, bool) {
	t.mu.RLock()
	s, ok := t.notes[noteID]
	t.mu.RUnlock()
	if !ok {
		return models.NoteCompletionRecord{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone(), true
}

// Snapshot returns a deep copy of every tracked note's record. It holds the
// global read lock only while collecting the note states, then takes each
// note's own lock just long enough to copy that record, so it never
// contends with in-flight MarkLineCompleted calls for long.
func (t *Tracker) Snapshot() map[string]models.NoteCompletionRecord {
	t.mu.RLock()
	states := make([]*noteState, 0, len(t.notes))
	ids := make([]string, 0, len(t.notes))
	for id, s := range t.notes {
		ids = append(ids, id)
		states = append(states, s)
	}
	t.mu.RUnlock()

	out := make(map[string]models.NoteCompletionRecord, len(ids))
	for i, id := range ids {
		states[i].mu.Lock()
		out[id] = states[i].record.Clone()
		states[i].mu.Unlock()
	}
	return out
}
