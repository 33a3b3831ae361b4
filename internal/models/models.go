// Package models holds the pipeline's wire and in-memory data shapes.
package models

import (
	"strconv"
	"time"
)

// Job is the immutable envelope a queue delivers to a worker.
type Job struct {
	JobID         string          `json:"jobId" validate:"required"`
	AttemptNumber int             `json:"attemptNumber" validate:"min=1"`
	ActionName    string          `json:"actionName" validate:"required"`
	QueueName     string          `json:"queueName" validate:"required"`
	Payload       []byte          `json:"payload"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
	Options       *EnqueueOptions `json:"options,omitempty"`
}

// EnqueueOptions are the per-job options accepted by Queue.Add.
type EnqueueOptions struct {
	Delay        time.Duration `json:"delay,omitempty"`
	DedupeWindow time.Duration `json:"dedupeWindow,omitempty"`
}

// ActionContext is per-invocation metadata passed to every action.
type ActionContext struct {
	JobID         string
	AttemptNumber int
	RetryCount    int
	QueueName     string
	WorkerName    string
	Operation     string
	StartTime     time.Time
}

// PipelineOptions are the recognized per-job options.
type PipelineOptions struct {
	SkipFollowupTasks    bool `json:"skipFollowupTasks,omitempty"`
	ClearIngredientCache bool `json:"clearIngredientCache,omitempty"`
	ParseIngredients     bool `json:"parseIngredients,omitempty"`
	ParseInstructions    bool `json:"parseInstructions,omitempty"`
}

// IngredientLine is one ordered ingredient line parsed out of a note's body.
type IngredientLine struct {
	Reference  string `json:"reference"`
	BlockIndex int    `json:"blockIndex"`
	LineIndex  int    `json:"lineIndex"`
}

// InstructionLine is one ordered instruction line parsed out of a note's
// body.
type InstructionLine struct {
	Reference string `json:"reference"`
	LineIndex int    `json:"lineIndex"`
}

// EvernoteMetadata is the source/tag metadata carried over from the
// note-taking export format.
type EvernoteMetadata struct {
	Source            string    `json:"source,omitempty"`
	Tags              []string  `json:"tags,omitempty"`
	OriginalCreatedAt time.Time `json:"originalCreatedAt,omitempty"`
}

// ParsedFile is the structured result of parse_html: title, cleaned
// contents, image reference, and ordered ingredient/instruction lines.
type ParsedFile struct {
	Title            string            `json:"title"`
	CleanedContents  string            `json:"cleanedContents"`
	ImageRef         string            `json:"imageRef,omitempty"`
	Ingredients      []IngredientLine  `json:"ingredients"`
	Instructions     []InstructionLine `json:"instructions"`
	EvernoteMetadata EvernoteMetadata  `json:"evernoteMetadata"`
}

// PersistedNote is the repository's view of a saved note: parsed-line ids
// and timestamps assigned at save time.
type PersistedNote struct {
	ID                      string    `json:"id"`
	Title                   string    `json:"title"`
	EvernoteMetadataID      string    `json:"evernoteMetadataId,omitempty"`
	ParsedIngredientLineID  []string  `json:"parsedIngredientLineIds,omitempty"`
	ParsedInstructionLineID []string  `json:"parsedInstructionLineIds,omitempty"`
	CreatedAt               time.Time `json:"createdAt,omitempty"`
	UpdatedAt               time.Time `json:"updatedAt,omitempty"`
}

// NotePipelineData is the payload that flows through the note pipeline
//. Once NoteID is set it must never be mutated; once an ingredient or
// instruction line has been emitted to a fan-out queue its LineIndex is
// stable.
type NotePipelineData struct {
	Content  string          `json:"content" validate:"required"`
	ImportID string          `json:"importId,omitempty"`
	NoteID   string          `json:"noteId,omitempty"`
	Source   string          `json:"source,omitempty"`
	Options  PipelineOptions `json:"options,omitempty"`
	File     *ParsedFile     `json:"file,omitempty"`
	Note     *PersistedNote  `json:"note,omitempty"`
}

// LineKind identifies which per-line fan-out queue/kind a job belongs to.
type LineKind string

const (
	KindNote        LineKind = "note"
	KindIngredient  LineKind = "ingredient"
	KindInstruction LineKind = "instruction"
	KindImage       LineKind = "image"
	KindSource      LineKind = "source"
)

// LineJobData is the payload for a single ingredient/instruction line job.
// JobID is derived deterministically so re-enqueue is idempotent.
type LineJobData struct {
	NoteID    string   `json:"noteId" validate:"required"`
	ImportID  string   `json:"importId,omitempty"`
	Reference string   `json:"reference"`
	LineIndex int      `json:"lineIndex"`
	Kind      LineKind `json:"kind" validate:"required"`
	JobID     string   `json:"jobId" validate:"required"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewLineJobID derives the deterministic jobId for a line job.
func NewLineJobID(noteID string, kind LineKind, lineIndex int) string {
	return noteID + "-" + string(kind) + "-" + strconv.Itoa(lineIndex)
}

// CompletionCheckJobData is the payload for a completion-check sentinel.
type CompletionCheckJobData struct {
	NoteID   string   `json:"noteId" validate:"required"`
	ImportID string   `json:"importId,omitempty"`
	Kind     LineKind `json:"kind" validate:"required"`
	JobID    string   `json:"jobId" validate:"required"`
	Retries  int      `json:"retries,omitempty"`
}

// NewCompletionCheckJobID derives the deterministic jobId for a completion
// check sentinel.
func NewCompletionCheckJobID(noteID string, kind LineKind) string {
	return noteID + "-" + string(kind) + "-completion-check"
}

// SourceJobData is the payload for the source-resolution job enqueued by
// schedule_all_followup_tasks.
type SourceJobData struct {
	NoteID     string `json:"noteId" validate:"required"`
	ImportID   string `json:"importId,omitempty"`
	MetadataID string `json:"metadataId,omitempty"`
	Source     string `json:"source"`
	JobID      string `json:"jobId" validate:"required"`
}

// NewSourceJobID derives the deterministic jobId for a note's source job.
func NewSourceJobID(noteID string) string {
	return noteID + "-source"
}

// ImageJobData is the payload for a note's image-processing job.
type ImageJobData struct {
	NoteID   string `json:"noteId" validate:"required"`
	ImportID string `json:"importId,omitempty"`
	ImageRef string `json:"imageRef"`
	JobID    string `json:"jobId" validate:"required"`
}

// NewImageJobID derives the deterministic jobId for a note's image job.
func NewImageJobID(noteID string) string {
	return noteID + "-image"
}

// Status is one of the lifecycle states carried on a StatusEvent.
type Status string

const (
	StatusAwaitingParsing Status = "AWAITING_PARSING"
	StatusProcessing      Status = "PROCESSING"
	StatusPending         Status = "PENDING"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
	StatusCancelled       Status = "CANCELLED"
)

// StatusEvent is one append-only entry in an importId's event log.
type StatusEvent struct {
	ImportID     string         `json:"importId"`
	NoteID       string         `json:"noteId,omitempty"`
	Status       Status         `json:"status"`
	Message      string         `json:"message"`
	Context      string         `json:"context"`
	IndentLevel  int            `json:"indentLevel,omitempty"`
	CurrentCount *int           `json:"currentCount,omitempty"`
	TotalCount   *int           `json:"totalCount,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NoteCompletionRecord is the Completion Tracker's in-memory state for one
// note. Callers never mutate it directly; the tracker owns all
// transitions and returns copies from its read APIs.
type NoteCompletionRecord struct {
	NoteID                  string
	ImportID                string
	WorkerCompletion        map[LineKind]bool
	ExpectedLineCounts      map[LineKind]int
	ObservedLineCompletions map[LineKind]int
	CategorizationReady     bool
	Terminal                bool
}

// Clone returns a deep copy safe to hand to callers outside the tracker's
// lock.
func (r NoteCompletionRecord) Clone() NoteCompletionRecord {
	clone := r
	clone.WorkerCompletion = make(map[LineKind]bool, len(r.WorkerCompletion))
	for k, v := range r.WorkerCompletion {
		clone.WorkerCompletion[k] = v
	}
	clone.ExpectedLineCounts = make(map[LineKind]int, len(r.ExpectedLineCounts))
	for k, v := range r.ExpectedLineCounts {
		clone.ExpectedLineCounts[k] = v
	}
	clone.ObservedLineCompletions = make(map[LineKind]int, len(r.ObservedLineCompletions))
	for k, v := range r.ObservedLineCompletions {
		clone.ObservedLineCompletions[k] = v
	}
	return clone
}

// DeadLetterRecord is bookkeeping for a job that exhausted its retries
//.
type DeadLetterRecord struct {
	QueueName     string    `json:"queueName"`
	JobID         string    `json:"jobId"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"lastError"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
}
