// Package interfaces holds the boundary contracts the pipeline core
// consumes: the queue, the repository, object storage, the status
// broadcaster, and the action cache. Concrete implementations live in
// sibling packages (internal/queue, internal/repository, ...); this package
// only names the shape so actions can be tested against fakes.
package interfaces

import (
	"context"
	"time"

	"github.com/awehrman/peas/internal/models"
)

// Queue is an ordered channel of jobs identified by name.
type Queue interface {
	Name() string
	// Add enqueues a job whose first action name is actionName. If a job
	// with identical payload jobId is already present, or terminated
	// successfully within the dedup window, Add is a no-op.
	Add(ctx context.Context, actionName string, payload []byte, jobID string, opts *models.EnqueueOptions) error
	// Pull blocks until a job is available or ctx is done.
	Pull(ctx context.Context) (*models.Job, error)
	Ack(ctx context.Context, jobID string) error
	Nack(ctx context.Context, jobID string, reason string, retryAfter time.Duration) error
}

// QueueRegistry resolves a named queue, used by schedulers to fail fast when
// a dependent queue wasn't wired.
type QueueRegistry interface {
	Queue(name string) (Queue, bool)
}

// Repository is the opaque persistence surface the core calls. The
// default implementation is internal/repository.
type Repository interface {
	CreateNoteWithEvernoteMetadata(ctx context.Context, file *models.ParsedFile) (*models.PersistedNote, error)
	GetNoteWithEvernoteMetadata(ctx context.Context, noteID string) (*models.PersistedNote, error)
	IsValidURL(s string) bool
	CreateOrFindSourceWithURL(ctx context.Context, url string) (string, error)
	CreateOrFindSourceWithBook(ctx context.Context, title string) (string, error)
	UpsertEvernoteMetadataSource(ctx context.Context, metadataID string, source string) error
	ConnectNoteToSource(ctx context.Context, noteID string, sourceID string) error
	UpdateInstructionLine(ctx context.Context, noteID string, lineIndex int, reference string, status string, isActive bool) (string, error)
	UpdateIngredientLine(ctx context.Context, noteID string, lineIndex int, reference string, status string, isActive bool) (string, error)
	GetInstructionCompletionStatus(ctx context.Context, noteID string) (InstructionCompletionStatus, error)
	GetNotes(ctx context.Context) ([]*models.PersistedNote, error)
	// FindDuplicates returns whether candidates with a matching title exist,
	// and the candidate note ids.
	FindDuplicates(ctx context.Context, title string) (bool, []string, error)
	// RecordPattern persists a recognized ingredient grammar pattern for a
	// line.
	RecordPattern(ctx context.Context, noteID string, lineIndex int, pattern string) error
}

// InstructionCompletionStatus is the return shape of
// GetInstructionCompletionStatus.
type InstructionCompletionStatus struct {
	CompletedInstructions int
	TotalInstructions     int
	Progress              float64
	IsComplete            bool
}

// UploadResult is returned by ObjectStorage upload operations.
type UploadResult struct {
	Key  string
	URL  string
	Size int64
	ETag string
}

// ObjectStorage is the image-worker's upload collaborator.
type ObjectStorage interface {
	UploadFile(ctx context.Context, path string, key string, contentType string) (*UploadResult, error)
	UploadBuffer(ctx context.Context, buf []byte, key string, contentType string) (*UploadResult, error)
	GeneratePresignedUploadURL(ctx context.Context, key string, contentType string, expiresIn time.Duration) (string, error)
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)
}

// Broadcaster is the Status Broadcaster's API.
type Broadcaster interface {
	// AddStatusEventAndBroadcast appends event to its importId's log (or
	// logs only, if ImportID is empty) and fans it out to subscribers.
	AddStatusEventAndBroadcast(ctx context.Context, event models.StatusEvent) (models.StatusEvent, error)
	// Subscribe registers fn to receive every event appended for
	// importID. The returned func unsubscribes.
	Subscribe(importID string, fn func(models.StatusEvent)) (unsubscribe func())
}

// CacheOptions configures a getOrSet call.
type CacheOptions struct {
	TTL       time.Duration
	MemoryTTL time.Duration
	Tags      []string
}

// CacheService is the two-tier read-through Action Cache.
type CacheService interface {
	GetOrSet(ctx context.Context, key string, fallback func(ctx context.Context) (any, error), opts CacheOptions) (any, error)
	Delete(ctx context.Context, key string) error
	InvalidateByPattern(ctx context.Context, prefix string) (int, error)
	InvalidateByTag(ctx context.Context, tag string) (int, error)
}

// CompletionTracker is the Completion Tracker's API.
type CompletionTracker interface {
	InitializeNoteCompletion(noteID, importID string) error
	SetExpectedCounts(noteID string, counts map[models.LineKind]int) error
	MarkLineCompleted(noteID string, kind models.LineKind, lineIndex int) error
	MarkWorkerCompleted(noteID string, kind models.LineKind) error
	IsNoteTerminal(noteID string) (bool, error)
	OnCategorizationReady(noteID string) error
	AwaitCategorizationReady(ctx context.Context, noteID string, timeout time.Duration) error
	Record(noteID string) (models.NoteCompletionRecord, bool)
	Snapshot() map[string]models.NoteCompletionRecord
}
