// Package repository is the default badgerhold-backed implementation of
// interfaces.Repository, keeping one record type per entity in the shared
// badgerhold store.
package repository

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/awehrman/peas/internal/interfaces"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
	"github.com/awehrman/peas/internal/storage"
	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"
)

// noteRecord is the badgerhold-stored shape of a persisted note, keyed by
// ID.
type noteRecord struct {
	ID                      string
	Title                   string
	CleanedContents         string
	ImageRef                string
	EvernoteMetadataID      string
	ParsedIngredientLineIDs []string
	ParsedInstructionLineID []string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

type evernoteMetadataRecord struct {
	ID                string
	NoteID            string
	Source            string
	Tags              []string
	OriginalCreatedAt time.Time
}

type lineRecord struct {
	ID        string
	NoteID    string
	LineIndex int
	Reference string
	Status    string
	IsActive  bool
	Kind      models.LineKind
}

type sourceRecord struct {
	ID   string
	Kind string // "url" or "book"
	Key  string // normalized url or book title
}

type patternRecord struct {
	ID        string
	NoteID    string
	LineIndex int
	Pattern   string
}

// Repository implements interfaces.Repository over a shared BadgerDB.
type Repository struct {
	db *storage.BadgerDB
}

// New constructs a Repository over db.
func New(db *storage.BadgerDB) *Repository {
	return &Repository{db: db}
}

var _ interfaces.Repository = (*Repository)(nil)

func (r *Repository) CreateNoteWithEvernoteMetadata(ctx context.Context, file *models.ParsedFile) (*models.PersistedNote, error) {
	if file == nil {
		return nil, pipeline.InvalidInput("repository.CreateNoteWithEvernoteMetadata", fmt.Errorf("file is required"))
	}

	now := time.Now()
	note := noteRecord{
		ID:              uuid.NewString(),
		Title:           file.Title,
		CleanedContents: file.CleanedContents,
		ImageRef:        file.ImageRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	meta := evernoteMetadataRecord{
		ID:                uuid.NewString(),
		NoteID:            note.ID,
		Source:            file.EvernoteMetadata.Source,
		Tags:              file.EvernoteMetadata.Tags,
		OriginalCreatedAt: file.EvernoteMetadata.OriginalCreatedAt,
	}
	note.EvernoteMetadataID = meta.ID

	for _, ing := range file.Ingredients {
		id := uuid.NewString()
		rec := lineRecord{ID: id, NoteID: note.ID, LineIndex: ing.LineIndex, Reference: ing.Reference, Kind: models.KindIngredient}
		if err := r.db.Store().Insert(id, &rec); err != nil {
			return nil, pipeline.RepositoryFailure("repository.CreateNoteWithEvernoteMetadata", err)
		}
		note.ParsedIngredientLineIDs = append(note.ParsedIngredientLineIDs, id)
	}
	for _, ins := range file.Instructions {
		id := uuid.NewString()
		rec := lineRecord{ID: id, NoteID: note.ID, LineIndex: ins.LineIndex, Reference: ins.Reference, Kind: models.KindInstruction}
		if err := r.db.Store().Insert(id, &rec); err != nil {
			return nil, pipeline.RepositoryFailure("repository.CreateNoteWithEvernoteMetadata", err)
		}
		note.ParsedInstructionLineID = append(note.ParsedInstructionLineID, id)
	}

	if err := r.db.Store().Insert(meta.ID, &meta); err != nil {
		return nil, pipeline.RepositoryFailure("repository.CreateNoteWithEvernoteMetadata", err)
	}
	if err := r.db.Store().Insert(note.ID, &note); err != nil {
		return nil, pipeline.RepositoryFailure("repository.CreateNoteWithEvernoteMetadata", err)
	}

	return toPersistedNote(note), nil
}

func (r *Repository) GetNoteWithEvernoteMetadata(ctx context.Context, noteID string) (*models.PersistedNote, error) {
	var note noteRecord
	if err := r.db.Store().Get(noteID, &note); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, pipeline.InvalidInput("repository.GetNoteWithEvernoteMetadata", fmt.Errorf("note not found: %s", noteID))
		}
		return nil, pipeline.RepositoryFailure("repository.GetNoteWithEvernoteMetadata", err)
	}
	return toPersistedNote(note), nil
}

// IsValidURL reports whether s parses as an absolute http(s) URL.
func (r *Repository) IsValidURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (r *Repository) CreateOrFindSourceWithURL(ctx context.Context, rawURL string) (string, error) {
	key := normalizeURL(rawURL)
	return r.findOrCreateSource(ctx, "url", key)
}

func (r *Repository) CreateOrFindSourceWithBook(ctx context.Context, title string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(title))
	return r.findOrCreateSource(ctx, "book", key)
}

func (r *Repository) findOrCreateSource(ctx context.Context, kind, key string) (string, error) {
	var existing []sourceRecord
	err := r.db.Store().Find(&existing, badgerhold.Where("Kind").Eq(kind).And("Key").Eq(key))
	if err != nil {
		return "", pipeline.RepositoryFailure("repository.findOrCreateSource", err)
	}
	if len(existing) > 0 {
		return existing[0].ID, nil
	}

	rec := sourceRecord{ID: uuid.NewString(), Kind: kind, Key: key}
	if err := r.db.Store().Insert(rec.ID, &rec); err != nil {
		return "", pipeline.RepositoryFailure("repository.findOrCreateSource", err)
	}
	return rec.ID, nil
}

func (r *Repository) UpsertEvernoteMetadataSource(ctx context.Context, metadataID string, source string) error {
	var meta evernoteMetadataRecord
	if err := r.db.Store().Get(metadataID, &meta); err != nil {
		if err == badgerhold.ErrNotFound {
			return pipeline.InvalidInput("repository.UpsertEvernoteMetadataSource", fmt.Errorf("evernote metadata not found: %s", metadataID))
		}
		return pipeline.RepositoryFailure("repository.UpsertEvernoteMetadataSource", err)
	}
	meta.Source = source
	if err := r.db.Store().Update(metadataID, &meta); err != nil {
		return pipeline.RepositoryFailure("repository.UpsertEvernoteMetadataSource", err)
	}
	return nil
}

func (r *Repository) ConnectNoteToSource(ctx context.Context, noteID string, sourceID string) error {
	var note noteRecord
	if err := r.db.Store().Get(noteID, &note); err != nil {
		if err == badgerhold.ErrNotFound {
			return pipeline.InvalidInput("repository.ConnectNoteToSource", fmt.Errorf("note not found: %s", noteID))
		}
		return pipeline.RepositoryFailure("repository.ConnectNoteToSource", err)
	}

	if note.EvernoteMetadataID != "" {
		if err := r.UpsertEvernoteMetadataSource(ctx, note.EvernoteMetadataID, sourceID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) updateLine(ctx context.Context, op string, noteID string, lineIndex int, reference string, status string, isActive bool, kind models.LineKind) (string, error) {
	var lines []lineRecord
	err := r.db.Store().Find(&lines, badgerhold.Where("NoteID").Eq(noteID).And("LineIndex").Eq(lineIndex).And("Kind").Eq(kind))
	if err != nil {
		return "", pipeline.RepositoryFailure(op, err)
	}
	if len(lines) == 0 {
		return "", pipeline.InvalidInput(op, fmt.Errorf("line not found: note=%s index=%d", noteID, lineIndex))
	}

	line := lines[0]
	line.Reference = reference
	line.Status = status
	line.IsActive = isActive
	if err := r.db.Store().Update(line.ID, &line); err != nil {
		return "", pipeline.RepositoryFailure(op, err)
	}
	return line.ID, nil
}

func (r *Repository) UpdateInstructionLine(ctx context.Context, noteID string, lineIndex int, reference string, status string, isActive bool) (string, error) {
	return r.updateLine(ctx, "repository.UpdateInstructionLine", noteID, lineIndex, reference, status, isActive, models.KindInstruction)
}

func (r *Repository) UpdateIngredientLine(ctx context.Context, noteID string, lineIndex int, reference string, status string, isActive bool) (string, error) {
	return r.updateLine(ctx, "repository.UpdateIngredientLine", noteID, lineIndex, reference, status, isActive, models.KindIngredient)
}

func (r *Repository) GetInstructionCompletionStatus(ctx context.Context, noteID string) (interfaces.InstructionCompletionStatus, error) {
	var lines []lineRecord
	err := r.db.Store().Find(&lines, badgerhold.Where("NoteID").Eq(noteID).And("Kind").Eq(models.KindInstruction))
	if err != nil {
		return interfaces.InstructionCompletionStatus{}, pipeline.RepositoryFailure("repository.GetInstructionCompletionStatus", err)
	}

	total := len(lines)
	completed := 0
	for _, l := range lines {
		if l.Status == "completed" {
			completed++
		}
	}

	status := interfaces.InstructionCompletionStatus{
		CompletedInstructions: completed,
		TotalInstructions:     total,
	}
	if total > 0 {
		status.Progress = float64(completed) / float64(total)
		status.IsComplete = completed == total
	}
	return status, nil
}

func (r *Repository) GetNotes(ctx context.Context) ([]*models.PersistedNote, error) {
	var notes []noteRecord
	if err := r.db.Store().Find(&notes, badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()); err != nil {
		return nil, pipeline.RepositoryFailure("repository.GetNotes", err)
	}

	out := make([]*models.PersistedNote, 0, len(notes))
	for _, n := range notes {
		out = append(out, toPersistedNote(n))
	}
	return out, nil
}

func (r *Repository) FindDuplicates(ctx context.Context, title string) (bool, []string, error) {
	var notes []noteRecord
	err := r.db.Store().Find(&notes, badgerhold.Where("Title").Eq(title))
	if err != nil {
		return false, nil, pipeline.RepositoryFailure("repository.FindDuplicates", err)
	}
	if len(notes) == 0 {
		return false, nil, nil
	}

	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		ids = append(ids, n.ID)
	}
	return true, ids, nil
}

func (r *Repository) RecordPattern(ctx context.Context, noteID string, lineIndex int, pattern string) error {
	rec := patternRecord{
		ID:        noteID + ":" + strconv.Itoa(lineIndex),
		NoteID:    noteID,
		LineIndex: lineIndex,
		Pattern:   pattern,
	}
	if err := r.db.Store().Upsert(rec.ID, &rec); err != nil {
		return pipeline.RepositoryFailure("repository.RecordPattern", err)
	}
	return nil
}

func toPersistedNote(n noteRecord) *models.PersistedNote {
	return &models.PersistedNote{
		ID:                      n.ID,
		Title:                   n.Title,
		EvernoteMetadataID:      n.EvernoteMetadataID,
		ParsedIngredientLineID:  n.ParsedIngredientLineIDs,
		ParsedInstructionLineID: n.ParsedInstructionLineID,
		CreatedAt:               n.CreatedAt,
		UpdatedAt:               n.UpdatedAt,
	}
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	return u.String()
}
