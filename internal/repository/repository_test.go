package repository

import (
	"context"
	"os"
	"testing"

	"github.com/awehrman/peas/internal/common"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dir, err := os.MkdirTemp("", "repository-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := storage.Open(nil, common.BadgerConfig{Path: dir})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db)
}

func TestCreateAndGetNoteWithEvernoteMetadata(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	file := &models.ParsedFile{
		Title:           "Chocolate Chip Cookies",
		CleanedContents: "<p>mix and bake</p>",
		Ingredients: []models.IngredientLine{
			{Reference: "1 cup flour", LineIndex: 0},
			{Reference: "2 eggs", LineIndex: 1},
		},
		Instructions: []models.InstructionLine{
			{Reference: "Mix ingredients", LineIndex: 0},
		},
		EvernoteMetadata: models.EvernoteMetadata{Source: "evernote"},
	}

	note, err := repo.CreateNoteWithEvernoteMetadata(ctx, file)
	require.NoError(t, err)
	require.NotEmpty(t, note.ID)
	require.Len(t, note.ParsedIngredientLineID, 2)
	require.Len(t, note.ParsedInstructionLineID, 1)

	fetched, err := repo.GetNoteWithEvernoteMetadata(ctx, note.ID)
	require.NoError(t, err)
	require.Equal(t, "Chocolate Chip Cookies", fetched.Title)
}

func TestGetNoteWithEvernoteMetadataNotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.GetNoteWithEvernoteMetadata(context.Background(), "missing")
	require.Error(t, err)
}

func TestCreateOrFindSourceWithURLDedupes(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	id1, err := repo.CreateOrFindSourceWithURL(ctx, "https://www.example.com/recipe")
	require.NoError(t, err)

	id2, err := repo.CreateOrFindSourceWithURL(ctx, "https://example.com/recipe")
	require.NoError(t, err)

	require.Equal(t, id1, id2, "www.-stripped urls should resolve to the same source")
}

func TestCreateOrFindSourceWithBookDedupes(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	id1, err := repo.CreateOrFindSourceWithBook(ctx, "  The Joy of Cooking  ")
	require.NoError(t, err)
	id2, err := repo.CreateOrFindSourceWithBook(ctx, "the joy of cooking")
	require.NoError(t, err)

	require.Equal(t, id1, id2)
}

func TestConnectNoteToSource(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	file := &models.ParsedFile{Title: "Soup"}
	note, err := repo.CreateNoteWithEvernoteMetadata(ctx, file)
	require.NoError(t, err)

	sourceID, err := repo.CreateOrFindSourceWithURL(ctx, "https://example.com/soup")
	require.NoError(t, err)

	require.NoError(t, repo.ConnectNoteToSource(ctx, note.ID, sourceID))
}

func TestUpdateIngredientLine(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	file := &models.ParsedFile{
		Title:       "Salad",
		Ingredients: []models.IngredientLine{{Reference: "lettuce", LineIndex: 0}},
	}
	note, err := repo.CreateNoteWithEvernoteMetadata(ctx, file)
	require.NoError(t, err)

	id, err := repo.UpdateIngredientLine(ctx, note.ID, 0, "1 head lettuce", "completed", true)
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestGetInstructionCompletionStatus(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	file := &models.ParsedFile{
		Title: "Stew",
		Instructions: []models.InstructionLine{
			{Reference: "brown the meat", LineIndex: 0},
			{Reference: "simmer", LineIndex: 1},
		},
	}
	note, err := repo.CreateNoteWithEvernoteMetadata(ctx, file)
	require.NoError(t, err)

	status, err := repo.GetInstructionCompletionStatus(ctx, note.ID)
	require.NoError(t, err)
	require.Equal(t, 2, status.TotalInstructions)
	require.Equal(t, 0, status.CompletedInstructions)
	require.False(t, status.IsComplete)

	_, err = repo.UpdateInstructionLine(ctx, note.ID, 0, "brown the meat", "completed", true)
	require.NoError(t, err)
	_, err = repo.UpdateInstructionLine(ctx, note.ID, 1, "simmer", "completed", true)
	require.NoError(t, err)

	status, err = repo.GetInstructionCompletionStatus(ctx, note.ID)
	require.NoError(t, err)
	require.True(t, status.IsComplete)
	require.Equal(t, 1.0, status.Progress)
}

func TestFindDuplicates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.CreateNoteWithEvernoteMetadata(ctx, &models.ParsedFile{Title: "Pancakes"})
	require.NoError(t, err)

	found, ids, err := repo.FindDuplicates(ctx, "Pancakes")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, ids, 1)

	found, _, err = repo.FindDuplicates(ctx, "Waffles")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRecordPatternUpserts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordPattern(ctx, "note-1", 0, "QUANTITY UNIT NAME"))
	require.NoError(t, repo.RecordPattern(ctx, "note-1", 0, "QUANTITY NAME"))
}

func TestIsValidURL(t *testing.T) {
	repo := newTestRepository(t)
	require.True(t, repo.IsValidURL("https://example.com/recipe"))
	require.False(t, repo.IsValidURL("not a url"))
	require.False(t, repo.IsValidURL(""))
}
