package actions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/awehrman/peas/internal/action"
	"github.com/awehrman/peas/internal/broadcaster"
	"github.com/awehrman/peas/internal/interfaces"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
	"github.com/awehrman/peas/internal/queue"
	"github.com/awehrman/peas/internal/tracker"
	"github.com/stretchr/testify/require"
)

var _ interfaces.Repository = (*fakeRepository)(nil)

// fakeRepository is a minimal in-memory interfaces.Repository used so
// action tests exercise business logic without a badger dependency
// (internal/interfaces documents actions as testable against fakes).
type fakeRepository struct {
	ingredientUpdates []models.LineJobData
	instructionUpdates []models.LineJobData
	patterns          map[int]string
	sources           map[string]string
	connected         map[string]string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{patterns: map[int]string{}, sources: map[string]string{}, connected: map[string]string{}}
}

func (f *fakeRepository) CreateNoteWithEvernoteMetadata(ctx context.Context, file *models.ParsedFile) (*models.PersistedNote, error) {
	return &models.PersistedNote{ID: "note-1", Title: file.Title}, nil
}
func (f *fakeRepository) GetNoteWithEvernoteMetadata(ctx context.Context, noteID string) (*models.PersistedNote, error) {
	return &models.PersistedNote{ID: noteID}, nil
}
func (f *fakeRepository) IsValidURL(s string) bool { return len(s) > 8 && s[:4] == "http" }
func (f *fakeRepository) CreateOrFindSourceWithURL(ctx context.Context, url string) (string, error) {
	f.sources[url] = "url"
	return "source-url-" + url, nil
}
func (f *fakeRepository) CreateOrFindSourceWithBook(ctx context.Context, title string) (string, error) {
	f.sources[title] = "book"
	return "source-book-" + title, nil
}
func (f *fakeRepository) UpsertEvernoteMetadataSource(ctx context.Context, metadataID string, source string) error {
	return nil
}
func (f *fakeRepository) ConnectNoteToSource(ctx context.Context, noteID string, sourceID string) error {
	f.connected[noteID] = sourceID
	return nil
}
func (f *fakeRepository) UpdateInstructionLine(ctx context.Context, noteID string, lineIndex int, reference string, status string, isActive bool) (string, error) {
	f.instructionUpdates = append(f.instructionUpdates, models.LineJobData{NoteID: noteID, LineIndex: lineIndex, Reference: reference})
	return "line-id", nil
}
func (f *fakeRepository) UpdateIngredientLine(ctx context.Context, noteID string, lineIndex int, reference string, status string, isActive bool) (string, error) {
	f.ingredientUpdates = append(f.ingredientUpdates, models.LineJobData{NoteID: noteID, LineIndex: lineIndex, Reference: reference})
	return "line-id", nil
}
func (f *fakeRepository) GetInstructionCompletionStatus(ctx context.Context, noteID string) (interfaces.InstructionCompletionStatus, error) {
	return interfaces.InstructionCompletionStatus{}, nil
}
func (f *fakeRepository) GetNotes(ctx context.Context) ([]*models.PersistedNote, error) { return nil, nil }
func (f *fakeRepository) FindDuplicates(ctx context.Context, title string) (bool, []string, error) {
	return false, nil, nil
}
func (f *fakeRepository) RecordPattern(ctx context.Context, noteID string, lineIndex int, pattern string) error {
	f.patterns[lineIndex] = pattern
	return nil
}

func testDeps(t *testing.T, repo *fakeRepository, queues *queue.Registry) *action.Dependencies {
	t.Helper()
	return &action.Dependencies{
		Broadcaster: broadcaster.New(nil),
		Tracker:     tracker.New(nil),
		Queues:      queues,
		Repository:  repo,
	}
}

func TestFormatInstructionReference(t *testing.T) {
	cases := []struct {
		in       string
		want     string
		wantKeep bool
	}{
		{" Mix ingredients  ", "Mix ingredients.", true},
		{"   ", "", false},
		{"Bake at 350F", "Bake at 350F.", true},
		{"Already punctuated!", "Already punctuated!", true},
		{"Wait; then serve", "Wait; then serve.", true},
	}
	for _, c := range cases {
		got, keep := formatInstructionReference(c.in)
		require.Equal(t, c.wantKeep, keep, c.in)
		if c.wantKeep {
			require.Equal(t, c.want, got, c.in)
		}
	}
}

func TestScheduleInstructionLinesDropsEmptyAndFormats(t *testing.T) {
	repo := newFakeRepository()
	queues := queue.NewRegistry()
	instructionQueue := queue.NewMemoryQueue("instruction", 10)
	completionQueue := queue.NewMemoryQueue("instruction-completion", 10)
	queues.Register(instructionQueue)
	queues.Register(completionQueue)
	deps := testDeps(t, repo, queues)

	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "import-1"))

	d := &models.NotePipelineData{
		NoteID:   "note-1",
		ImportID: "import-1",
		File: &models.ParsedFile{
			Instructions: []models.InstructionLine{
				{Reference: " Mix ingredients  ", LineIndex: 0},
				{Reference: "   ", LineIndex: 1},
				{Reference: "Bake at 350F", LineIndex: 2},
			},
		},
	}

	a := &ScheduleInstructionLines{Base: action.NewBase("schedule_instruction_lines"), deps: deps}
	out, err := a.Execute(context.Background(), models.ActionContext{}, d)
	require.NoError(t, err)
	require.Equal(t, d, out)

	record, ok := deps.Tracker.Record("note-1")
	require.True(t, ok)
	require.Equal(t, 2, record.ExpectedLineCounts[models.KindInstruction])

	job0, err := instructionQueue.Pull(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.NewLineJobID("note-1", models.KindInstruction, 0), job0.JobID)
	var line0 models.LineJobData
	require.NoError(t, json.Unmarshal(job0.Payload, &line0))
	require.Equal(t, "Mix ingredients.", line0.Reference)

	job1, err := instructionQueue.Pull(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.NewLineJobID("note-1", models.KindInstruction, 2), job1.JobID)
}

func TestScheduleLinesRequiresQueue(t *testing.T) {
	repo := newFakeRepository()
	queues := queue.NewRegistry()
	deps := testDeps(t, repo, queues)
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "import-1"))

	d := &models.NotePipelineData{
		NoteID: "note-1",
		File: &models.ParsedFile{
			Ingredients: []models.IngredientLine{{Reference: "1 cup flour", LineIndex: 0}},
		},
	}

	a := &ScheduleIngredientLines{Base: action.NewBase("schedule_ingredient_lines"), deps: deps}
	_, err := a.Execute(context.Background(), models.ActionContext{}, d)
	require.Error(t, err)
	require.Equal(t, pipeline.KindMissingDependency, pipeline.KindOf(err))
}

func TestParseAndSaveIngredientLine(t *testing.T) {
	repo := newFakeRepository()
	queues := queue.NewRegistry()
	deps := testDeps(t, repo, queues)
	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "import-1"))
	require.NoError(t, deps.Tracker.SetExpectedCounts("note-1", map[models.LineKind]int{models.KindIngredient: 1}))

	raw, err := encode(models.LineJobData{NoteID: "note-1", Reference: "1 cup flour", LineIndex: 0, Kind: models.KindIngredient, JobID: "note-1-ingredient-0"})
	require.NoError(t, err)

	parse := &ParseIngredientLine{Base: action.NewBase("parse_ingredient_line"), deps: deps}
	parsed, err := parse.Execute(context.Background(), models.ActionContext{}, raw)
	require.NoError(t, err)
	state := parsed.(*ingredientLineState)
	require.Equal(t, "QUANTITY_UNIT_NAME", state.Pattern)

	save := &SaveIngredientLine{Base: action.NewBase("save_ingredient_line"), deps: deps}
	_, err = save.Execute(context.Background(), models.ActionContext{}, state)
	require.NoError(t, err)
	require.Len(t, repo.ingredientUpdates, 1)

	track := &TrackPattern{Base: action.NewBase("track_pattern"), deps: deps}
	_, err = track.Execute(context.Background(), models.ActionContext{}, state)
	require.NoError(t, err)
	require.Equal(t, "QUANTITY_UNIT_NAME", repo.patterns[0])

	record, _ := deps.Tracker.Record("note-1")
	require.Equal(t, 1, record.ObservedLineCompletions[models.KindIngredient])
}

func TestCheckIngredientCompletionRetriesThenCompletes(t *testing.T) {
	repo := newFakeRepository()
	queues := queue.NewRegistry()
	deps := testDeps(t, repo, queues)
	cfg := DefaultCompletionConfig()

	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "import-1"))
	require.NoError(t, deps.Tracker.SetExpectedCounts("note-1", map[models.LineKind]int{models.KindIngredient: 1}))

	a := &CheckIngredientCompletion{Base: action.NewBase("check_ingredient_completion"), deps: deps, cfg: cfg}
	d := models.CompletionCheckJobData{NoteID: "note-1", ImportID: "import-1", Kind: models.KindIngredient, JobID: "note-1-ingredient-completion-check"}
	raw, err := encode(d)
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), models.ActionContext{AttemptNumber: 1}, raw)
	require.Error(t, err)
	require.True(t, pipeline.Retryable(err))

	require.NoError(t, deps.Tracker.MarkLineCompleted("note-1", models.KindIngredient, 0))

	_, err = a.Execute(context.Background(), models.ActionContext{AttemptNumber: 2}, raw)
	require.NoError(t, err)

	record, _ := deps.Tracker.Record("note-1")
	require.True(t, record.WorkerCompletion[models.KindIngredient])
}

func TestCheckInstructionCompletionExhausts(t *testing.T) {
	repo := newFakeRepository()
	queues := queue.NewRegistry()
	deps := testDeps(t, repo, queues)
	cfg := DefaultCompletionConfig()
	cfg.CompletionCheckMaxRetries = 2

	require.NoError(t, deps.Tracker.InitializeNoteCompletion("note-1", "import-1"))
	require.NoError(t, deps.Tracker.SetExpectedCounts("note-1", map[models.LineKind]int{models.KindInstruction: 3}))

	a := &CheckInstructionCompletion{Base: action.NewBase("check_instruction_completion"), deps: deps, cfg: cfg}
	d := models.CompletionCheckJobData{NoteID: "note-1", ImportID: "import-1", Kind: models.KindInstruction, JobID: "note-1-instruction-completion-check"}
	raw, err := encode(d)
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), models.ActionContext{AttemptNumber: 2}, raw)
	require.Error(t, err)
	require.Equal(t, pipeline.KindExhausted, pipeline.KindOf(err))
	require.False(t, pipeline.Retryable(err))
}
