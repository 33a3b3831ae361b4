package actions

import (
	"context"
	"fmt"
	"sync"

	"github.com/awehrman/peas/internal/action"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
)

// lineRef is the scheduler-agnostic shape of one fan-out line: an
// ingredient or instruction line reduced to what scheduleLines needs.
type lineRef struct {
	Reference string
	LineIndex int
}

// scheduleLines implements the shared fan-out steps for one line kind:
// validate, no-op on empty input, require the queue, enqueue one job per
// line plus a completion-check sentinel, set expected counts, and emit the
// initial progress event.
func scheduleLines(ctx context.Context, deps *action.Dependencies, d *models.NotePipelineData, kind models.LineKind, lines []lineRef) error {
	if d.NoteID == "" {
		return pipeline.InvalidInput(string(kind)+"_schedule", fmt.Errorf("noteId is required"))
	}
	if len(lines) == 0 {
		return nil
	}

	q, ok := deps.Queues.Queue(string(kind))
	if !ok {
		return pipeline.MissingDependency(string(kind)+"_schedule", fmt.Errorf("queue %q not wired", kind))
	}

	for _, line := range lines {
		jobID := models.NewLineJobID(d.NoteID, kind, line.LineIndex)
		payload := models.LineJobData{
			NoteID:    d.NoteID,
			ImportID:  d.ImportID,
			Reference: line.Reference,
			LineIndex: line.LineIndex,
			Kind:      kind,
			JobID:     jobID,
		}
		raw, err := encode(payload)
		if err != nil {
			return pipeline.InvalidInput(string(kind)+"_schedule", err)
		}
		firstAction, err := firstActionForKind(kind)
		if err != nil {
			return err
		}
		if err := q.Add(ctx, firstAction, raw, jobID, nil); err != nil {
			return pipeline.TransientIO(string(kind)+"_schedule", err)
		}
	}

	// The completion-check sentinel runs its own single-action pipeline
	// (BuildIngredientCompletionCheckPipeline / BuildInstructionCompletion-
	// CheckPipeline), distinct from the line pipeline above, so it lives on
	// its own queue rather than the line queue — a worker's pipeline
	// builder is fixed per queue, not chosen per job.
	checkQueue, ok := deps.Queues.Queue(completionQueueName(kind))
	if !ok {
		return pipeline.MissingDependency(string(kind)+"_schedule", fmt.Errorf("queue %q not wired", completionQueueName(kind)))
	}
	checkJobID := models.NewCompletionCheckJobID(d.NoteID, kind)
	checkPayload := models.CompletionCheckJobData{NoteID: d.NoteID, ImportID: d.ImportID, Kind: kind, JobID: checkJobID}
	checkRaw, err := encode(checkPayload)
	if err != nil {
		return pipeline.InvalidInput(string(kind)+"_schedule", err)
	}
	if err := checkQueue.Add(ctx, "check_"+string(kind)+"_completion", checkRaw, checkJobID, nil); err != nil {
		return pipeline.TransientIO(string(kind)+"_schedule", err)
	}

	if err := deps.Tracker.SetExpectedCounts(d.NoteID, map[models.LineKind]int{kind: len(lines)}); err != nil {
		return pipeline.ProgrammingError(string(kind)+"_schedule", err)
	}

	if deps.Broadcaster != nil {
		total := len(lines)
		_, err := deps.Broadcaster.AddStatusEventAndBroadcast(ctx, models.StatusEvent{
			ImportID:     d.ImportID,
			NoteID:       d.NoteID,
			Status:       models.StatusPending,
			Message:      fmt.Sprintf("0/%d %s", total, kind),
			Context:      string(kind) + "_processing",
			IndentLevel:  2,
			CurrentCount: intPtr(0),
			TotalCount:   &total,
		})
		if err != nil && deps.Logger != nil {
			deps.Logger.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to broadcast fan-out start event")
		}
	}

	return nil
}

// completionQueueName names the dedicated queue a kind's completion-check
// sentinel lives on, separate from its line queue.
func completionQueueName(kind models.LineKind) string {
	return string(kind) + "-completion"
}

func firstActionForKind(kind models.LineKind) (string, error) {
	switch kind {
	case models.KindIngredient:
		return "parse_ingredient_line", nil
	case models.KindInstruction:
		return "format_instruction_line", nil
	case models.KindImage:
		return "process_image", nil
	default:
		return "", pipeline.ProgrammingError("schedule", fmt.Errorf("no pipeline entry action for kind %q", kind))
	}
}

// ScheduleIngredientLines fans the note's ingredient lines out to the
// ingredient queue.
type ScheduleIngredientLines struct {
	action.Base
	deps *action.Dependencies
}

func NewScheduleIngredientLines(deps *action.Dependencies) (action.Action, error) {
	return &ScheduleIngredientLines{Base: action.NewBase("schedule_ingredient_lines"), deps: deps}, nil
}

func (a *ScheduleIngredientLines) ValidateInput(data any) error {
	d, ok := data.(*models.NotePipelineData)
	if !ok {
		return fmt.Errorf("schedule_ingredient_lines: expected *models.NotePipelineData")
	}
	if d.NoteID == "" {
		return fmt.Errorf("schedule_ingredient_lines: noteId is required")
	}
	return nil
}

func (a *ScheduleIngredientLines) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	d := data.(*models.NotePipelineData)
	var lines []lineRef
	if d.File != nil {
		for _, l := range d.File.Ingredients {
			lines = append(lines, lineRef{Reference: l.Reference, LineIndex: l.LineIndex})
		}
	}
	if err := scheduleLines(ctx, a.deps, d, models.KindIngredient, lines); err != nil {
		return nil, err
	}
	return d, nil
}

// ScheduleInstructionLines fans the note's instruction lines out to the
// instruction queue.
type ScheduleInstructionLines struct {
	action.Base
	deps *action.Dependencies
}

func NewScheduleInstructionLines(deps *action.Dependencies) (action.Action, error) {
	return &ScheduleInstructionLines{Base: action.NewBase("schedule_instruction_lines"), deps: deps}, nil
}

func (a *ScheduleInstructionLines) ValidateInput(data any) error {
	d, ok := data.(*models.NotePipelineData)
	if !ok {
		return fmt.Errorf("schedule_instruction_lines: expected *models.NotePipelineData")
	}
	if d.NoteID == "" {
		return fmt.Errorf("schedule_instruction_lines: noteId is required")
	}
	return nil
}

func (a *ScheduleInstructionLines) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	d := data.(*models.NotePipelineData)
	var lines []lineRef
	if d.File != nil {
		// format and drop empties before any job is created,
		// so a dropped line's index is simply absent from the fan-out and
		// the tracker's expected count, not re-indexed.
		for _, l := range d.File.Instructions {
			formatted, keep := formatInstructionReference(l.Reference)
			if !keep {
				continue
			}
			lines = append(lines, lineRef{Reference: formatted, LineIndex: l.LineIndex})
		}
	}
	if err := scheduleLines(ctx, a.deps, d, models.KindInstruction, lines); err != nil {
		return nil, err
	}
	return d, nil
}

// ScheduleImages fans the note's single image reference out to the image
// queue, if present.
type ScheduleImages struct {
	action.Base
	deps *action.Dependencies
}

func NewScheduleImages(deps *action.Dependencies) (action.Action, error) {
	return &ScheduleImages{Base: action.NewBase("schedule_images"), deps: deps}, nil
}

func (a *ScheduleImages) ValidateInput(data any) error {
	d, ok := data.(*models.NotePipelineData)
	if !ok {
		return fmt.Errorf("schedule_images: expected *models.NotePipelineData")
	}
	if d.NoteID == "" {
		return fmt.Errorf("schedule_images: noteId is required")
	}
	return nil
}

func (a *ScheduleImages) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	d := data.(*models.NotePipelineData)
	if d.File == nil || d.File.ImageRef == "" {
		return d, nil
	}

	q, ok := a.deps.Queues.Queue(string(models.KindImage))
	if !ok {
		return nil, pipeline.MissingDependency("schedule_images", fmt.Errorf("queue %q not wired", models.KindImage))
	}

	jobID := models.NewImageJobID(d.NoteID)
	payload := models.ImageJobData{NoteID: d.NoteID, ImportID: d.ImportID, ImageRef: d.File.ImageRef, JobID: jobID}
	raw, err := encode(payload)
	if err != nil {
		return nil, pipeline.InvalidInput("schedule_images", err)
	}
	if err := q.Add(ctx, "process_image", raw, jobID, nil); err != nil {
		return nil, pipeline.TransientIO("schedule_images", err)
	}

	if err := a.deps.Tracker.SetExpectedCounts(d.NoteID, map[models.LineKind]int{models.KindImage: 1}); err != nil {
		return nil, pipeline.ProgrammingError("schedule_images", err)
	}

	return d, nil
}

// ProcessSource resolves the note's evernote source string to a source
// record, creating or finding it by URL or by book title.
type ProcessSource struct {
	action.Base
	deps *action.Dependencies
}

func NewProcessSource(deps *action.Dependencies) (action.Action, error) {
	return &ProcessSource{Base: action.NewBase("process_source"), deps: deps}, nil
}

func (a *ProcessSource) ValidateInput(data any) error {
	raw, ok := asBytes(data)
	if !ok {
		return fmt.Errorf("process_source: expected raw payload bytes")
	}
	var d models.SourceJobData
	return decode(raw, &d)
}

func (a *ProcessSource) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	raw, _ := asBytes(data)
	var d models.SourceJobData
	if err := decode(raw, &d); err != nil {
		return nil, pipeline.InvalidInput("process_source", err)
	}

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          d.ImportID,
		NoteID:            d.NoteID,
		ContextName:       "process_source",
		StartMessage:      "Resolving source",
		CompletionMessage: "Source resolved",
		IndentLevel:       2,
		ServiceCall: func(ctx context.Context) (any, error) {
			if d.Source == "" {
				return &d, nil
			}

			var sourceID string
			var err error
			if a.deps.Repository.IsValidURL(d.Source) {
				sourceID, err = a.deps.Repository.CreateOrFindSourceWithURL(ctx, d.Source)
			} else {
				sourceID, err = a.deps.Repository.CreateOrFindSourceWithBook(ctx, d.Source)
			}
			if err != nil {
				return nil, pipeline.RepositoryFailure("process_source", err)
			}

			if err := a.deps.Repository.ConnectNoteToSource(ctx, d.NoteID, sourceID); err != nil {
				return nil, pipeline.RepositoryFailure("process_source", err)
			}
			if d.MetadataID != "" {
				if err := a.deps.Repository.UpsertEvernoteMetadataSource(ctx, d.MetadataID, d.Source); err != nil {
					return nil, pipeline.RepositoryFailure("process_source", err)
				}
			}
			return &d, nil
		},
	})
	if err != nil {
		return nil, err
	}

	if err := a.deps.Tracker.MarkWorkerCompleted(d.NoteID, models.KindSource); err != nil {
		return nil, pipeline.ProgrammingError("process_source", err)
	}

	return result, nil
}

// ScheduleAllFollowupTasks runs the three line/image schedulers and source
// resolution concurrently. It waits for every child to finish, then returns
// the first error reported; a failing child does not cancel its siblings.
// This follows SpawnChildJob's
// concurrent dispatch generalized from one child at a time to several at once.
type ScheduleAllFollowupTasks struct {
	action.Base
	deps *action.Dependencies
}

func NewScheduleAllFollowupTasks(deps *action.Dependencies) (action.Action, error) {
	return &ScheduleAllFollowupTasks{Base: action.NewBase("schedule_all_followup_tasks"), deps: deps}, nil
}

func (a *ScheduleAllFollowupTasks) ValidateInput(data any) error {
	d, ok := data.(*models.NotePipelineData)
	if !ok {
		return fmt.Errorf("schedule_all_followup_tasks: expected *models.NotePipelineData")
	}
	if d.NoteID == "" {
		return fmt.Errorf("schedule_all_followup_tasks: noteId is required")
	}
	return nil
}

// scheduleSource enqueues the note's source-resolution job onto the
// "source" queue. A missing/empty source is a no-op.
func scheduleSource(ctx context.Context, deps *action.Dependencies, d *models.NotePipelineData) error {
	source := ""
	if d.File != nil {
		source = d.File.EvernoteMetadata.Source
	}
	if source == "" {
		return nil
	}

	q, ok := deps.Queues.Queue(string(models.KindSource))
	if !ok {
		return pipeline.MissingDependency("process_source", fmt.Errorf("queue %q not wired", models.KindSource))
	}

	metadataID := ""
	if d.Note != nil {
		metadataID = d.Note.EvernoteMetadataID
	}
	jobID := models.NewSourceJobID(d.NoteID)
	payload := models.SourceJobData{NoteID: d.NoteID, ImportID: d.ImportID, MetadataID: metadataID, Source: source, JobID: jobID}
	raw, err := encode(payload)
	if err != nil {
		return pipeline.InvalidInput("process_source", err)
	}
	if err := q.Add(ctx, "process_source", raw, jobID, nil); err != nil {
		return pipeline.TransientIO("process_source", err)
	}
	return nil
}

func (a *ScheduleAllFollowupTasks) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	d := data.(*models.NotePipelineData)

	children := []func() error{
		func() error {
			_, err := (&ScheduleIngredientLines{deps: a.deps}).Execute(ctx, actx, d)
			return err
		},
		func() error {
			_, err := (&ScheduleInstructionLines{deps: a.deps}).Execute(ctx, actx, d)
			return err
		},
		func() error {
			_, err := (&ScheduleImages{deps: a.deps}).Execute(ctx, actx, d)
			return err
		},
		func() error { return scheduleSource(ctx, a.deps, d) },
	}

	errCh := make(chan error, len(children))
	var wg sync.WaitGroup
	for _, child := range children {
		wg.Add(1)
		go func(fn func() error) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errCh <- pipeline.ProgrammingError("schedule_all_followup_tasks", fmt.Errorf("panic: %v", r))
				}
			}()
			if err := fn(); err != nil {
				errCh <- err
			}
		}(child)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}

	return d, nil
}
