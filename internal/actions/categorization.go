package actions

import (
	"context"
	"fmt"

	"github.com/awehrman/peas/internal/action"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
)

// WaitForCategorization blocks until the tracker reports
// categorizationReady or a bounded timeout elapses. This is the one action in the registry allowed an unbounded-looking
// wait; it is always bounded by CategorizationTimeout.
type WaitForCategorization struct {
	action.Base
	deps    *action.Dependencies
	timeout CompletionConfig
}

func NewWaitForCategorization(deps *action.Dependencies, cfg CompletionConfig) (action.Action, error) {
	return &WaitForCategorization{Base: action.NewBase("wait_for_categorization"), deps: deps, timeout: cfg}, nil
}

func (a *WaitForCategorization) ValidateInput(data any) error {
	d, ok := data.(*models.NotePipelineData)
	if !ok {
		return fmt.Errorf("wait_for_categorization: expected *models.NotePipelineData")
	}
	if d.NoteID == "" {
		return fmt.Errorf("wait_for_categorization: noteId is required")
	}
	return nil
}

func (a *WaitForCategorization) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	d := data.(*models.NotePipelineData)

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          d.ImportID,
		NoteID:            d.NoteID,
		ContextName:       "wait_for_categorization",
		StartMessage:      "Waiting for categorization",
		CompletionMessage: "Categorization ready",
		IndentLevel:       1,
		ServiceCall: func(ctx context.Context) (any, error) {
			if err := a.deps.Tracker.AwaitCategorizationReady(ctx, d.NoteID, a.timeout.CategorizationTimeout); err != nil {
				// Non-retryable: other completion state is preserved.
				return nil, pipeline.InvalidInput("wait_for_categorization", err)
			}
			return d, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkNoteWorkerCompleted flips the note's own "note" kind to completed in
// the tracker — the terminal step of the note pipeline.
type MarkNoteWorkerCompleted struct {
	action.Base
	deps *action.Dependencies
}

func NewMarkNoteWorkerCompleted(deps *action.Dependencies) (action.Action, error) {
	return &MarkNoteWorkerCompleted{Base: action.NewBase("mark_note_worker_completed"), deps: deps}, nil
}

func (a *MarkNoteWorkerCompleted) ValidateInput(data any) error {
	d, ok := data.(*models.NotePipelineData)
	if !ok {
		return fmt.Errorf("mark_note_worker_completed: expected *models.NotePipelineData")
	}
	if d.NoteID == "" {
		return fmt.Errorf("mark_note_worker_completed: noteId is required")
	}
	return nil
}

func (a *MarkNoteWorkerCompleted) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	d := data.(*models.NotePipelineData)

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          d.ImportID,
		NoteID:            d.NoteID,
		ContextName:       "mark_note_worker_completed",
		StartMessage:      "Finalizing note",
		CompletionMessage: "Note import complete",
		IndentLevel:       1,
		ServiceCall: func(ctx context.Context) (any, error) {
			if err := a.deps.Tracker.MarkWorkerCompleted(d.NoteID, models.KindNote); err != nil {
				return nil, pipeline.ProgrammingError("mark_note_worker_completed", err)
			}
			return d, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
