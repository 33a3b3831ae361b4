package actions

import (
	"context"
	"fmt"

	"github.com/awehrman/peas/internal/action"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
)

// checkCompletion implements the shared sentinel behavior for one
// line kind: if observed has caught up to expected, mark the kind complete
// and stop. Otherwise return a retryable error so the worker's own
// backoff/attempt-count policy re-delivers this exact job (no duplicate
// jobId is ever enqueued); the worker running this action's queue is
// configured with a faster 100ms/5s/60-attempt backoff rather
// than the runtime default. Once actx's attempt count reaches that ceiling,
// emit FAILED and return a terminal error instead of asking for another
// retry — a required kind then simply never reaches KIND_COMPLETE, which
// is what keeps the note from reaching terminal state.
func checkCompletion(ctx context.Context, deps *action.Dependencies, actx models.ActionContext, cfg CompletionConfig, actionName string, d models.CompletionCheckJobData) error {
	record, ok := deps.Tracker.Record(d.NoteID)
	if !ok {
		return pipeline.ProgrammingError(actionName, fmt.Errorf("no completion record for note %q", d.NoteID))
	}

	expected := record.ExpectedLineCounts[d.Kind]
	observed := record.ObservedLineCompletions[d.Kind]
	if observed >= expected {
		if err := deps.Tracker.MarkWorkerCompleted(d.NoteID, d.Kind); err != nil {
			return pipeline.ProgrammingError(actionName, err)
		}
		if deps.Broadcaster != nil {
			_, _ = deps.Broadcaster.AddStatusEventAndBroadcast(ctx, models.StatusEvent{
				ImportID:     d.ImportID,
				NoteID:       d.NoteID,
				Status:       models.StatusCompleted,
				Message:      fmt.Sprintf("%d/%d %s", observed, expected, d.Kind),
				Context:      string(d.Kind) + "_processing",
				IndentLevel:  2,
				CurrentCount: intPtr(observed),
				TotalCount:   &expected,
			})
		}
		return nil
	}

	if actx.AttemptNumber >= cfg.CompletionCheckMaxRetries {
		if deps.Broadcaster != nil {
			_, _ = deps.Broadcaster.AddStatusEventAndBroadcast(ctx, models.StatusEvent{
				ImportID:    d.ImportID,
				NoteID:      d.NoteID,
				Status:      models.StatusFailed,
				Message:     fmt.Sprintf("%s did not complete after %d attempts (%d/%d)", d.Kind, actx.AttemptNumber, observed, expected),
				Context:     string(d.Kind) + "_processing",
				IndentLevel: 2,
			})
		}
		return pipeline.Exhausted(actionName, fmt.Errorf("retries exhausted for %q on note %q", d.Kind, d.NoteID))
	}

	return pipeline.TransientIO(actionName, fmt.Errorf("%s fan-out not yet complete (%d/%d)", d.Kind, observed, expected))
}

// CheckIngredientCompletion is the ingredient queue's completion-check
// sentinel.
type CheckIngredientCompletion struct {
	action.Base
	deps *action.Dependencies
	cfg  CompletionConfig
}

func NewCheckIngredientCompletion(deps *action.Dependencies, cfg CompletionConfig) (action.Action, error) {
	return &CheckIngredientCompletion{Base: action.NewBase("check_ingredient_completion"), deps: deps, cfg: cfg}, nil
}

func (a *CheckIngredientCompletion) ValidateInput(data any) error {
	raw, ok := asBytes(data)
	if !ok {
		return fmt.Errorf("check_ingredient_completion: expected raw payload bytes")
	}
	var d models.CompletionCheckJobData
	return decode(raw, &d)
}

func (a *CheckIngredientCompletion) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	raw, _ := asBytes(data)
	var d models.CompletionCheckJobData
	if err := decode(raw, &d); err != nil {
		return nil, pipeline.InvalidInput("check_ingredient_completion", err)
	}
	if err := checkCompletion(ctx, a.deps, actx, a.cfg, "check_ingredient_completion", d); err != nil {
		return nil, err
	}
	return &d, nil
}

// CheckInstructionCompletion is the instruction queue's completion-check
// sentinel.
type CheckInstructionCompletion struct {
	action.Base
	deps *action.Dependencies
	cfg  CompletionConfig
}

func NewCheckInstructionCompletion(deps *action.Dependencies, cfg CompletionConfig) (action.Action, error) {
	return &CheckInstructionCompletion{Base: action.NewBase("check_instruction_completion"), deps: deps, cfg: cfg}, nil
}

func (a *CheckInstructionCompletion) ValidateInput(data any) error {
	raw, ok := asBytes(data)
	if !ok {
		return fmt.Errorf("check_instruction_completion: expected raw payload bytes")
	}
	var d models.CompletionCheckJobData
	return decode(raw, &d)
}

func (a *CheckInstructionCompletion) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	raw, _ := asBytes(data)
	var d models.CompletionCheckJobData
	if err := decode(raw, &d); err != nil {
		return nil, pipeline.InvalidInput("check_instruction_completion", err)
	}
	if err := checkCompletion(ctx, a.deps, actx, a.cfg, "check_instruction_completion", d); err != nil {
		return nil, err
	}
	return &d, nil
}
