package action

import (
	"context"
	"time"

	"github.com/awehrman/peas/internal/models"
)

// ServiceActionParams configures ExecuteServiceAction.
type ServiceActionParams struct {
	Deps      *Dependencies
	ActionCtx models.ActionContext
	ImportID  string
	NoteID    string

	ContextName       string
	StartMessage      string
	CompletionMessage string
	IndentLevel       int

	// SuppressDefaultBroadcast skips the start-of-call PROCESSING event
	// (used when the caller wants to emit its own, differently-shaped
	// start event instead).
	SuppressDefaultBroadcast bool

	// ServiceCall is the action's business logic.
	ServiceCall func(ctx context.Context) (any, error)

	// AdditionalBroadcasting runs after ServiceCall succeeds, before the
	// completion event; used by parse/save to emit child counters. Its
	// error is logged, never returned (broadcasting never masks or
	// replaces the business result).
	AdditionalBroadcasting func(ctx context.Context, result any) error
}

// ExecuteServiceAction wraps a business-logic call with the standard
// start/complete broadcast envelope:
//
//  1. emit PROCESSING (unless suppressed or no ImportID)
//  2. call ServiceCall
//  3. call AdditionalBroadcasting on success
//  4. emit COMPLETED on success
//  5. on any broadcast failure, log and continue — broadcast errors never
//     mask or replace ServiceCall's error, but a broadcast failure with no
//     prior business error does propagate.
func ExecuteServiceAction(ctx context.Context, p ServiceActionParams) (any, error) {
	deps := p.Deps

	if !p.SuppressDefaultBroadcast && p.ImportID != "" && deps.Broadcaster != nil {
		_, err := deps.Broadcaster.AddStatusEventAndBroadcast(ctx, models.StatusEvent{
			ImportID:    p.ImportID,
			NoteID:      p.NoteID,
			Status:      models.StatusProcessing,
			Message:     p.StartMessage,
			Context:     p.ContextName,
			IndentLevel: p.IndentLevel,
			Timestamp:   time.Now(),
		})
		if err != nil && deps.Logger != nil {
			deps.Logger.Warn().Err(err).Str("context", p.ContextName).Msg("Failed to broadcast start event")
		}
	}

	result, callErr := p.ServiceCall(ctx)

	if callErr != nil {
		return nil, callErr
	}

	if p.AdditionalBroadcasting != nil {
		if err := p.AdditionalBroadcasting(ctx, result); err != nil && deps.Logger != nil {
			deps.Logger.Warn().Err(err).Str("context", p.ContextName).Msg("Failed to broadcast additional progress")
		}
	}

	if p.ImportID != "" && deps.Broadcaster != nil {
		_, err := deps.Broadcaster.AddStatusEventAndBroadcast(ctx, models.StatusEvent{
			ImportID:    p.ImportID,
			NoteID:      p.NoteID,
			Status:      models.StatusCompleted,
			Message:     p.CompletionMessage,
			Context:     p.ContextName,
			IndentLevel: p.IndentLevel,
			Timestamp:   time.Now(),
		})
		if err != nil {
			// No prior business error: a broadcast failure here is the
			// only failure and must propagate.
			if deps.Logger != nil {
				deps.Logger.Error().Err(err).Str("context", p.ContextName).Msg("Failed to broadcast completion event")
			}
			return result, err
		}
	}

	return result, nil
}
