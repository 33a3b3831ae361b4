package actions

import (
	"context"
	"fmt"

	"github.com/awehrman/peas/internal/action"
	"github.com/awehrman/peas/internal/htmlprep"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
)

// CleanHTML strips non-content markup (scripts, styles, note-app chrome)
// from the raw HTML before parsing. It is always the first
// action in the note pipeline, so it alone sees the job's raw []byte
// payload.
type CleanHTML struct {
	action.Base
	deps *action.Dependencies
}

func NewCleanHTML(deps *action.Dependencies) (action.Action, error) {
	return &CleanHTML{Base: action.NewBase("clean_html"), deps: deps}, nil
}

func (a *CleanHTML) ValidateInput(data any) error {
	raw, ok := asBytes(data)
	if !ok {
		return fmt.Errorf("clean_html: expected raw payload bytes")
	}
	var d models.NotePipelineData
	return decode(raw, &d)
}

func (a *CleanHTML) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	raw, _ := asBytes(data)
	var d models.NotePipelineData
	if err := decode(raw, &d); err != nil {
		return nil, pipeline.InvalidInput("clean_html", err)
	}

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          d.ImportID,
		ContextName:       "clean_html",
		StartMessage:      "Cleaning note HTML",
		CompletionMessage: "Note HTML cleaned",
		IndentLevel:       1,
		ServiceCall: func(ctx context.Context) (any, error) {
			cleaned, err := htmlprep.Clean(d.Content)
			if err != nil {
				return nil, pipeline.InvalidInput("clean_html", err)
			}
			d.Content = cleaned
			return &d, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ParseHTML extracts the note's title, cleaned markdown body, image
// reference, and ordered ingredient/instruction lines.
type ParseHTML struct {
	action.Base
	deps *action.Dependencies
}

func NewParseHTML(deps *action.Dependencies) (action.Action, error) {
	return &ParseHTML{Base: action.NewBase("parse_html"), deps: deps}, nil
}

func (a *ParseHTML) ValidateInput(data any) error {
	d, ok := data.(*models.NotePipelineData)
	if !ok {
		return fmt.Errorf("parse_html: expected *models.NotePipelineData")
	}
	if d.Content == "" {
		return fmt.Errorf("parse_html: content is required")
	}
	return nil
}

func (a *ParseHTML) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	d := data.(*models.NotePipelineData)

	if d.ImportID != "" && a.deps.Broadcaster != nil {
		if _, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, models.StatusEvent{
			ImportID:    d.ImportID,
			Status:      models.StatusProcessing,
			Message:     "Parsing note HTML",
			Context:     "parse_html_start",
			IndentLevel: 1,
		}); err != nil && a.deps.Logger != nil {
			a.deps.Logger.Warn().Err(err).Msg("Failed to broadcast parse_html start event")
		}
	}

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:                     a.deps,
		ActionCtx:                actx,
		ImportID:                 d.ImportID,
		ContextName:              "parse_html_complete",
		SuppressDefaultBroadcast: true,
		CompletionMessage:        "Note HTML parsed",
		IndentLevel:              1,
		ServiceCall: func(ctx context.Context) (any, error) {
			prepared, err := htmlprep.Prepare(d.Content)
			if err != nil {
				return nil, pipeline.InvalidInput("parse_html", err)
			}
			ingredients, instructions := htmlprep.ExtractLines(prepared.Body)

			d.File = &models.ParsedFile{
				Title:           prepared.Title,
				CleanedContents: htmlprep.ToMarkdown(prepared.Body),
				ImageRef:        htmlprep.FirstImageSrc(d.Content),
				Ingredients:     ingredients,
				Instructions:    instructions,
			}
			return d, nil
		},
		AdditionalBroadcasting: func(ctx context.Context, result any) error {
			rd := result.(*models.NotePipelineData)
			ingredientCount := len(rd.File.Ingredients)
			instructionCount := len(rd.File.Instructions)

			if _, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, models.StatusEvent{
				ImportID:     rd.ImportID,
				Status:       models.StatusPending,
				Message:      fmt.Sprintf("0/%d ingredients", ingredientCount),
				Context:      "parse_html_ingredients",
				IndentLevel:  2,
				CurrentCount: intPtr(0),
				TotalCount:   &ingredientCount,
			}); err != nil {
				return err
			}
			_, err := a.deps.Broadcaster.AddStatusEventAndBroadcast(ctx, models.StatusEvent{
				ImportID:     rd.ImportID,
				Status:       models.StatusPending,
				Message:      fmt.Sprintf("0/%d instructions", instructionCount),
				Context:      "parse_html_instructions",
				IndentLevel:  2,
				CurrentCount: intPtr(0),
				TotalCount:   &instructionCount,
			})
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveNote persists the parsed note and its lines via the repository
//.
type SaveNote struct {
	action.Base
	deps *action.Dependencies
}

func NewSaveNote(deps *action.Dependencies) (action.Action, error) {
	return &SaveNote{Base: action.NewBase("save_note"), deps: deps}, nil
}

func (a *SaveNote) ValidateInput(data any) error {
	d, ok := data.(*models.NotePipelineData)
	if !ok {
		return fmt.Errorf("save_note: expected *models.NotePipelineData")
	}
	if d.File == nil {
		return fmt.Errorf("save_note: file must be parsed first")
	}
	return nil
}

func (a *SaveNote) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	d := data.(*models.NotePipelineData)

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          d.ImportID,
		ContextName:       "save_note",
		StartMessage:      "Saving note",
		CompletionMessage: "Note saved",
		IndentLevel:       1,
		ServiceCall: func(ctx context.Context) (any, error) {
			note, err := a.deps.Repository.CreateNoteWithEvernoteMetadata(ctx, d.File)
			if err != nil {
				return nil, err
			}
			d.Note = note
			d.NoteID = note.ID

			if err := a.deps.Tracker.InitializeNoteCompletion(d.NoteID, d.ImportID); err != nil {
				return nil, pipeline.ProgrammingError("save_note", err)
			}

			if a.deps.Cache != nil {
				_ = a.deps.Cache.Delete(ctx, (cacheKeys{}).NoteMetadata(d.NoteID))
				_ = a.deps.Cache.Delete(ctx, (cacheKeys{}).NoteStatus(d.NoteID))
				_, _ = a.deps.Cache.InvalidateByPattern(ctx, "db:query:")
			}

			return d, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func intPtr(i int) *int { return &i }

// cacheKeys mirrors internal/cache.KeyGenerator's key shapes without
// importing internal/cache directly (actions depend on the cache only
// through interfaces.CacheService, never its concrete key helper).
type cacheKeys struct{}

func (cacheKeys) NoteMetadata(id string) string { return "note:metadata:" + id }
func (cacheKeys) NoteStatus(id string) string    { return "note:status:" + id }
