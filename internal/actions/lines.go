package actions

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/awehrman/peas/internal/action"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
)

// leadingQuantityRe recognizes a leading numeric quantity (including
// simple fractions like "1/2") at the start of an ingredient reference.
var leadingQuantityRe = regexp.MustCompile(`^\s*(\d+(\.\d+)?(\s*/\s*\d+)?)\s*`)

// commonUnits is checked against the token immediately following a
// recognized quantity. Grammar detection beyond this is out of scope;
// track_pattern records only this coarse classification, not a full
// ingredient parse.
var commonUnits = map[string]bool{
	"cup": true, "cups": true, "tbsp": true, "tablespoon": true, "tablespoons": true,
	"tsp": true, "teaspoon": true, "teaspoons": true, "oz": true, "ounce": true, "ounces": true,
	"lb": true, "lbs": true, "pound": true, "pounds": true, "g": true, "gram": true, "grams": true,
	"kg": true, "ml": true, "l": true, "pinch": true, "clove": true, "cloves": true,
}

// classifyIngredientPattern produces a coarse QUANTITY/UNIT/NAME shape for
// a reference, recorded by track_pattern. It is intentionally shallow.
func classifyIngredientPattern(reference string) string {
	rest := reference
	var parts []string
	if loc := leadingQuantityRe.FindStringIndex(rest); loc != nil {
		parts = append(parts, "QUANTITY")
		rest = rest[loc[1]:]
	}
	fields := strings.Fields(rest)
	if len(fields) > 0 {
		word := strings.ToLower(strings.Trim(fields[0], ".,"))
		if commonUnits[word] {
			parts = append(parts, "UNIT")
			fields = fields[1:]
		}
	}
	if len(fields) > 0 {
		parts = append(parts, "NAME")
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(parts, "_")
}

// ingredientLineState threads the classified pattern from
// parse_ingredient_line to track_pattern alongside the original line job.
type ingredientLineState struct {
	models.LineJobData
	Pattern string `json:"pattern"`
}

// ParseIngredientLine normalizes a single ingredient line's reference and
// classifies its coarse grammar pattern, ahead of persisting it.
type ParseIngredientLine struct {
	action.Base
	deps *action.Dependencies
}

func NewParseIngredientLine(deps *action.Dependencies) (action.Action, error) {
	return &ParseIngredientLine{Base: action.NewBase("parse_ingredient_line"), deps: deps}, nil
}

func (a *ParseIngredientLine) ValidateInput(data any) error {
	raw, ok := asBytes(data)
	if !ok {
		return fmt.Errorf("parse_ingredient_line: expected raw payload bytes")
	}
	var d models.LineJobData
	return decode(raw, &d)
}

func (a *ParseIngredientLine) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	raw, _ := asBytes(data)
	var d models.LineJobData
	if err := decode(raw, &d); err != nil {
		return nil, pipeline.InvalidInput("parse_ingredient_line", err)
	}

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          d.ImportID,
		NoteID:            d.NoteID,
		ContextName:       "ingredient_processing",
		StartMessage:      fmt.Sprintf("Parsing ingredient line %d", d.LineIndex),
		CompletionMessage: fmt.Sprintf("Parsed ingredient line %d", d.LineIndex),
		IndentLevel:       2,
		ServiceCall: func(ctx context.Context) (any, error) {
			d.Reference = strings.TrimSpace(d.Reference)
			return &ingredientLineState{LineJobData: d, Pattern: classifyIngredientPattern(d.Reference)}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveIngredientLine persists the normalized ingredient line and reports it
// to the completion tracker.
type SaveIngredientLine struct {
	action.Base
	deps *action.Dependencies
}

func NewSaveIngredientLine(deps *action.Dependencies) (action.Action, error) {
	return &SaveIngredientLine{Base: action.NewBase("save_ingredient_line"), deps: deps}, nil
}

func (a *SaveIngredientLine) ValidateInput(data any) error {
	s, ok := data.(*ingredientLineState)
	if !ok {
		return fmt.Errorf("save_ingredient_line: expected *ingredientLineState")
	}
	if s.NoteID == "" {
		return fmt.Errorf("save_ingredient_line: noteId is required")
	}
	return nil
}

func (a *SaveIngredientLine) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	s := data.(*ingredientLineState)

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          s.ImportID,
		NoteID:            s.NoteID,
		ContextName:       "ingredient_processing",
		StartMessage:      fmt.Sprintf("Saving ingredient line %d", s.LineIndex),
		CompletionMessage: fmt.Sprintf("Saved ingredient line %d", s.LineIndex),
		IndentLevel:       2,
		ServiceCall: func(ctx context.Context) (any, error) {
			if _, err := a.deps.Repository.UpdateIngredientLine(ctx, s.NoteID, s.LineIndex, s.Reference, "completed", true); err != nil {
				return nil, pipeline.RepositoryFailure("save_ingredient_line", err)
			}
			if err := a.deps.Tracker.MarkLineCompleted(s.NoteID, models.KindIngredient, s.LineIndex); err != nil {
				return nil, pipeline.ProgrammingError("save_ingredient_line", err)
			}
			return s, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TrackPattern is a thin pass-through that records the line's classified
// pattern via the repository. It runs as the last action of the
// ingredient-line pipeline, after save_ingredient_line, and makes no
// tracker call itself; there is no separate pattern-tracking queue or
// worker.
type TrackPattern struct {
	action.Base
	deps *action.Dependencies
}

func NewTrackPattern(deps *action.Dependencies) (action.Action, error) {
	return &TrackPattern{Base: action.NewBase("track_pattern"), deps: deps}, nil
}

func (a *TrackPattern) ValidateInput(data any) error {
	s, ok := data.(*ingredientLineState)
	if !ok {
		return fmt.Errorf("track_pattern: expected *ingredientLineState")
	}
	if s.NoteID == "" {
		return fmt.Errorf("track_pattern: noteId is required")
	}
	return nil
}

func (a *TrackPattern) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	s := data.(*ingredientLineState)

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          s.ImportID,
		NoteID:            s.NoteID,
		ContextName:       "ingredient_processing",
		StartMessage:      fmt.Sprintf("Recording pattern for line %d", s.LineIndex),
		CompletionMessage: fmt.Sprintf("Recorded pattern for line %d", s.LineIndex),
		IndentLevel:       2,
		ServiceCall: func(ctx context.Context) (any, error) {
			if err := a.deps.Repository.RecordPattern(ctx, s.NoteID, s.LineIndex, s.Pattern); err != nil {
				return nil, pipeline.RepositoryFailure("track_pattern", err)
			}
			return s, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FormatInstructionLine trims and punctuates a single instruction line's
// reference. An empty-after-trim reference is dropped by
// the scheduler before a job is ever created for it, so this is defensive
// normalization rather than the primary filter.
type FormatInstructionLine struct {
	action.Base
	deps *action.Dependencies
}

func NewFormatInstructionLine(deps *action.Dependencies) (action.Action, error) {
	return &FormatInstructionLine{Base: action.NewBase("format_instruction_line"), deps: deps}, nil
}

func (a *FormatInstructionLine) ValidateInput(data any) error {
	raw, ok := asBytes(data)
	if !ok {
		return fmt.Errorf("format_instruction_line: expected raw payload bytes")
	}
	var d models.LineJobData
	return decode(raw, &d)
}

func (a *FormatInstructionLine) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	raw, _ := asBytes(data)
	var d models.LineJobData
	if err := decode(raw, &d); err != nil {
		return nil, pipeline.InvalidInput("format_instruction_line", err)
	}

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          d.ImportID,
		NoteID:            d.NoteID,
		ContextName:       "instruction_processing",
		StartMessage:      fmt.Sprintf("Formatting instruction line %d", d.LineIndex),
		CompletionMessage: fmt.Sprintf("Formatted instruction line %d", d.LineIndex),
		IndentLevel:       2,
		ServiceCall: func(ctx context.Context) (any, error) {
			formatted, keep := formatInstructionReference(d.Reference)
			if !keep {
				return nil, pipeline.InvalidInput("format_instruction_line", fmt.Errorf("reference empty after trim"))
			}
			d.Reference = formatted
			return &d, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveInstructionLine persists the formatted instruction line and reports
// it to the completion tracker.
type SaveInstructionLine struct {
	action.Base
	deps *action.Dependencies
}

func NewSaveInstructionLine(deps *action.Dependencies) (action.Action, error) {
	return &SaveInstructionLine{Base: action.NewBase("save_instruction_line"), deps: deps}, nil
}

func (a *SaveInstructionLine) ValidateInput(data any) error {
	d, ok := data.(*models.LineJobData)
	if !ok {
		return fmt.Errorf("save_instruction_line: expected *models.LineJobData")
	}
	if d.NoteID == "" {
		return fmt.Errorf("save_instruction_line: noteId is required")
	}
	return nil
}

func (a *SaveInstructionLine) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	d := data.(*models.LineJobData)

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          d.ImportID,
		NoteID:            d.NoteID,
		ContextName:       "instruction_processing",
		StartMessage:      fmt.Sprintf("Saving instruction line %d", d.LineIndex),
		CompletionMessage: fmt.Sprintf("Saved instruction line %d", d.LineIndex),
		IndentLevel:       2,
		ServiceCall: func(ctx context.Context) (any, error) {
			if _, err := a.deps.Repository.UpdateInstructionLine(ctx, d.NoteID, d.LineIndex, d.Reference, "completed", true); err != nil {
				return nil, pipeline.RepositoryFailure("save_instruction_line", err)
			}
			if err := a.deps.Tracker.MarkLineCompleted(d.NoteID, models.KindInstruction, d.LineIndex); err != nil {
				return nil, pipeline.ProgrammingError("save_instruction_line", err)
			}
			return d, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
