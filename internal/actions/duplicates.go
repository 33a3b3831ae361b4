package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/awehrman/peas/internal/action"
	"github.com/awehrman/peas/internal/models"
	"github.com/awehrman/peas/internal/pipeline"
)

// DuplicateDetector is the optional near-duplicate-title signal: the
// repository's exact-match query is always the required path; this only
// adds a logged signal alongside it, and is never consulted when
// unconfigured.
type DuplicateDetector interface {
	LooksLikeDuplicate(ctx context.Context, title string, candidateTitles []string) (bool, error)
}

// CheckDuplicates runs the repository's required exact-title duplicate
// query and, if an optional detector is configured, an additional
// near-duplicate signal that is logged but never blocks or replaces the
// required result.
type CheckDuplicates struct {
	action.Base
	deps     *action.Dependencies
	detector DuplicateDetector
}

func NewCheckDuplicates(deps *action.Dependencies) (action.Action, error) {
	return &CheckDuplicates{Base: action.NewBase("check_duplicates"), deps: deps}, nil
}

// NewCheckDuplicatesWithDetector constructs CheckDuplicates with the
// optional LLM-assisted detector enabled.
func NewCheckDuplicatesWithDetector(deps *action.Dependencies, detector DuplicateDetector) (action.Action, error) {
	return &CheckDuplicates{Base: action.NewBase("check_duplicates"), deps: deps, detector: detector}, nil
}

func (a *CheckDuplicates) ValidateInput(data any) error {
	d, ok := data.(*models.NotePipelineData)
	if !ok {
		return fmt.Errorf("check_duplicates: expected *models.NotePipelineData")
	}
	if d.Note == nil {
		return fmt.Errorf("check_duplicates: note must be saved first")
	}
	return nil
}

func (a *CheckDuplicates) Execute(ctx context.Context, actx models.ActionContext, data any) (any, error) {
	d := data.(*models.NotePipelineData)

	result, err := action.ExecuteServiceAction(ctx, action.ServiceActionParams{
		Deps:              a.deps,
		ActionCtx:         actx,
		ImportID:          d.ImportID,
		NoteID:            d.NoteID,
		ContextName:       "CHECK_DUPLICATES",
		StartMessage:      "Checking for duplicates",
		CompletionMessage: "Verified no duplicates!",
		IndentLevel:       1,
		ServiceCall: func(ctx context.Context) (any, error) {
			found, ids, err := a.deps.Repository.FindDuplicates(ctx, d.Note.Title)
			if err != nil {
				return nil, pipeline.RepositoryFailure("check_duplicates", err)
			}

			if a.detector != nil {
				others := make([]string, 0, len(ids))
				for _, id := range ids {
					if n, gerr := a.deps.Repository.GetNoteWithEvernoteMetadata(ctx, id); gerr == nil && n != nil {
						others = append(others, n.Title)
					}
				}
				if looksLike, derr := a.detector.LooksLikeDuplicate(ctx, d.Note.Title, others); derr != nil {
					if a.deps.Logger != nil {
						a.deps.Logger.Warn().Err(derr).Str("noteId", d.NoteID).Msg("Duplicate-detector signal unavailable, falling back to exact match")
					}
				} else if a.deps.Logger != nil {
					a.deps.Logger.Debug().Bool("llmLooksLikeDuplicate", looksLike).Bool("exactMatch", found).Msg("Duplicate check signals")
				}
			}

			return d, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AnthropicDuplicateDetector implements DuplicateDetector against the
// Anthropic API. It degrades to "unavailable" on
// any API error rather than failing the caller.
type AnthropicDuplicateDetector struct {
	client anthropic.Client
	model  string
}

// NewAnthropicDuplicateDetector constructs a detector using apiKey and
// model (e.g. "claude-sonnet-4-20250514").
func NewAnthropicDuplicateDetector(apiKey, model string) *AnthropicDuplicateDetector {
	return &AnthropicDuplicateDetector{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (d *AnthropicDuplicateDetector) LooksLikeDuplicate(ctx context.Context, title string, candidateTitles []string) (bool, error) {
	if len(candidateTitles) == 0 {
		return false, nil
	}

	prompt := fmt.Sprintf(
		"Recipe title: %q\nExisting titles: %s\nAnswer only yes or no: is the recipe title very likely the same recipe as one of the existing titles?",
		title, strings.Join(candidateTitles, "; "),
	)

	resp, err := d.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(d.model),
		MaxTokens: 8,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return false, err
	}

	var answer strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			answer.WriteString(block.Text)
		}
	}
	return strings.Contains(strings.ToLower(answer.String()), "yes"), nil
}
