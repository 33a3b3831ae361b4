package actions

import "github.com/awehrman/peas/internal/action"

// Registrations returns every concrete action's factory registration.
// cfg configures the bounded-wait and completion-check actions; detector
// is the optional LLM-assisted duplicate signal and may be nil.
func Registrations(cfg CompletionConfig, detector DuplicateDetector) []action.Registration {
	checkDuplicatesCtor := action.Constructor(NewCheckDuplicates)
	if detector != nil {
		checkDuplicatesCtor = func(deps *action.Dependencies) (action.Action, error) {
			return NewCheckDuplicatesWithDetector(deps, detector)
		}
	}

	return []action.Registration{
		{Name: "clean_html", Constructor: NewCleanHTML},
		{Name: "parse_html", Constructor: NewParseHTML},
		{Name: "save_note", Constructor: NewSaveNote},
		{Name: "schedule_all_followup_tasks", Constructor: NewScheduleAllFollowupTasks},
		{Name: "schedule_ingredient_lines", Constructor: NewScheduleIngredientLines},
		{Name: "schedule_instruction_lines", Constructor: NewScheduleInstructionLines},
		{Name: "schedule_images", Constructor: NewScheduleImages},
		{Name: "process_source", Constructor: NewProcessSource},
		{Name: "check_duplicates", Constructor: checkDuplicatesCtor},
		{Name: "wait_for_categorization", Constructor: func(deps *action.Dependencies) (action.Action, error) {
			return NewWaitForCategorization(deps, cfg)
		}},
		{Name: "mark_note_worker_completed", Constructor: NewMarkNoteWorkerCompleted},
		{Name: "check_ingredient_completion", Constructor: func(deps *action.Dependencies) (action.Action, error) {
			return NewCheckIngredientCompletion(deps, cfg)
		}},
		{Name: "check_instruction_completion", Constructor: func(deps *action.Dependencies) (action.Action, error) {
			return NewCheckInstructionCompletion(deps, cfg)
		}},
		{Name: "parse_ingredient_line", Constructor: NewParseIngredientLine},
		{Name: "save_ingredient_line", Constructor: NewSaveIngredientLine},
		{Name: "track_pattern", Constructor: NewTrackPattern},
		{Name: "format_instruction_line", Constructor: NewFormatInstructionLine},
		{Name: "save_instruction_line", Constructor: NewSaveInstructionLine},
		{Name: "process_image", Constructor: NewProcessImage},
	}
}
