package action

import "github.com/awehrman/peas/internal/models"

// Pipeline is an ordered, already-resolved sequence of actions to run
// against a single job, one feeding the next.
type Pipeline []Action

// BuildNotePipeline returns the canonical note pipeline for opts. The
// builder is pure: it consults only opts and the factory's registrations,
// never payload contents.
func BuildNotePipeline(f *Factory, deps *Dependencies, opts models.PipelineOptions) (Pipeline, error) {
	names := []string{"clean_html", "parse_html", "save_note"}
	if !opts.SkipFollowupTasks {
		names = append(names, "schedule_all_followup_tasks", "check_duplicates", "wait_for_categorization", "mark_note_worker_completed")
	}
	return build(f, deps, names)
}

// BuildIngredientLinePipeline returns the per-line pipeline run by the
// ingredient queue's worker.
func BuildIngredientLinePipeline(f *Factory, deps *Dependencies) (Pipeline, error) {
	return build(f, deps, []string{"parse_ingredient_line", "save_ingredient_line", "track_pattern"})
}

// BuildInstructionLinePipeline returns the per-line pipeline run by the
// instruction queue's worker.
func BuildInstructionLinePipeline(f *Factory, deps *Dependencies) (Pipeline, error) {
	return build(f, deps, []string{"format_instruction_line", "save_instruction_line"})
}

// BuildImagePipeline returns the per-image pipeline run by the image queue's
// worker.
func BuildImagePipeline(f *Factory, deps *Dependencies) (Pipeline, error) {
	return build(f, deps, []string{"process_image"})
}

// BuildSourcePipeline returns the source-resolution pipeline run by the
// source queue's worker.
func BuildSourcePipeline(f *Factory, deps *Dependencies) (Pipeline, error) {
	return build(f, deps, []string{"process_source"})
}

// BuildIngredientCompletionCheckPipeline and
// BuildInstructionCompletionCheckPipeline build the single-action pipelines
// run for completion-check sentinels.
func BuildIngredientCompletionCheckPipeline(f *Factory, deps *Dependencies) (Pipeline, error) {
	return build(f, deps, []string{"check_ingredient_completion"})
}

func BuildInstructionCompletionCheckPipeline(f *Factory, deps *Dependencies) (Pipeline, error) {
	return build(f, deps, []string{"check_instruction_completion"})
}

func build(f *Factory, deps *Dependencies, names []string) (Pipeline, error) {
	p := make(Pipeline, 0, len(names))
	for _, name := range names {
		a, err := f.Create(name, deps)
		if err != nil {
			return nil, err
		}
		p = append(p, a)
	}
	return p, nil
}
