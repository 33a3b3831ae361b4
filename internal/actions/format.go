package actions

import "strings"

var sentenceEndings = []string{".", "!", "?", ";", ":"}

// formatInstructionReference trims ref and appends a period unless it
// already ends with a recognized sentence terminator. Returns keep=false
// for an empty-after-trim reference, which callers drop rather than emit.
func formatInstructionReference(ref string) (formatted string, keep bool) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", false
	}
	for _, ending := range sentenceEndings {
		if strings.HasSuffix(trimmed, ending) {
			return trimmed, true
		}
	}
	return trimmed + ".", true
}
