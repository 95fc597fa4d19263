package prompt

import (
	"fmt"
	"os"
	"strings"
)

// Placeholder tokens templates must carry. Templates are a tiny fixed
// format: literal text plus these tokens, nothing executable.
const (
	QuestionPlaceholder      = "[INSERT QUESTION]"
	DocumentationPlaceholder = "[DOCUMENTATION_TEXT]"
)

// Marker texts for the degraded paths. NotFoundMarker stands in for
// retrieved context when retrieval was attempted but found nothing;
// NoLibrariesMarker stands in for the extraction stage's output when no
// libraries were selected and the stage was skipped.
const (
	NotFoundMarker    = "No relevant documentation found in the selected libraries."
	NoLibrariesMarker = "No libraries were selected for analysis."
)

// Load reads a template file and validates that every required
// placeholder is present. Templates are read per request so edits take
// effect without a restart.
func Load(path string, required ...string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", path, err)
	}
	text := string(data)
	for _, token := range required {
		if !strings.Contains(text, token) {
			return "", fmt.Errorf("template %s is missing required placeholder %s", path, token)
		}
	}
	return text, nil
}

// Assemble builds the final prompt: every occurrence of the question
// placeholder is replaced with question, and when withContext is set the
// documentation block is prepended. The block must never appear when no
// libraries were selected for the request, not even empty; when retrieval
// ran and found nothing, callers pass NotFoundMarker as contextText so the
// two cases stay distinguishable.
func Assemble(templateText, question, contextText string, withContext bool) string {
	body := strings.ReplaceAll(templateText, QuestionPlaceholder, question)
	if !withContext {
		return body
	}
	return fmt.Sprintf("Relevant Documentation:\n%s\n\n---\n\n%s", contextText, body)
}

// AssembleExtraction builds the intermediate extraction prompt by
// substituting both the question and the raw documentation text.
func AssembleExtraction(templateText, question, documentation string) string {
	out := strings.ReplaceAll(templateText, QuestionPlaceholder, question)
	return strings.ReplaceAll(out, DocumentationPlaceholder, documentation)
}
