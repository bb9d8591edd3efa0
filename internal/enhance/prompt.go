package enhance

import (
	"fmt"
	"strings"

	"github.com/inkwell-ai/inkwell/internal/storage"
)

const enhanceSystemPrompt = `You are a study-notes editor. Rewrite the provided notes to be clearer and
better organized while preserving every fact, figure and definition. Never
invent content that is not supported by the notes. Output only the rewritten
notes in Markdown, with no preamble or commentary.`

// buildChunkPrompt builds the enhancement prompt for one chunk. Index is
// 1-based; total is the number of chunks for the job so the model keeps
// structure consistent across a document.
func buildChunkPrompt(chunk string, index, total int, settings storage.ProcessingSettings) string {
	var b strings.Builder

	if total > 1 {
		fmt.Fprintf(&b, "This is part %d of %d of a longer document. Keep headings and tone consistent with a single continuous document; do not add an overall introduction or conclusion to this part.\n\n", index, total)
	}

	b.WriteString("Apply these instructions:\n")
	if settings.AddHeaders {
		b.WriteString("- Organize the content under descriptive Markdown headers.\n")
	}
	if settings.AddBulletPoints {
		b.WriteString("- Convert dense prose into concise bullet points where it aids scanning.\n")
	}
	if settings.Expand {
		b.WriteString("- Expand abbreviations and briefly elaborate on key concepts mentioned in the notes.\n")
	}
	if settings.Summarize {
		b.WriteString("- Begin with a short summary of the main points of this part.\n")
	}
	if len(settings.FocusTopics) > 0 {
		fmt.Fprintf(&b, "- Give extra attention to these topics: %s.\n", strings.Join(settings.FocusTopics, ", "))
	}
	if spec := strings.TrimSpace(settings.CustomSpecifications); spec != "" {
		fmt.Fprintf(&b, "- Additional request from the author (apply only where it does not conflict with the instructions above): %s\n", spec)
	}
	b.WriteString("\nNotes:\n\n")
	b.WriteString(chunk)

	return b.String()
}
