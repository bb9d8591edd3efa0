package enhance

import (
	"strings"

	"github.com/inkwell-ai/inkwell/internal/storage"
)

const bannerDivider = "═══════════════════════════════════════"

// FallbackTransform applies a deterministic local enhancement when the
// generation backend is unavailable. It honours the same settings toggles as
// the backend path: headers, then bullets, then expansion, then summary.
func FallbackTransform(text string, settings storage.ProcessingSettings) string {
	result := strings.TrimSpace(text)

	if settings.AddHeaders {
		result = "# Enhanced Notes\n" + bannerDivider + "\n\n" + result
	}

	if settings.AddBulletPoints {
		lines := strings.Split(result, "\n")
		for i, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" ||
				strings.HasPrefix(trimmed, "#") ||
				strings.HasPrefix(trimmed, "═") ||
				strings.HasPrefix(trimmed, "• ") {
				continue
			}
			lines[i] = "• " + trimmed
		}
		result = strings.Join(lines, "\n")
	}

	if settings.Expand {
		result += "\n\n## Additional Context\nThese notes were processed locally. " +
			"Review the key terms above and consult your source material for deeper coverage."
	}

	if settings.Summarize {
		excerpt := strings.TrimSpace(text)
		if len(excerpt) > 100 {
			excerpt = excerpt[:100] + "..."
		}
		result = "## Summary\n" + excerpt + "\n\n" + result
	}

	return result
}
