// Package export generates and manages durable job artifacts.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkwell-ai/inkwell/internal/llm"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// Generator is the text generation surface LaTeX generation needs.
type Generator interface {
	Available() bool
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// LatexGenerator produces a complete LaTeX document from enhanced text.
// Generation is two-phase: the backend drafts the document, then the draft
// is verified and repaired so it always compiles into a full document. When
// the backend is unavailable a deterministic converter takes over.
type LatexGenerator struct {
	backend Generator
	logger  *observability.Logger
}

// NewLatexGenerator creates a LaTeX generator.
func NewLatexGenerator(backend Generator, logger *observability.Logger) *LatexGenerator {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &LatexGenerator{backend: backend, logger: logger}
}

// GenerateDocument returns a complete LaTeX document for the enhanced text.
func (g *LatexGenerator) GenerateDocument(ctx context.Context, title, text string, settings storage.ProcessingSettings) string {
	if !g.backend.Available() {
		return basicDocument(title, text, settings)
	}

	draft, err := g.backend.Generate(ctx, llm.GenerateRequest{
		System: latexSystemPrompt,
		Prompt: buildLatexPrompt(title, text, settings),
	})
	if err != nil {
		g.logger.Warn().Err(err).Msg("latex generation failed, using basic document")
		return basicDocument(title, text, settings)
	}

	doc := stripCodeFences(draft)
	doc = repairDocument(doc, title, settings)
	doc = ensureTheoremEnvironments(doc)
	return doc
}

const latexSystemPrompt = `You are a LaTeX typesetting assistant. Produce a single complete,
compilable LaTeX document. Output raw LaTeX only: no code fences, no
commentary, no markdown.`

func buildLatexPrompt(title, text string, settings storage.ProcessingSettings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Typeset the following notes as a complete LaTeX document titled %q.\n", title)
	fmt.Fprintf(&b, "Style: %s. Font preference: %s.\n", settings.LatexStyle, settings.FontPreference)
	b.WriteString("The document must start with \\documentclass and end with \\end{document}. ")
	b.WriteString("Use sectioning commands for headers and itemize environments for lists. ")
	b.WriteString("Escape special characters. Preserve every fact from the notes.\n\nNotes:\n\n")
	b.WriteString(text)
	return b.String()
}

// stripCodeFences removes a markdown code fence wrapper around the document.
func stripCodeFences(doc string) string {
	doc = strings.TrimSpace(doc)
	doc = strings.TrimPrefix(doc, "```latex")
	doc = strings.TrimPrefix(doc, "```tex")
	doc = strings.TrimPrefix(doc, "```")
	doc = strings.TrimSuffix(doc, "```")
	return strings.TrimSpace(doc)
}

// repairDocument enforces the structural frame of the draft: a document
// that does not start with \documentclass or lacks \end{document} is
// wrapped or patched rather than rejected.
func repairDocument(doc, title string, settings storage.ProcessingSettings) string {
	if !strings.HasPrefix(doc, `\documentclass`) {
		if idx := strings.Index(doc, `\documentclass`); idx > 0 {
			doc = doc[idx:]
		} else {
			return wrapBody(doc, title, settings)
		}
	}
	if !strings.Contains(doc, `\begin{document}`) {
		return wrapBody(doc, title, settings)
	}
	if !strings.HasSuffix(strings.TrimSpace(doc), `\end{document}`) {
		if idx := strings.LastIndex(doc, `\end{document}`); idx >= 0 {
			doc = doc[:idx+len(`\end{document}`)]
		} else {
			doc = strings.TrimSpace(doc) + "\n\\end{document}\n"
		}
	}
	return doc
}

// wrapBody places arbitrary LaTeX body content inside the standard preamble.
func wrapBody(body, title string, settings storage.ProcessingSettings) string {
	var b strings.Builder
	writePreamble(&b, title, settings)
	b.WriteString(body)
	b.WriteString("\n\\end{document}\n")
	return b.String()
}

// theoremEnvironments lists environments the backend tends to use without
// declaring. Missing declarations are injected into the preamble.
var theoremEnvironments = []string{"theorem", "definition", "lemma", "corollary", "example", "remark"}

func ensureTheoremEnvironments(doc string) string {
	var missing []string
	for _, env := range theoremEnvironments {
		if strings.Contains(doc, `\begin{`+env+`}`) && !strings.Contains(doc, `\newtheorem{`+env+`}`) {
			missing = append(missing, env)
		}
	}
	if len(missing) == 0 {
		return doc
	}

	var decls strings.Builder
	decls.WriteString("\\usepackage{amsthm}\n")
	for _, env := range missing {
		caser := strings.ToUpper(env[:1]) + env[1:]
		fmt.Fprintf(&decls, "\\newtheorem{%s}{%s}\n", env, caser)
	}

	idx := strings.Index(doc, `\begin{document}`)
	if idx < 0 {
		return doc
	}
	return doc[:idx] + decls.String() + doc[idx:]
}

// fontPackage maps a font preference to a LaTeX font package.
func fontPackage(preference string) string {
	pref := strings.ToLower(preference)
	switch {
	case strings.Contains(pref, "helvetica"), strings.Contains(pref, "arial"):
		return "helvet"
	case strings.Contains(pref, "palatino"):
		return "mathpazo"
	case strings.Contains(pref, "mono"), strings.Contains(pref, "courier"):
		return "ttdefault"
	default:
		return "mathptmx"
	}
}

// styleBlock returns preamble adjustments for the requested style.
func styleBlock(style storage.LatexStyle) string {
	switch style {
	case storage.LatexStylePersonal:
		return "\\usepackage[margin=1.2in]{geometry}\n\\setlength{\\parskip}{0.5em}\n"
	case storage.LatexStyleMinimalist:
		return "\\usepackage[margin=1.5in]{geometry}\n\\pagestyle{empty}\n"
	default:
		return "\\usepackage[margin=1in]{geometry}\n\\usepackage{setspace}\n\\onehalfspacing\n"
	}
}

func writePreamble(b *strings.Builder, title string, settings storage.ProcessingSettings) {
	b.WriteString("\\documentclass[11pt]{article}\n")
	b.WriteString("\\usepackage[utf8]{inputenc}\n")
	pkg := fontPackage(settings.FontPreference)
	if pkg == "ttdefault" {
		b.WriteString("\\renewcommand{\\familydefault}{\\ttdefault}\n")
	} else {
		fmt.Fprintf(b, "\\usepackage{%s}\n", pkg)
		if pkg == "helvet" {
			b.WriteString("\\renewcommand{\\familydefault}{\\sfdefault}\n")
		}
	}
	b.WriteString(styleBlock(settings.LatexStyle))
	fmt.Fprintf(b, "\\title{%s}\n\\date{\\today}\n", escapeLaTeX(title))
	b.WriteString("\\begin{document}\n\\maketitle\n\n")
}

// basicDocument deterministically converts the markdown-flavoured enhanced
// text into a compilable document.
func basicDocument(title, text string, settings storage.ProcessingSettings) string {
	var b strings.Builder
	writePreamble(&b, title, settings)
	b.WriteString(markdownToLaTeX(text))
	b.WriteString("\n\\end{document}\n")
	return b.String()
}

// markdownToLaTeX converts the markdown subset the pipeline emits (headers,
// bullets, plain paragraphs) into LaTeX.
func markdownToLaTeX(text string) string {
	var b strings.Builder
	inList := false

	closeList := func() {
		if inList {
			b.WriteString("\\end{itemize}\n")
			inList = false
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "═"):
			closeList()
			b.WriteString("\n")
		case strings.HasPrefix(trimmed, "### "):
			closeList()
			fmt.Fprintf(&b, "\\subsubsection*{%s}\n", escapeLaTeX(strings.TrimPrefix(trimmed, "### ")))
		case strings.HasPrefix(trimmed, "## "):
			closeList()
			fmt.Fprintf(&b, "\\subsection*{%s}\n", escapeLaTeX(strings.TrimPrefix(trimmed, "## ")))
		case strings.HasPrefix(trimmed, "# "):
			closeList()
			fmt.Fprintf(&b, "\\section*{%s}\n", escapeLaTeX(strings.TrimPrefix(trimmed, "# ")))
		case strings.HasPrefix(trimmed, "• "), strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			if !inList {
				b.WriteString("\\begin{itemize}\n")
				inList = true
			}
			item := strings.TrimSpace(trimmed[strings.IndexAny(trimmed, " ")+1:])
			fmt.Fprintf(&b, "  \\item %s\n", escapeLaTeX(item))
		default:
			closeList()
			b.WriteString(escapeLaTeX(trimmed))
			b.WriteString("\n")
		}
	}
	closeList()
	return b.String()
}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// escapeLaTeX escapes LaTeX special characters in plain text.
func escapeLaTeX(text string) string {
	return latexEscaper.Replace(text)
}
