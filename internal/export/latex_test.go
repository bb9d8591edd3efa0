package export

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/llm"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

type scriptedGenerator struct {
	available bool
	response  string
	err       error
}

func (g *scriptedGenerator) Available() bool { return g.available }

func (g *scriptedGenerator) Generate(context.Context, llm.GenerateRequest) (string, error) {
	return g.response, g.err
}

func defaultSettings() storage.ProcessingSettings {
	s := storage.ProcessingSettings{}
	s.Normalize()
	return s
}

func TestGenerateDocument_BackendUnavailableProducesBasicDocument(t *testing.T) {
	gen := NewLatexGenerator(&scriptedGenerator{available: false}, nil)

	doc := gen.GenerateDocument(context.Background(), "My Notes", "# Heading\n• item one\nplain text", defaultSettings())

	assert.True(t, strings.HasPrefix(doc, `\documentclass`))
	assert.Contains(t, doc, `\begin{document}`)
	assert.Contains(t, doc, `\section*{Heading}`)
	assert.Contains(t, doc, `\item item one`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(doc), `\end{document}`))
}

func TestGenerateDocument_StripsFencesAndKeepsDraft(t *testing.T) {
	draft := "```latex\n\\documentclass{article}\n\\begin{document}\nhello\n\\end{document}\n```"
	gen := NewLatexGenerator(&scriptedGenerator{available: true, response: draft}, nil)

	doc := gen.GenerateDocument(context.Background(), "T", "hello", defaultSettings())

	assert.True(t, strings.HasPrefix(doc, `\documentclass`))
	assert.NotContains(t, doc, "```")
}

func TestRepairDocument_WrapsBareBody(t *testing.T) {
	doc := repairDocument(`\section{Intro} some body`, "Title", defaultSettings())

	assert.True(t, strings.HasPrefix(doc, `\documentclass`))
	assert.Contains(t, doc, `\section{Intro}`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(doc), `\end{document}`))
}

func TestRepairDocument_AppendsMissingEnd(t *testing.T) {
	doc := repairDocument("\\documentclass{article}\n\\begin{document}\nbody", "T", defaultSettings())
	assert.True(t, strings.HasSuffix(strings.TrimSpace(doc), `\end{document}`))
}

func TestEnsureTheoremEnvironments_InjectsMissingDeclarations(t *testing.T) {
	doc := "\\documentclass{article}\n\\begin{document}\n\\begin{theorem}x\\end{theorem}\n\\end{document}"

	out := ensureTheoremEnvironments(doc)

	require.Contains(t, out, `\newtheorem{theorem}{Theorem}`)
	assert.Less(t, strings.Index(out, `\newtheorem`), strings.Index(out, `\begin{document}`))
}

func TestEnsureTheoremEnvironments_NoChangeWhenDeclared(t *testing.T) {
	doc := "\\documentclass{article}\n\\newtheorem{theorem}{Theorem}\n\\begin{document}\n\\begin{theorem}x\\end{theorem}\n\\end{document}"
	assert.Equal(t, doc, ensureTheoremEnvironments(doc))
}

func TestFontPackage(t *testing.T) {
	assert.Equal(t, "helvet", fontPackage("Helvetica"))
	assert.Equal(t, "helvet", fontPackage("arial"))
	assert.Equal(t, "mathpazo", fontPackage("Palatino"))
	assert.Equal(t, "ttdefault", fontPackage("monospace"))
	assert.Equal(t, "mathptmx", fontPackage("Times New Roman"))
	assert.Equal(t, "mathptmx", fontPackage(""))
}

func TestEscapeLaTeX(t *testing.T) {
	out := escapeLaTeX("50% of $10 & #1_a")
	assert.Contains(t, out, `\%`)
	assert.Contains(t, out, `\$`)
	assert.Contains(t, out, `\&`)
	assert.Contains(t, out, `\#`)
	assert.Contains(t, out, `\_`)
}

func TestMarkdownToLaTeX_ClosesLists(t *testing.T) {
	out := markdownToLaTeX("• one\n• two\n\nplain")

	assert.Equal(t, strings.Count(out, `\begin{itemize}`), strings.Count(out, `\end{itemize}`))
	assert.Contains(t, out, `\item one`)
	assert.Contains(t, out, "plain")
}
