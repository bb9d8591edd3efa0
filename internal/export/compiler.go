package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// CompilationError carries the compiler log tail for diagnosis.
type CompilationError struct {
	Output string
	Err    error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("latex compilation failed: %v", e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// Compiler turns a LaTeX document into PDF bytes.
type Compiler interface {
	Compile(ctx context.Context, document string) ([]byte, error)
}

// LatexCompiler shells out to pdflatex. Concurrent compilations are bounded
// by a worker gate since each run is memory hungry.
type LatexCompiler struct {
	binary  string
	timeout time.Duration
	gate    chan struct{}
}

// NewLatexCompiler creates a compiler with the given binary, worker bound
// and per-run timeout.
func NewLatexCompiler(binary string, workers int, timeout time.Duration) *LatexCompiler {
	if binary == "" {
		binary = "pdflatex"
	}
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &LatexCompiler{
		binary:  binary,
		timeout: timeout,
		gate:    make(chan struct{}, workers),
	}
}

// Compile runs pdflatex in a scratch directory and returns the PDF bytes.
func (c *LatexCompiler) Compile(ctx context.Context, document string) ([]byte, error) {
	select {
	case c.gate <- struct{}{}:
		defer func() { <-c.gate }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	workDir, err := os.MkdirTemp("", "inkwell-latex-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	texPath := filepath.Join(workDir, "document.tex")
	if err := os.WriteFile(texPath, []byte(document), 0o644); err != nil {
		return nil, fmt.Errorf("write tex file: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.binary,
		"-interaction=nonstopmode", "-halt-on-error",
		"-output-directory", workDir, texPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &CompilationError{Output: tail(string(output), 2000), Err: err}
	}

	pdf, err := os.ReadFile(filepath.Join(workDir, "document.pdf"))
	if err != nil {
		return nil, &CompilationError{Output: tail(string(output), 2000), Err: errors.New("no pdf produced")}
	}
	return pdf, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
