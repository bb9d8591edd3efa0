package enhance

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/inkwell-ai/inkwell/internal/llm"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// DefaultConcurrency bounds in-flight backend calls per job.
const DefaultConcurrency = 3

// Generator is the text generation surface the engine needs.
type Generator interface {
	Available() bool
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// Engine runs chunked enhancement over canonical input text.
type Engine struct {
	backend     Generator
	chunkLimit  int
	concurrency int
	logger      *observability.Logger
}

// NewEngine creates an enhancement engine. Zero limits fall back to the
// package defaults.
func NewEngine(backend Generator, chunkLimit, concurrency int, logger *observability.Logger) *Engine {
	if chunkLimit <= 0 {
		chunkLimit = DefaultChunkCharLimit
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Engine{backend: backend, chunkLimit: chunkLimit, concurrency: concurrency, logger: logger}
}

// Enhance rewrites the text per the settings. Chunks are dispatched in
// parallel under a semaphore and merged back in input order. A chunk whose
// backend call fails gets the local fallback transform for that chunk; if
// the backend is unavailable outright the whole text goes through the
// fallback in one pass.
func (e *Engine) Enhance(ctx context.Context, jobID string, text string, settings storage.ProcessingSettings) (string, error) {
	log := e.logger.WithJob(jobID).WithStage("enhance")

	if !e.backend.Available() {
		log.Warn().Msg("backend unavailable, applying local fallback")
		return FallbackTransform(text, settings), nil
	}

	chunks := SplitChunks(text, e.chunkLimit)
	results := make([]string, len(chunks))
	var failed atomic.Int32

	sem := semaphore.NewWeighted(int64(e.concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i, chunk := range chunks {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			out, err := e.backend.Generate(gctx, llm.GenerateRequest{
				System: enhanceSystemPrompt,
				Prompt: buildChunkPrompt(chunk, i+1, len(chunks), settings),
			})
			if err != nil {
				log.Warn().Int("chunk", i+1).Err(err).Msg("chunk enhancement failed, using fallback")
				failed.Add(1)
				results[i] = FallbackTransform(chunk, settings)
				return nil
			}
			results[i] = strings.TrimSpace(out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	if int(failed.Load()) == len(chunks) {
		log.Warn().Msg("all chunks failed, applying local fallback to full text")
		return FallbackTransform(text, settings), nil
	}

	merged := make([]string, 0, len(results))
	for _, r := range results {
		if r == "" {
			continue
		}
		merged = append(merged, r)
	}

	log.Info().Int("chunks", len(chunks)).Int("failed", int(failed.Load())).Msg("enhancement complete")
	return strings.Join(merged, "\n\n"), nil
}
