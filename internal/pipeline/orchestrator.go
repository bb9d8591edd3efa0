// Package pipeline orchestrates the asynchronous note enhancement flow:
// normalize, enhance, synthesize flashcards, export.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/internal/export"
	"github.com/inkwell-ai/inkwell/internal/flashcards"
	"github.com/inkwell-ai/inkwell/internal/jobtrack"
	"github.com/inkwell-ai/inkwell/internal/normalize"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// JobStore is the job persistence surface the orchestrator needs.
type JobStore interface {
	Create(ctx context.Context, job *storage.Job) error
	Get(ctx context.Context, jobID uuid.UUID) (*storage.Job, error)
	GetByOwner(ctx context.Context, ownerID string, jobID uuid.UUID) (*storage.Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*storage.Job, error)
	SetEnhancedText(ctx context.Context, jobID uuid.UUID, text string) error
	SetTitle(ctx context.Context, ownerID string, jobID uuid.UUID, title string) error
	Delete(ctx context.Context, ownerID string, jobID uuid.UUID) error
}

// CardStore is the flashcard persistence surface the orchestrator needs.
type CardStore interface {
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*storage.Flashcard, error)
	ReplaceAISet(ctx context.Context, jobID uuid.UUID, cards []*storage.Flashcard) error
}

// Normalizer is the input normalization stage.
type Normalizer interface {
	Normalize(ctx context.Context, jobID uuid.UUID, in normalize.Input) (string, error)
	StorePlaceholder(ctx context.Context, jobID uuid.UUID)
}

// Enhancer is the chunked enhancement stage.
type Enhancer interface {
	Enhance(ctx context.Context, jobID string, text string, settings storage.ProcessingSettings) (string, error)
}

// CardSynthesizer is the flashcard synthesis stage.
type CardSynthesizer interface {
	Synthesize(ctx context.Context, enhancedText string, settings storage.ProcessingSettings) ([]flashcards.Proposal, error)
}

// Exporter is the artifact export stage.
type Exporter interface {
	EnsureExports(ctx context.Context, job *storage.Job, formats []storage.ExportFormat, force bool) map[storage.ExportFormat]export.Result
	Fetch(ctx context.Context, job *storage.Job, format storage.ExportFormat) (*storage.ExportArtifact, []byte, error)
}

// Submission is a new enhancement request.
type Submission struct {
	OwnerID  string
	Title    string
	Input    normalize.Input
	Settings storage.ProcessingSettings
}

// Orchestrator drives jobs through the pipeline stages.
type Orchestrator struct {
	jobs       JobStore
	cards      CardStore
	tracker    *jobtrack.Tracker
	normalizer Normalizer
	enhancer   Enhancer
	cardsGen   CardSynthesizer
	exporter   Exporter
	logger     *observability.Logger

	// runTimeout bounds the whole background run of one job.
	runTimeout time.Duration
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(
	jobs JobStore,
	cards CardStore,
	tracker *jobtrack.Tracker,
	normalizer Normalizer,
	enhancer Enhancer,
	cardsGen CardSynthesizer,
	exporter Exporter,
	logger *observability.Logger,
) *Orchestrator {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Orchestrator{
		jobs:       jobs,
		cards:      cards,
		tracker:    tracker,
		normalizer: normalizer,
		enhancer:   enhancer,
		cardsGen:   cardsGen,
		exporter:   exporter,
		logger:     logger,
		runTimeout: 30 * time.Minute,
	}
}

// Submit creates a pending job and starts processing in the background.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*storage.Job, error) {
	sub.Settings.Normalize()
	settingsJSON, err := json.Marshal(sub.Settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}

	job := &storage.Job{
		OwnerID:         sub.OwnerID,
		InputType:       normalize.InputTypeOf(sub.Input),
		Settings:        settingsJSON,
		Status:          storage.JobStatusPending,
		ProgressMessage: "Queued",
	}
	if sub.Title != "" {
		job.Title = &sub.Title
	}
	if trimmed := strings.TrimSpace(sub.Input.Text); trimmed != "" {
		job.InputText = &trimmed
	}

	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	go o.run(job.ID, sub)
	return job, nil
}

// run executes the pipeline for one job. It owns its own context so the
// submitting request can return immediately.
func (o *Orchestrator) run(jobID uuid.UUID, sub Submission) {
	ctx, cancel := context.WithTimeout(context.Background(), o.runTimeout)
	defer cancel()

	log := o.logger.WithJob(jobID.String())
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("pipeline panic: %v", r)
			o.tracker.MarkError(ctx, jobID, fmt.Errorf("internal error: %v", r))
		}
	}()

	processing := storage.JobStatusProcessing
	if err := o.tracker.Transition(ctx, jobID, 5, "Preparing input", &processing); err != nil {
		log.Error().Err(err).Msg("start transition failed")
		return
	}

	if o.tracker.CheckCancelled(ctx, jobID) {
		return
	}

	text, err := o.normalizer.Normalize(ctx, jobID, sub.Input)
	if err != nil {
		if o.tracker.CheckCancelled(ctx, jobID) {
			return
		}
		var extractErr *normalize.ExtractionError
		if errors.As(err, &extractErr) {
			o.normalizer.StorePlaceholder(ctx, jobID)
		}
		o.tracker.MarkError(ctx, jobID, err)
		return
	}

	if err := o.tracker.Transition(ctx, jobID, 25, "Enhancing notes", nil); err != nil {
		log.Warn().Err(err).Msg("progress update failed")
	}
	if o.tracker.CheckCancelled(ctx, jobID) {
		return
	}

	enhanced, err := o.enhancer.Enhance(ctx, jobID.String(), text, sub.Settings)
	if err != nil {
		if o.tracker.CheckCancelled(ctx, jobID) {
			return
		}
		o.tracker.MarkError(ctx, jobID, err)
		return
	}

	// A cancel that landed during enhancement wins; discard the result.
	if o.tracker.CheckCancelled(ctx, jobID) {
		return
	}
	if err := o.jobs.SetEnhancedText(ctx, jobID, enhanced); err != nil {
		o.tracker.MarkError(ctx, jobID, fmt.Errorf("persist enhanced text: %w", err))
		return
	}
	if err := o.tracker.Transition(ctx, jobID, 60, "Notes enhanced", nil); err != nil {
		log.Warn().Err(err).Msg("progress update failed")
	}

	if sub.Settings.GenerateFlashcards && len(sub.Settings.TopicsForFlashcards()) > 0 && enhanced != "" {
		o.synthesizeCards(ctx, jobID, enhanced, sub.Settings)
	}
	if err := o.tracker.Transition(ctx, jobID, 75, "Generating exports", nil); err != nil {
		log.Warn().Err(err).Msg("progress update failed")
	}
	if o.tracker.CheckCancelled(ctx, jobID) {
		return
	}

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		o.tracker.MarkError(ctx, jobID, fmt.Errorf("reload job: %w", err))
		return
	}
	results := o.exporter.EnsureExports(ctx, job, storage.AllExportFormats(), false)
	for format, res := range results {
		if res.Err != nil {
			log.Warn().Str("format", string(format)).Err(res.Err).Msg("export failed, continuing")
		}
	}
	if err := o.tracker.Transition(ctx, jobID, 85, "Finalizing", nil); err != nil {
		log.Warn().Err(err).Msg("progress update failed")
	}

	completed := storage.JobStatusCompleted
	if err := o.tracker.Transition(ctx, jobID, 100, "Completed", &completed); err != nil {
		log.Error().Err(err).Msg("completion transition failed")
	}
}

// synthesizeCards runs the flashcard stage. Failures degrade: the job
// completes without generated cards.
func (o *Orchestrator) synthesizeCards(ctx context.Context, jobID uuid.UUID, enhanced string, settings storage.ProcessingSettings) {
	log := o.logger.WithJob(jobID.String()).WithStage("flashcards")

	if err := o.tracker.Transition(ctx, jobID, 65, "Creating flashcards", nil); err != nil {
		log.Warn().Err(err).Msg("progress update failed")
	}

	proposals, err := o.cardsGen.Synthesize(ctx, enhanced, settings)
	if err != nil {
		log.Warn().Err(err).Msg("flashcard synthesis failed, continuing without cards")
		return
	}

	existing, err := o.cards.ListByJob(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Msg("load existing cards failed, continuing")
		return
	}
	_, generated := flashcards.MergeCards(existing, proposals)
	if err := o.cards.ReplaceAISet(ctx, jobID, generated); err != nil {
		log.Warn().Err(err).Msg("persist cards failed, continuing")
		return
	}
	log.Info().Int("cards", len(generated)).Msg("flashcards generated")
}

// GetJob returns a job scoped to its owner.
func (o *Orchestrator) GetJob(ctx context.Context, ownerID string, jobID uuid.UUID) (*storage.Job, error) {
	return o.jobs.GetByOwner(ctx, ownerID, jobID)
}

// ListJobs returns all jobs for an owner, newest first.
func (o *Orchestrator) ListJobs(ctx context.Context, ownerID string) ([]*storage.Job, error) {
	return o.jobs.ListByOwner(ctx, ownerID)
}

// Cancel requests cancellation of a processing job.
func (o *Orchestrator) Cancel(ctx context.Context, ownerID string, jobID uuid.UUID) error {
	return o.tracker.RequestCancel(ctx, ownerID, jobID)
}

// Delete removes a job and its stored data.
func (o *Orchestrator) Delete(ctx context.Context, ownerID string, jobID uuid.UUID) error {
	return o.jobs.Delete(ctx, ownerID, jobID)
}

// Rename updates a job's title.
func (o *Orchestrator) Rename(ctx context.Context, ownerID string, jobID uuid.UUID, title string) error {
	return o.jobs.SetTitle(ctx, ownerID, jobID, title)
}

// FetchExport returns a valid artifact's bytes for a completed job.
func (o *Orchestrator) FetchExport(ctx context.Context, ownerID string, jobID uuid.UUID, format storage.ExportFormat) (*storage.ExportArtifact, []byte, error) {
	job, err := o.jobs.GetByOwner(ctx, ownerID, jobID)
	if err != nil {
		return nil, nil, err
	}
	return o.exporter.Fetch(ctx, job, format)
}

// RegenerateExport forces regeneration of one format for a completed job.
func (o *Orchestrator) RegenerateExport(ctx context.Context, ownerID string, jobID uuid.UUID, format storage.ExportFormat, force bool) (*storage.ExportArtifact, error) {
	job, err := o.jobs.GetByOwner(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != storage.JobStatusCompleted {
		return nil, fmt.Errorf("job is not completed")
	}
	res := o.exporter.EnsureExports(ctx, job, []storage.ExportFormat{format}, force)[format]
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Artifact, nil
}
