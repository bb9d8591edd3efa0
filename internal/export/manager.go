package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/internal/objstore"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// ErrNoEnhancedText indicates the job has nothing to export yet.
var ErrNoEnhancedText = errors.New("job has no enhanced text")

// ArtifactStore is the persistence surface for artifact records.
type ArtifactStore interface {
	Get(ctx context.Context, jobID uuid.UUID, format storage.ExportFormat) (*storage.ExportArtifact, error)
	Upsert(ctx context.Context, art *storage.ExportArtifact) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*storage.ExportArtifact, error)
}

// Result reports the outcome for one format.
type Result struct {
	Artifact *storage.ExportArtifact
	Skipped  bool
	Err      error
}

// Manager generates export artifacts idempotently.
type Manager struct {
	artifacts ArtifactStore
	objects   objstore.Store
	latex     *LatexGenerator
	compiler  Compiler
	logger    *observability.Logger
}

// NewManager creates an export manager.
func NewManager(artifacts ArtifactStore, objects objstore.Store, latex *LatexGenerator, compiler Compiler, logger *observability.Logger) *Manager {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Manager{artifacts: artifacts, objects: objects, latex: latex, compiler: compiler, logger: logger}
}

// SourceHash digests the enhanced text together with the settings snapshot.
// An artifact generated from a different hash is stale.
func SourceHash(enhancedText string, settings []byte) string {
	h := sha256.New()
	h.Write([]byte(enhancedText))
	h.Write([]byte{0})
	h.Write(settings)
	return hex.EncodeToString(h.Sum(nil))
}

// EnsureExports guarantees an up-to-date artifact for each requested format.
// A format whose artifact already matches the current source hash and whose
// file still exists is skipped unless force is set. Formats fail
// independently; one broken format never blocks the others.
func (m *Manager) EnsureExports(ctx context.Context, job *storage.Job, formats []storage.ExportFormat, force bool) map[storage.ExportFormat]Result {
	results := make(map[storage.ExportFormat]Result, len(formats))

	if job.EnhancedText == nil || *job.EnhancedText == "" {
		for _, format := range formats {
			results[format] = Result{Err: ErrNoEnhancedText}
		}
		return results
	}

	hash := SourceHash(*job.EnhancedText, job.Settings)
	log := m.logger.WithJob(job.ID.String()).WithStage("export")

	for _, format := range formats {
		if !force {
			if existing, err := m.artifacts.Get(ctx, job.ID, format); err == nil &&
				existing.SourceHash == hash && m.objects.Exists(existing.Location) {
				results[format] = Result{Artifact: existing, Skipped: true}
				continue
			}
		}

		art, err := m.generate(ctx, job, format, hash)
		if err != nil {
			log.Error().Str("format", string(format)).Err(err).Msg("export generation failed")
			results[format] = Result{Err: err}
			continue
		}
		log.Info().Str("format", string(format)).Msg("artifact generated")
		results[format] = Result{Artifact: art}
	}
	return results
}

func (m *Manager) generate(ctx context.Context, job *storage.Job, format storage.ExportFormat, hash string) (*storage.ExportArtifact, error) {
	settings, err := job.ParseSettings()
	if err != nil {
		return nil, err
	}

	title := "Enhanced Notes"
	if job.Title != nil && *job.Title != "" {
		title = *job.Title
	}
	text := *job.EnhancedText

	var data []byte
	switch format {
	case storage.ExportFormatTXT:
		data = []byte(text)
	case storage.ExportFormatDOCX:
		data, err = writeDocx(title, text)
		if err != nil {
			return nil, fmt.Errorf("build docx: %w", err)
		}
	case storage.ExportFormatPDF:
		document := m.latex.GenerateDocument(ctx, title, text, settings)
		data, err = m.compiler.Compile(ctx, document)
		if err != nil {
			return nil, fmt.Errorf("compile pdf: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}

	location := fmt.Sprintf("exports/%s/notes.%s", job.ID, format)
	if err := m.objects.Upload(location, data); err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	art := &storage.ExportArtifact{
		JobID:      job.ID,
		Format:     format,
		Location:   location,
		SourceHash: hash,
	}
	if err := m.artifacts.Upsert(ctx, art); err != nil {
		return nil, fmt.Errorf("record artifact: %w", err)
	}
	return art, nil
}

// Fetch returns a valid artifact's bytes, or ErrNotFound when the artifact
// is missing or stale.
func (m *Manager) Fetch(ctx context.Context, job *storage.Job, format storage.ExportFormat) (*storage.ExportArtifact, []byte, error) {
	if job.EnhancedText == nil {
		return nil, nil, storage.ErrNotFound
	}
	art, err := m.artifacts.Get(ctx, job.ID, format)
	if err != nil {
		return nil, nil, err
	}
	if art.SourceHash != SourceHash(*job.EnhancedText, job.Settings) {
		return nil, nil, storage.ErrNotFound
	}
	data, err := m.objects.Download(art.Location)
	if errors.Is(err, objstore.ErrNotFound) {
		return nil, nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return art, data, nil
}
