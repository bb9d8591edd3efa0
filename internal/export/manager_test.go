package export

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/objstore"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

type fakeArtifactStore struct {
	records map[string]*storage.ExportArtifact
	upserts int
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{records: make(map[string]*storage.ExportArtifact)}
}

func artifactKey(jobID uuid.UUID, format storage.ExportFormat) string {
	return jobID.String() + "/" + string(format)
}

func (s *fakeArtifactStore) Get(_ context.Context, jobID uuid.UUID, format storage.ExportFormat) (*storage.ExportArtifact, error) {
	art, ok := s.records[artifactKey(jobID, format)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return art, nil
}

func (s *fakeArtifactStore) Upsert(_ context.Context, art *storage.ExportArtifact) error {
	s.upserts++
	s.records[artifactKey(art.JobID, art.Format)] = art
	return nil
}

func (s *fakeArtifactStore) ListByJob(_ context.Context, jobID uuid.UUID) ([]*storage.ExportArtifact, error) {
	var out []*storage.ExportArtifact
	for _, art := range s.records {
		if art.JobID == jobID {
			out = append(out, art)
		}
	}
	return out, nil
}

type fakeCompiler struct {
	compiles int
}

func (c *fakeCompiler) Compile(context.Context, string) ([]byte, error) {
	c.compiles++
	return []byte("%PDF-1.4 fake"), nil
}

func exportTestJob(t *testing.T) *storage.Job {
	t.Helper()
	settings, err := json.Marshal(storage.ProcessingSettings{AddHeaders: true})
	require.NoError(t, err)
	text := "# Notes\ncontent line"
	return &storage.Job{
		ID:           uuid.New(),
		OwnerID:      "owner-1",
		Settings:     settings,
		Status:       storage.JobStatusCompleted,
		EnhancedText: &text,
	}
}

func newTestManager(t *testing.T, artifacts ArtifactStore, compiler Compiler) (*Manager, objstore.Store) {
	t.Helper()
	objects, err := objstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	latex := NewLatexGenerator(&scriptedGenerator{available: false}, nil)
	return NewManager(artifacts, objects, latex, compiler, nil), objects
}

func TestEnsureExports_GeneratesAllFormats(t *testing.T) {
	artifacts := newFakeArtifactStore()
	compiler := &fakeCompiler{}
	mgr, objects := newTestManager(t, artifacts, compiler)
	job := exportTestJob(t)

	results := mgr.EnsureExports(context.Background(), job, storage.AllExportFormats(), false)

	require.Len(t, results, 3)
	for format, res := range results {
		require.NoError(t, res.Err, format)
		assert.False(t, res.Skipped)
		assert.True(t, objects.Exists(res.Artifact.Location))
	}
	assert.Equal(t, 1, compiler.compiles)
}

func TestEnsureExports_SecondRunIsIdempotent(t *testing.T) {
	artifacts := newFakeArtifactStore()
	compiler := &fakeCompiler{}
	mgr, _ := newTestManager(t, artifacts, compiler)
	job := exportTestJob(t)

	first := mgr.EnsureExports(context.Background(), job, storage.AllExportFormats(), false)
	for _, res := range first {
		require.NoError(t, res.Err)
	}
	upsertsAfterFirst := artifacts.upserts

	second := mgr.EnsureExports(context.Background(), job, storage.AllExportFormats(), false)

	for _, res := range second {
		require.NoError(t, res.Err)
		assert.True(t, res.Skipped)
	}
	assert.Equal(t, upsertsAfterFirst, artifacts.upserts)
	assert.Equal(t, 1, compiler.compiles)
}

func TestEnsureExports_ForceRegenerates(t *testing.T) {
	artifacts := newFakeArtifactStore()
	compiler := &fakeCompiler{}
	mgr, _ := newTestManager(t, artifacts, compiler)
	job := exportTestJob(t)

	mgr.EnsureExports(context.Background(), job, []storage.ExportFormat{storage.ExportFormatPDF}, false)
	mgr.EnsureExports(context.Background(), job, []storage.ExportFormat{storage.ExportFormatPDF}, true)

	assert.Equal(t, 2, compiler.compiles)
}

func TestEnsureExports_StaleHashRegenerates(t *testing.T) {
	artifacts := newFakeArtifactStore()
	compiler := &fakeCompiler{}
	mgr, _ := newTestManager(t, artifacts, compiler)
	job := exportTestJob(t)

	mgr.EnsureExports(context.Background(), job, []storage.ExportFormat{storage.ExportFormatTXT}, false)

	changed := "entirely new enhanced text"
	job.EnhancedText = &changed
	results := mgr.EnsureExports(context.Background(), job, []storage.ExportFormat{storage.ExportFormatTXT}, false)

	require.NoError(t, results[storage.ExportFormatTXT].Err)
	assert.False(t, results[storage.ExportFormatTXT].Skipped)
}

func TestEnsureExports_MissingFileRegenerates(t *testing.T) {
	artifacts := newFakeArtifactStore()
	compiler := &fakeCompiler{}
	mgr, objects := newTestManager(t, artifacts, compiler)
	job := exportTestJob(t)

	first := mgr.EnsureExports(context.Background(), job, []storage.ExportFormat{storage.ExportFormatTXT}, false)
	require.NoError(t, first[storage.ExportFormatTXT].Err)

	// Dangling record: file removed out from under the manager.
	require.NoError(t, objects.Delete(first[storage.ExportFormatTXT].Artifact.Location))

	second := mgr.EnsureExports(context.Background(), job, []storage.ExportFormat{storage.ExportFormatTXT}, false)
	require.NoError(t, second[storage.ExportFormatTXT].Err)
	assert.False(t, second[storage.ExportFormatTXT].Skipped)
	assert.True(t, objects.Exists(second[storage.ExportFormatTXT].Artifact.Location))
}

func TestEnsureExports_NoEnhancedText(t *testing.T) {
	mgr, _ := newTestManager(t, newFakeArtifactStore(), &fakeCompiler{})
	job := exportTestJob(t)
	job.EnhancedText = nil

	results := mgr.EnsureExports(context.Background(), job, storage.AllExportFormats(), false)

	for _, res := range results {
		assert.ErrorIs(t, res.Err, ErrNoEnhancedText)
	}
}

func TestFetch_StaleArtifactIsAbsent(t *testing.T) {
	artifacts := newFakeArtifactStore()
	mgr, _ := newTestManager(t, artifacts, &fakeCompiler{})
	job := exportTestJob(t)

	mgr.EnsureExports(context.Background(), job, []storage.ExportFormat{storage.ExportFormatTXT}, false)

	changed := "different text"
	job.EnhancedText = &changed
	_, _, err := mgr.Fetch(context.Background(), job, storage.ExportFormatTXT)

	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFetch_ReturnsBytes(t *testing.T) {
	artifacts := newFakeArtifactStore()
	mgr, _ := newTestManager(t, artifacts, &fakeCompiler{})
	job := exportTestJob(t)

	mgr.EnsureExports(context.Background(), job, []storage.ExportFormat{storage.ExportFormatTXT}, false)

	art, data, err := mgr.Fetch(context.Background(), job, storage.ExportFormatTXT)
	require.NoError(t, err)
	assert.Equal(t, storage.ExportFormatTXT, art.Format)
	assert.Equal(t, *job.EnhancedText, string(data))
}
