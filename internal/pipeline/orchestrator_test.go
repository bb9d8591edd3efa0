package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/export"
	"github.com/inkwell-ai/inkwell/internal/flashcards"
	"github.com/inkwell-ai/inkwell/internal/jobtrack"
	"github.com/inkwell-ai/inkwell/internal/normalize"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// memJobStore is a thread-safe in-memory job store backing both the
// orchestrator and the tracker in tests.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*storage.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[uuid.UUID]*storage.Job)}
}

func (s *memJobStore) Create(_ context.Context, job *storage.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *memJobStore) Get(_ context.Context, jobID uuid.UUID) (*storage.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memJobStore) GetByOwner(ctx context.Context, ownerID string, jobID uuid.UUID) (*storage.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	return job, nil
}

func (s *memJobStore) ListByOwner(_ context.Context, ownerID string) ([]*storage.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Job
	for _, job := range s.jobs {
		if job.OwnerID == ownerID {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memJobStore) GetStatus(_ context.Context, jobID uuid.UUID) (storage.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return job.Status, nil
}

func (s *memJobStore) UpdateState(_ context.Context, jobID uuid.UUID, status storage.JobStatus, progress int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}
	job.Status = status
	job.Progress = progress
	job.ProgressMessage = message
	return nil
}

func (s *memJobStore) SetInputText(_ context.Context, jobID uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.InputText = &text
	}
	return nil
}

func (s *memJobStore) SetEnhancedText(_ context.Context, jobID uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.EnhancedText = &text
	}
	return nil
}

func (s *memJobStore) SetTitle(_ context.Context, ownerID string, jobID uuid.UUID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok && job.OwnerID == ownerID {
		job.Title = &title
		return nil
	}
	return storage.ErrNotFound
}

func (s *memJobStore) Delete(_ context.Context, ownerID string, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok && job.OwnerID == ownerID {
		delete(s.jobs, jobID)
		return nil
	}
	return storage.ErrNotFound
}

type memCardStore struct {
	mu    sync.Mutex
	cards map[uuid.UUID][]*storage.Flashcard
}

func newMemCardStore() *memCardStore {
	return &memCardStore{cards: make(map[uuid.UUID][]*storage.Flashcard)}
}

func (s *memCardStore) ListByJob(_ context.Context, jobID uuid.UUID) ([]*storage.Flashcard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*storage.Flashcard(nil), s.cards[jobID]...), nil
}

func (s *memCardStore) ReplaceAISet(_ context.Context, jobID uuid.UUID, cards []*storage.Flashcard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*storage.Flashcard
	for _, card := range s.cards[jobID] {
		if card.Source == storage.FlashcardSourceManual {
			kept = append(kept, card)
		}
	}
	s.cards[jobID] = append(kept, cards...)
	return nil
}

type stageNormalizer struct {
	text string
	err  error
	// block, when non-nil, is closed by the test to release the stage.
	block chan struct{}
}

func (n *stageNormalizer) Normalize(_ context.Context, _ uuid.UUID, _ normalize.Input) (string, error) {
	if n.block != nil {
		<-n.block
	}
	return n.text, n.err
}

func (n *stageNormalizer) StorePlaceholder(context.Context, uuid.UUID) {}

type stageEnhancer struct {
	out string
	err error
}

func (e *stageEnhancer) Enhance(_ context.Context, _ string, _ string, _ storage.ProcessingSettings) (string, error) {
	return e.out, e.err
}

type stageSynthesizer struct {
	mu        sync.Mutex
	calls     int
	proposals []flashcards.Proposal
	err       error
}

func (s *stageSynthesizer) Synthesize(context.Context, string, storage.ProcessingSettings) ([]flashcards.Proposal, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.proposals, s.err
}

type stageExporter struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (e *stageExporter) EnsureExports(_ context.Context, job *storage.Job, formats []storage.ExportFormat, _ bool) map[storage.ExportFormat]export.Result {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	results := make(map[storage.ExportFormat]export.Result)
	for _, format := range formats {
		if e.fail {
			results[format] = export.Result{Err: errors.New("export broken")}
		} else {
			results[format] = export.Result{Artifact: &storage.ExportArtifact{JobID: job.ID, Format: format}}
		}
	}
	return results
}

func (e *stageExporter) Fetch(context.Context, *storage.Job, storage.ExportFormat) (*storage.ExportArtifact, []byte, error) {
	return nil, nil, storage.ErrNotFound
}

func waitForTerminal(t *testing.T, store *memJobStore, jobID uuid.UUID) *storage.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func newTestOrchestrator(store *memJobStore, cards *memCardStore, norm Normalizer, enh Enhancer, syn CardSynthesizer, exp Exporter) *Orchestrator {
	tracker := jobtrack.NewTracker(store, nil, nil)
	return NewOrchestrator(store, cards, tracker, norm, enh, syn, exp, nil)
}

func TestSubmit_HappyPathCompletes(t *testing.T) {
	store := newMemJobStore()
	cards := newMemCardStore()
	exporter := &stageExporter{}
	orc := newTestOrchestrator(store, cards,
		&stageNormalizer{text: "clean notes"},
		&stageEnhancer{out: "enhanced notes"},
		&stageSynthesizer{},
		exporter,
	)

	job, err := orc.Submit(context.Background(), Submission{
		OwnerID: "owner-1",
		Input:   normalize.Input{Text: "raw notes"},
	})
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatusPending, job.Status)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, storage.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.EnhancedText)
	assert.Equal(t, "enhanced notes", *final.EnhancedText)
	assert.Equal(t, 1, exporter.calls)
}

func TestSubmit_ExtractionFailureMarksError(t *testing.T) {
	store := newMemJobStore()
	orc := newTestOrchestrator(store, newMemCardStore(),
		&stageNormalizer{err: &normalize.ExtractionError{Reason: "unreadable"}},
		&stageEnhancer{out: "unused"},
		&stageSynthesizer{},
		&stageExporter{},
	)

	job, err := orc.Submit(context.Background(), Submission{
		OwnerID: "owner-1",
		Input:   normalize.Input{Text: "raw"},
	})
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, storage.JobStatusError, final.Status)
	assert.Equal(t, 0, final.Progress)
	assert.Contains(t, final.ProgressMessage, "unreadable")
}

func TestSubmit_ExportFailureStillCompletes(t *testing.T) {
	store := newMemJobStore()
	orc := newTestOrchestrator(store, newMemCardStore(),
		&stageNormalizer{text: "clean"},
		&stageEnhancer{out: "enhanced"},
		&stageSynthesizer{},
		&stageExporter{fail: true},
	)

	job, err := orc.Submit(context.Background(), Submission{
		OwnerID: "owner-1",
		Input:   normalize.Input{Text: "raw"},
	})
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, storage.JobStatusCompleted, final.Status)
}

func TestSubmit_FlashcardFailureDegrades(t *testing.T) {
	store := newMemJobStore()
	cards := newMemCardStore()
	orc := newTestOrchestrator(store, cards,
		&stageNormalizer{text: "clean"},
		&stageEnhancer{out: "enhanced"},
		&stageSynthesizer{err: errors.New("backend down")},
		&stageExporter{},
	)

	job, err := orc.Submit(context.Background(), Submission{
		OwnerID: "owner-1",
		Input:   normalize.Input{Text: "raw"},
		Settings: storage.ProcessingSettings{
			GenerateFlashcards: true,
			FlashcardTopics:    []string{"entropy"},
		},
	})
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, storage.JobStatusCompleted, final.Status)

	stored, err := cards.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSubmit_FlashcardsPersisted(t *testing.T) {
	store := newMemJobStore()
	cards := newMemCardStore()
	orc := newTestOrchestrator(store, cards,
		&stageNormalizer{text: "clean"},
		&stageEnhancer{out: "enhanced"},
		&stageSynthesizer{proposals: []flashcards.Proposal{
			{Topic: "t", Term: "Term", Definition: "Definition."},
		}},
		&stageExporter{},
	)

	job, err := orc.Submit(context.Background(), Submission{
		OwnerID: "owner-1",
		Input:   normalize.Input{Text: "raw"},
		Settings: storage.ProcessingSettings{
			GenerateFlashcards: true,
			FlashcardTopics:    []string{"t"},
		},
	})
	require.NoError(t, err)

	waitForTerminal(t, store, job.ID)

	stored, err := cards.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, storage.FlashcardSourceAI, stored[0].Source)
}

func TestSubmit_FlashcardsSkippedWithoutTopics(t *testing.T) {
	store := newMemJobStore()
	cards := newMemCardStore()
	synth := &stageSynthesizer{proposals: []flashcards.Proposal{
		{Topic: "t", Term: "Term", Definition: "Definition."},
	}}
	orc := newTestOrchestrator(store, cards,
		&stageNormalizer{text: "clean"},
		&stageEnhancer{out: "enhanced"},
		synth,
		&stageExporter{},
	)

	job, err := orc.Submit(context.Background(), Submission{
		OwnerID:  "owner-1",
		Input:    normalize.Input{Text: "raw"},
		Settings: storage.ProcessingSettings{GenerateFlashcards: true},
	})
	require.NoError(t, err)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, storage.JobStatusCompleted, final.Status)
	assert.Equal(t, 0, synth.calls)

	stored, err := cards.ListByJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCancel_DuringProcessingWins(t *testing.T) {
	store := newMemJobStore()
	release := make(chan struct{})
	orc := newTestOrchestrator(store, newMemCardStore(),
		&stageNormalizer{text: "clean", block: release},
		&stageEnhancer{out: "enhanced"},
		&stageSynthesizer{},
		&stageExporter{},
	)

	job, err := orc.Submit(context.Background(), Submission{
		OwnerID: "owner-1",
		Input:   normalize.Input{Text: "raw"},
	})
	require.NoError(t, err)

	// Wait until the worker marked the job processing, then cancel while
	// the normalize stage is held open.
	deadline := time.Now().Add(5 * time.Second)
	for {
		current, err := store.Get(context.Background(), job.ID)
		require.NoError(t, err)
		if current.Status == storage.JobStatusProcessing {
			break
		}
		require.True(t, time.Now().Before(deadline), "job never started processing")
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, orc.Cancel(context.Background(), "owner-1", job.ID))
	close(release)

	final := waitForTerminal(t, store, job.ID)
	assert.Equal(t, storage.JobStatusCancelled, final.Status)
	assert.Equal(t, 0, final.Progress)
	assert.Nil(t, final.EnhancedText)
}

func TestCancel_PendingJobRejected(t *testing.T) {
	store := newMemJobStore()
	job := &storage.Job{ID: uuid.New(), OwnerID: "owner-1", Status: storage.JobStatusPending}
	require.NoError(t, store.Create(context.Background(), job))

	orc := newTestOrchestrator(store, newMemCardStore(),
		&stageNormalizer{}, &stageEnhancer{}, &stageSynthesizer{}, &stageExporter{})

	err := orc.Cancel(context.Background(), "owner-1", job.ID)
	assert.ErrorIs(t, err, jobtrack.ErrInvalidState)
}

func TestRegenerateExport_RequiresCompletedJob(t *testing.T) {
	store := newMemJobStore()
	job := &storage.Job{ID: uuid.New(), OwnerID: "owner-1", Status: storage.JobStatusProcessing}
	require.NoError(t, store.Create(context.Background(), job))

	orc := newTestOrchestrator(store, newMemCardStore(),
		&stageNormalizer{}, &stageEnhancer{}, &stageSynthesizer{}, &stageExporter{})

	_, err := orc.RegenerateExport(context.Background(), "owner-1", job.ID, storage.ExportFormatPDF, false)
	assert.Error(t, err)
}
