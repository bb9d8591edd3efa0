package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/internal/llm"
	"github.com/inkwell-ai/inkwell/internal/objstore"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

type fakeBackend struct {
	available     bool
	transcription string
	transcribeErr error
	corrected     string
	correctErr    error
}

func (f *fakeBackend) Available() bool { return f.available }

func (f *fakeBackend) Transcribe(context.Context, [][]byte) (string, error) {
	return f.transcription, f.transcribeErr
}

func (f *fakeBackend) Generate(context.Context, llm.GenerateRequest) (string, error) {
	return f.corrected, f.correctErr
}

type fakeJobTexts struct {
	saved map[uuid.UUID]string
}

func newFakeJobTexts() *fakeJobTexts {
	return &fakeJobTexts{saved: make(map[uuid.UUID]string)}
}

func (f *fakeJobTexts) SetInputText(_ context.Context, jobID uuid.UUID, text string) error {
	f.saved[jobID] = text
	return nil
}

func testStore(t *testing.T) objstore.Store {
	t.Helper()
	store, err := objstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNormalize_TextPassthroughTrims(t *testing.T) {
	jobs := newFakeJobTexts()
	n := New(&fakeBackend{}, testStore(t), jobs, nil)
	jobID := uuid.New()

	text, err := n.Normalize(context.Background(), jobID, Input{Text: "  typed notes \n"})

	require.NoError(t, err)
	assert.Equal(t, "typed notes", text)
	assert.Equal(t, "typed notes", jobs.saved[jobID])
}

func TestNormalize_EmptyInputIsExtractionError(t *testing.T) {
	n := New(&fakeBackend{}, testStore(t), newFakeJobTexts(), nil)

	_, err := n.Normalize(context.Background(), uuid.New(), Input{Text: "   "})

	var extractErr *ExtractionError
	assert.ErrorAs(t, err, &extractErr)
}

func TestNormalize_ImagesTranscribedAndCorrected(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Upload("uploads/a.jpg", []byte("jpegdata")))

	jobs := newFakeJobTexts()
	backend := &fakeBackend{available: true, transcription: "raw ocr texl", corrected: "raw ocr text"}
	n := New(backend, store, jobs, nil)
	jobID := uuid.New()

	text, err := n.Normalize(context.Background(), jobID, Input{ImageKeys: []string{"uploads/a.jpg"}})

	require.NoError(t, err)
	assert.Equal(t, "raw ocr text", text)
	assert.Equal(t, "raw ocr text", jobs.saved[jobID])
}

func TestNormalize_CorrectionFailureFallsBackToRaw(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Upload("uploads/a.jpg", []byte("jpegdata")))

	backend := &fakeBackend{available: true, transcription: "raw ocr texl", correctErr: errors.New("boom")}
	n := New(backend, store, newFakeJobTexts(), nil)

	text, err := n.Normalize(context.Background(), uuid.New(), Input{ImageKeys: []string{"uploads/a.jpg"}})

	require.NoError(t, err)
	assert.Equal(t, "raw ocr texl", text)
}

func TestNormalize_TranscriptionFailureIsExtractionError(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Upload("uploads/a.jpg", []byte("jpegdata")))

	backend := &fakeBackend{available: true, transcribeErr: errors.New("vision down")}
	n := New(backend, store, newFakeJobTexts(), nil)

	_, err := n.Normalize(context.Background(), uuid.New(), Input{ImageKeys: []string{"uploads/a.jpg"}})

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.Reason, "transcription")
}

func TestNormalize_MissingImageObject(t *testing.T) {
	backend := &fakeBackend{available: true}
	n := New(backend, testStore(t), newFakeJobTexts(), nil)

	_, err := n.Normalize(context.Background(), uuid.New(), Input{ImageKeys: []string{"uploads/missing.jpg"}})

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.ErrorIs(t, err, objstore.ErrNotFound)
}

func TestStorePlaceholder(t *testing.T) {
	jobs := newFakeJobTexts()
	n := New(&fakeBackend{}, testStore(t), jobs, nil)
	jobID := uuid.New()

	n.StorePlaceholder(context.Background(), jobID)

	assert.Equal(t, PlaceholderText, jobs.saved[jobID])
}

func TestInputTypeOf(t *testing.T) {
	assert.Equal(t, storage.InputTypeText, InputTypeOf(Input{Text: "x"}))
	assert.Equal(t, storage.InputTypeImage, InputTypeOf(Input{ImageKeys: []string{"k"}}))
	assert.Equal(t, storage.InputTypePDF, InputTypeOf(Input{PDFKey: "k"}))
}
