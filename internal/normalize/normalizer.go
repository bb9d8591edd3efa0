// Package normalize converts submitted material (typed text, note images,
// PDFs) into canonical plain text for the enhancement stage.
package normalize

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/internal/llm"
	"github.com/inkwell-ai/inkwell/internal/objstore"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// ExtractionError indicates the input could not be turned into usable text.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Transcriber turns page images into text.
type Transcriber interface {
	Available() bool
	Transcribe(ctx context.Context, images [][]byte) (string, error)
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// JobTexts persists the canonical input text for a job.
type JobTexts interface {
	SetInputText(ctx context.Context, jobID uuid.UUID, text string) error
}

// Input describes the submitted material. Exactly one of Text, ImageKeys or
// PDFKey is set; keys refer to uploaded objects.
type Input struct {
	Text      string
	ImageKeys []string
	PDFKey    string
}

// Normalizer turns submitted material into canonical text and persists it.
type Normalizer struct {
	backend Transcriber
	objects objstore.Store
	jobs    JobTexts
	logger  *observability.Logger
}

// New creates a normalizer.
func New(backend Transcriber, objects objstore.Store, jobs JobTexts, logger *observability.Logger) *Normalizer {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Normalizer{backend: backend, objects: objects, jobs: jobs, logger: logger}
}

// Normalize produces canonical text for the job and stores it as the job's
// input text before returning. An empty result is an ExtractionError.
func (n *Normalizer) Normalize(ctx context.Context, jobID uuid.UUID, in Input) (string, error) {
	log := n.logger.WithJob(jobID.String()).WithStage("normalize")

	var (
		text string
		err  error
	)
	switch {
	case in.Text != "":
		text = strings.TrimSpace(in.Text)
	case len(in.ImageKeys) > 0:
		text, err = n.fromImages(ctx, in.ImageKeys)
	case in.PDFKey != "":
		text, err = n.fromPDF(ctx, in.PDFKey)
	default:
		err = &ExtractionError{Reason: "no input material provided"}
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ExtractionError{Reason: "no usable text in input"}
	}

	if err := n.jobs.SetInputText(ctx, jobID, text); err != nil {
		return "", fmt.Errorf("persist canonical text: %w", err)
	}

	log.Info().Int("chars", len(text)).Msg("input normalized")
	return text, nil
}

// fromImages downloads uploaded images and transcribes them in one vision
// call, then runs the correction pass.
func (n *Normalizer) fromImages(ctx context.Context, keys []string) (string, error) {
	images := make([][]byte, 0, len(keys))
	for _, key := range keys {
		data, err := n.objects.Download(key)
		if err != nil {
			return "", &ExtractionError{Reason: fmt.Sprintf("load image %s", key), Err: err}
		}
		images = append(images, data)
	}

	raw, err := n.backend.Transcribe(ctx, images)
	if err != nil {
		return "", &ExtractionError{Reason: "image transcription", Err: err}
	}
	return n.correctTranscription(ctx, raw), nil
}

// fromPDF renders each page to a JPEG and transcribes the pages.
func (n *Normalizer) fromPDF(ctx context.Context, key string) (string, error) {
	data, err := n.objects.Download(key)
	if err != nil {
		return "", &ExtractionError{Reason: fmt.Sprintf("load pdf %s", key), Err: err}
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", &ExtractionError{Reason: "open pdf", Err: err}
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return "", &ExtractionError{Reason: "pdf has no pages"}
	}

	images := make([][]byte, 0, pageCount)
	for page := 0; page < pageCount; page++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		img, err := doc.Image(page)
		if err != nil {
			return "", &ExtractionError{Reason: fmt.Sprintf("render page %d", page+1), Err: err}
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return "", &ExtractionError{Reason: fmt.Sprintf("encode page %d", page+1), Err: err}
		}
		images = append(images, buf.Bytes())
	}

	raw, err := n.backend.Transcribe(ctx, images)
	if err != nil {
		return "", &ExtractionError{Reason: "pdf transcription", Err: err}
	}
	return n.correctTranscription(ctx, raw), nil
}

// correctTranscription runs a cheap low-temperature cleanup over raw OCR
// output. Correction failure falls back to the raw transcription.
func (n *Normalizer) correctTranscription(ctx context.Context, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !n.backend.Available() {
		return raw
	}

	temp := 0.1
	corrected, err := n.backend.Generate(ctx, llm.GenerateRequest{
		System: "You fix OCR transcription errors. Correct obvious character and word " +
			"recognition mistakes. Do not embellish, rephrase, or add content. " +
			"Preserve the original structure and line breaks. Output only the corrected text.",
		Prompt:      raw,
		Temperature: &temp,
	})
	if err != nil {
		n.logger.Warn().Err(err).Msg("transcription correction failed, using raw text")
		return raw
	}

	corrected = strings.TrimSpace(corrected)
	if corrected == "" {
		return raw
	}
	return corrected
}

// PlaceholderText is stored as input text when extraction fails so the job
// record explains itself.
const PlaceholderText = "[Text extraction failed. The uploaded material could not be read.]"

// StorePlaceholder records the placeholder input text; errors are logged and
// swallowed since the job is already failing.
func (n *Normalizer) StorePlaceholder(ctx context.Context, jobID uuid.UUID) {
	if err := n.jobs.SetInputText(ctx, jobID, PlaceholderText); err != nil {
		n.logger.WithJob(jobID.String()).Warn().Err(err).Msg("store placeholder text failed")
	}
}

// InputTypeOf reports the storage input type for the given material.
func InputTypeOf(in Input) storage.InputType {
	switch {
	case len(in.ImageKeys) > 0:
		return storage.InputTypeImage
	case in.PDFKey != "":
		return storage.InputTypePDF
	default:
		return storage.InputTypeText
	}
}
