// Package storage provides database models and repositories for Inkwell.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an enhancement job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
	JobStatusCancelled  JobStatus = "cancelled"
)

// ParseJobStatus converts a raw string to a JobStatus, returning an error
// for unknown values.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	switch st {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTerminal reports whether the status admits no further automatic
// transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError || s == JobStatusCancelled
}

// InputType represents the modality of the submitted material.
type InputType string

const (
	InputTypeText  InputType = "text"
	InputTypeImage InputType = "image"
	InputTypePDF   InputType = "pdf"
)

// ExportFormat names a durable artifact format.
type ExportFormat string

const (
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatDOCX ExportFormat = "docx"
	ExportFormatTXT  ExportFormat = "txt"
)

// ParseExportFormat converts a raw string to an ExportFormat.
func ParseExportFormat(s string) (ExportFormat, error) {
	f := ExportFormat(s)
	switch f {
	case ExportFormatPDF, ExportFormatDOCX, ExportFormatTXT:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// AllExportFormats lists every supported artifact format.
func AllExportFormats() []ExportFormat {
	return []ExportFormat{ExportFormatPDF, ExportFormatDOCX, ExportFormatTXT}
}

// FlashcardSource distinguishes user-authored cards from generated ones.
type FlashcardSource string

const (
	FlashcardSourceManual FlashcardSource = "manual"
	FlashcardSourceAI     FlashcardSource = "ai"
)

// LatexStyle selects the typesetting profile for PDF exports.
type LatexStyle string

const (
	LatexStyleAcademic   LatexStyle = "academic"
	LatexStylePersonal   LatexStyle = "personal"
	LatexStyleMinimalist LatexStyle = "minimalist"
)

// ProcessingSettings is the immutable-at-submission configuration snapshot
// for a job. It is stored on the job as an opaque JSON blob so producers can
// evolve the schema without coordinating with the pipeline.
type ProcessingSettings struct {
	AddBulletPoints       bool       `json:"add_bullet_points"`
	AddHeaders            bool       `json:"add_headers"`
	Expand                bool       `json:"expand"`
	Summarize             bool       `json:"summarize"`
	FocusTopics           []string   `json:"focus_topics,omitempty"`
	LatexStyle            LatexStyle `json:"latex_style,omitempty"`
	FontPreference        string     `json:"font_preference,omitempty"`
	CustomSpecifications  string     `json:"custom_specifications,omitempty"`
	GenerateFlashcards    bool       `json:"generate_flashcards"`
	FlashcardTopics       []string   `json:"flashcard_topics,omitempty"`
	FlashcardCount        int        `json:"flashcard_count,omitempty"`
	MaxFlashcardsPerTopic int        `json:"max_flashcards_per_topic,omitempty"`
}

// Normalize fills defaults and clamps out-of-range values. Call once at the
// submission boundary; the pipeline never branches on payload shape after
// this point.
func (s *ProcessingSettings) Normalize() {
	if s.LatexStyle == "" {
		s.LatexStyle = LatexStyleAcademic
	}
	switch s.LatexStyle {
	case LatexStyleAcademic, LatexStylePersonal, LatexStyleMinimalist:
	default:
		s.LatexStyle = LatexStyleAcademic
	}
	if s.FontPreference == "" {
		s.FontPreference = "Times New Roman"
	}
	if s.MaxFlashcardsPerTopic <= 0 {
		s.MaxFlashcardsPerTopic = 4
	}
	if s.FlashcardCount < 0 {
		s.FlashcardCount = 0
	}
}

// TopicsForFlashcards returns the topic list the synthesizer should use:
// explicit flashcard topics, or else the focus topics.
func (s ProcessingSettings) TopicsForFlashcards() []string {
	if len(s.FlashcardTopics) > 0 {
		return s.FlashcardTopics
	}
	return s.FocusTopics
}

// Job is the unit of work tracked end-to-end by the pipeline.
type Job struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	OwnerID         string          `json:"owner_id" db:"owner_id"`
	Title           *string         `json:"title,omitempty" db:"title"`
	InputType       InputType       `json:"input_type" db:"input_type"`
	InputText       *string         `json:"input_text,omitempty" db:"input_text"`
	Settings        json.RawMessage `json:"settings" db:"settings"`
	Status          JobStatus       `json:"status" db:"status"`
	Progress        int             `json:"progress" db:"progress"`
	ProgressMessage string          `json:"progress_message" db:"progress_message"`
	EnhancedText    *string         `json:"enhanced_text,omitempty" db:"enhanced_text"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// ParseSettings decodes the settings snapshot into the canonical value type.
func (j *Job) ParseSettings() (ProcessingSettings, error) {
	var s ProcessingSettings
	if len(j.Settings) > 0 {
		if err := json.Unmarshal(j.Settings, &s); err != nil {
			return s, fmt.Errorf("decode job settings: %w", err)
		}
	}
	s.Normalize()
	return s, nil
}

// Flashcard is a single study card derived from (or manually attached to) a
// job's enhanced text.
type Flashcard struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	JobID      uuid.UUID       `json:"job_id" db:"job_id"`
	Topic      string          `json:"topic" db:"topic"`
	Term       string          `json:"term" db:"term"`
	Definition string          `json:"definition" db:"definition"`
	Source     FlashcardSource `json:"source" db:"source"`
	Position   int             `json:"position" db:"position"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// ExportArtifact records a generated output file for a job. SourceHash is a
// digest of the enhanced text plus settings at generation time; an artifact
// whose hash no longer matches the job is stale and must be regenerated.
type ExportArtifact struct {
	JobID      uuid.UUID    `json:"job_id" db:"job_id"`
	Format     ExportFormat `json:"format" db:"format"`
	Location   string       `json:"location" db:"location"`
	SourceHash string       `json:"source_hash" db:"source_hash"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}
