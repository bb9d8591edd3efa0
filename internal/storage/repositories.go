package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// JobRepository handles job CRUD and state persistence.
type JobRepository struct {
	db DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, owner_id, title, input_type, input_text, settings,
		status, progress, progress_message, enhanced_text, created_at, updated_at`

func scanJob(row interface {
	Scan(dest ...interface{}) error
}) (*Job, error) {
	job := &Job{}
	var id string
	err := row.Scan(
		&id, &job.OwnerID, &job.Title, &job.InputType, &job.InputText,
		&job.Settings, &job.Status, &job.Progress, &job.ProgressMessage,
		&job.EnhancedText, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	return job, nil
}

// Create creates a new job.
func (r *JobRepository) Create(ctx context.Context, job *Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobStatusPending
	}

	query := `
		INSERT INTO jobs (id, owner_id, title, input_type, input_text, settings,
			status, progress, progress_message, enhanced_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID.String(), job.OwnerID, job.Title, job.InputType, job.InputText,
		string(job.Settings), job.Status, job.Progress, job.ProgressMessage,
		job.EnhancedText, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// Get retrieves a job by ID without ownership scoping. Internal callers only;
// the HTTP surface goes through GetByOwner.
func (r *JobRepository) Get(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.db.QueryRowContext(ctx, query, jobID.String()))
}

// GetByOwner retrieves a job by ID with ownership scoping.
func (r *JobRepository) GetByOwner(ctx context.Context, ownerID string, jobID uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 AND owner_id = $2`
	return scanJob(r.db.QueryRowContext(ctx, query, jobID.String(), ownerID))
}

// ListByOwner lists all jobs for an owner, newest first.
func (r *JobRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetStatus reads only the persisted status of a job. Cancellation
// checkpoints use this to observe a cancel written by another request.
func (r *JobRepository) GetStatus(ctx context.Context, jobID uuid.UUID) (JobStatus, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return ParseJobStatus(raw)
}

// UpdateState writes status, progress and the progress message in one
// statement so observers never see a torn update.
func (r *JobRepository) UpdateState(ctx context.Context, jobID uuid.UUID, status JobStatus, progress int, message string) error {
	query := `
		UPDATE jobs SET status = $1, progress = $2, progress_message = $3, updated_at = $4
		WHERE id = $5
	`
	res, err := r.db.ExecContext(ctx, query, status, progress, message, time.Now().UTC(), jobID.String())
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// SetInputText persists the canonical normalized input text.
func (r *JobRepository) SetInputText(ctx context.Context, jobID uuid.UUID, text string) error {
	query := `UPDATE jobs SET input_text = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, text, time.Now().UTC(), jobID.String())
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// SetEnhancedText persists the merged enhancement output.
func (r *JobRepository) SetEnhancedText(ctx context.Context, jobID uuid.UUID, text string) error {
	query := `UPDATE jobs SET enhanced_text = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, text, time.Now().UTC(), jobID.String())
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// SetTitle updates the user-visible job title, owner scoped.
func (r *JobRepository) SetTitle(ctx context.Context, ownerID string, jobID uuid.UUID, title string) error {
	query := `UPDATE jobs SET title = $1, updated_at = $2 WHERE id = $3 AND owner_id = $4`
	res, err := r.db.ExecContext(ctx, query, title, time.Now().UTC(), jobID.String(), ownerID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// Delete removes a job and its dependent rows, owner scoped.
func (r *JobRepository) Delete(ctx context.Context, ownerID string, jobID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE id = $1 AND owner_id = $2`, jobID.String(), ownerID)
	if err != nil {
		return err
	}
	if err := requireRowAffected(res); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM flashcards WHERE job_id = $1`, jobID.String()); err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM export_artifacts WHERE job_id = $1`, jobID.String())
	return err
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FlashcardRepository handles flashcard CRUD operations.
type FlashcardRepository struct {
	db DB
}

// NewFlashcardRepository creates a new flashcard repository.
func NewFlashcardRepository(db DB) *FlashcardRepository {
	return &FlashcardRepository{db: db}
}

const flashcardColumns = `id, job_id, topic, term, definition, source, position, created_at`

func scanFlashcard(row interface {
	Scan(dest ...interface{}) error
}) (*Flashcard, error) {
	card := &Flashcard{}
	var id, jobID string
	err := row.Scan(&id, &jobID, &card.Topic, &card.Term, &card.Definition,
		&card.Source, &card.Position, &card.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if card.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse flashcard id: %w", err)
	}
	if card.JobID, err = uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("parse flashcard job id: %w", err)
	}
	return card, nil
}

// ListByJob lists a job's flashcards in stable position order.
func (r *FlashcardRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*Flashcard, error) {
	query := `SELECT ` + flashcardColumns + ` FROM flashcards
		WHERE job_id = $1 ORDER BY position, created_at`
	rows, err := r.db.QueryContext(ctx, query, jobID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*Flashcard
	for rows.Next() {
		card, err := scanFlashcard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// Get retrieves a single flashcard scoped to its job.
func (r *FlashcardRepository) Get(ctx context.Context, jobID, cardID uuid.UUID) (*Flashcard, error) {
	query := `SELECT ` + flashcardColumns + ` FROM flashcards WHERE id = $1 AND job_id = $2`
	return scanFlashcard(r.db.QueryRowContext(ctx, query, cardID.String(), jobID.String()))
}

// Create inserts a flashcard.
func (r *FlashcardRepository) Create(ctx context.Context, card *Flashcard) error {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	card.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO flashcards (id, job_id, topic, term, definition, source, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		card.ID.String(), card.JobID.String(), card.Topic, card.Term,
		card.Definition, card.Source, card.Position, card.CreatedAt,
	)
	return err
}

// Update rewrites the editable fields of a flashcard.
func (r *FlashcardRepository) Update(ctx context.Context, card *Flashcard) error {
	query := `
		UPDATE flashcards SET topic = $1, term = $2, definition = $3, position = $4
		WHERE id = $5 AND job_id = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		card.Topic, card.Term, card.Definition, card.Position,
		card.ID.String(), card.JobID.String(),
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// Delete removes a flashcard scoped to its job.
func (r *FlashcardRepository) Delete(ctx context.Context, jobID, cardID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM flashcards WHERE id = $1 AND job_id = $2`, cardID.String(), jobID.String())
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// ReplaceAISet atomically swaps the generated cards for a job: every card
// with source "ai" is deleted and the new batch inserted. Manual cards are
// untouched.
func (r *FlashcardRepository) ReplaceAISet(ctx context.Context, jobID uuid.UUID, cards []*Flashcard) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM flashcards WHERE job_id = $1 AND source = $2`,
		jobID.String(), FlashcardSourceAI); err != nil {
		return err
	}
	for _, card := range cards {
		card.JobID = jobID
		card.Source = FlashcardSourceAI
		if err := r.Create(ctx, card); err != nil {
			return err
		}
	}
	return nil
}

// ArtifactRepository handles export artifact records.
type ArtifactRepository struct {
	db DB
}

// NewArtifactRepository creates a new artifact repository.
func NewArtifactRepository(db DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Get retrieves the artifact record for a job and format.
func (r *ArtifactRepository) Get(ctx context.Context, jobID uuid.UUID, format ExportFormat) (*ExportArtifact, error) {
	query := `
		SELECT job_id, format, location, source_hash, created_at
		FROM export_artifacts WHERE job_id = $1 AND format = $2
	`
	art := &ExportArtifact{}
	var id string
	err := r.db.QueryRowContext(ctx, query, jobID.String(), format).Scan(
		&id, &art.Format, &art.Location, &art.SourceHash, &art.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if art.JobID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse artifact job id: %w", err)
	}
	return art, nil
}

// ListByJob lists all artifact records for a job.
func (r *ArtifactRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*ExportArtifact, error) {
	query := `
		SELECT job_id, format, location, source_hash, created_at
		FROM export_artifacts WHERE job_id = $1 ORDER BY format
	`
	rows, err := r.db.QueryContext(ctx, query, jobID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*ExportArtifact
	for rows.Next() {
		art := &ExportArtifact{}
		var id string
		if err := rows.Scan(&id, &art.Format, &art.Location, &art.SourceHash, &art.CreatedAt); err != nil {
			return nil, err
		}
		if art.JobID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse artifact job id: %w", err)
		}
		artifacts = append(artifacts, art)
	}
	return artifacts, rows.Err()
}

// Upsert inserts or replaces the artifact record for a job and format.
func (r *ArtifactRepository) Upsert(ctx context.Context, art *ExportArtifact) error {
	art.CreatedAt = time.Now().UTC()

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM export_artifacts WHERE job_id = $1 AND format = $2`,
		art.JobID.String(), art.Format); err != nil {
		return err
	}
	query := `
		INSERT INTO export_artifacts (job_id, format, location, source_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		art.JobID.String(), art.Format, art.Location, art.SourceHash, art.CreatedAt,
	)
	return err
}
