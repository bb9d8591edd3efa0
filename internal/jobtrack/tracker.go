// Package jobtrack owns the job state machine. Every status or progress
// mutation goes through the Tracker so the transition rules hold no matter
// which component reports.
package jobtrack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/internal/events"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// Errors returned by cancellation requests.
var (
	ErrInvalidState    = errors.New("job is not in a cancellable state")
	ErrTerminalFailure = errors.New("job already failed")
)

// JobStore is the persistence surface the tracker needs.
type JobStore interface {
	Get(ctx context.Context, jobID uuid.UUID) (*storage.Job, error)
	GetByOwner(ctx context.Context, ownerID string, jobID uuid.UUID) (*storage.Job, error)
	GetStatus(ctx context.Context, jobID uuid.UUID) (storage.JobStatus, error)
	UpdateState(ctx context.Context, jobID uuid.UUID, status storage.JobStatus, progress int, message string) error
}

// Tracker coordinates status and progress updates for jobs.
type Tracker struct {
	jobs   JobStore
	bus    events.Bus
	logger *observability.Logger
}

// NewTracker creates a tracker over the given store and event bus.
func NewTracker(jobs JobStore, bus events.Bus, logger *observability.Logger) *Tracker {
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Tracker{jobs: jobs, bus: bus, logger: logger}
}

// Transition advances a job's progress and optionally its status. Progress
// never moves backwards, and a job observed in any terminal state is left
// untouched, so a worker racing a cancel request cannot resurrect the job.
func (t *Tracker) Transition(ctx context.Context, jobID uuid.UUID, progress int, message string, status *storage.JobStatus) error {
	job, err := t.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job for transition: %w", err)
	}

	if job.Status.IsTerminal() {
		return nil
	}

	next := job.Status
	if status != nil {
		next = *status
	}

	if progress < job.Progress {
		progress = job.Progress
	}
	if progress > 100 {
		progress = 100
	}
	if message == "" {
		message = job.ProgressMessage
	}

	if err := t.jobs.UpdateState(ctx, jobID, next, progress, message); err != nil {
		return fmt.Errorf("persist transition: %w", err)
	}

	t.publish(ctx, job.OwnerID, jobID, next, progress, message)
	return nil
}

// RequestCancel marks a processing job as cancelled and resets its progress
// to zero. Only PROCESSING jobs are cancellable: pending jobs have not been
// picked up, and terminal jobs cannot change.
func (t *Tracker) RequestCancel(ctx context.Context, ownerID string, jobID uuid.UUID) error {
	job, err := t.jobs.GetByOwner(ctx, ownerID, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case storage.JobStatusProcessing:
	case storage.JobStatusError:
		return ErrTerminalFailure
	default:
		return ErrInvalidState
	}

	if err := t.jobs.UpdateState(ctx, jobID, storage.JobStatusCancelled, 0, "Cancelled by user"); err != nil {
		return fmt.Errorf("persist cancellation: %w", err)
	}

	t.logger.WithJob(jobID.String()).Info().Msg("job cancelled")
	t.publish(ctx, ownerID, jobID, storage.JobStatusCancelled, 0, "Cancelled by user")
	return nil
}

// CheckCancelled re-reads the persisted status so a worker goroutine can
// observe a cancel written by another request. On read failure it reports
// not-cancelled and lets the next checkpoint retry.
func (t *Tracker) CheckCancelled(ctx context.Context, jobID uuid.UUID) bool {
	status, err := t.jobs.GetStatus(ctx, jobID)
	if err != nil {
		t.logger.WithJob(jobID.String()).Warn().Err(err).Msg("cancellation check failed")
		return false
	}
	return status == storage.JobStatusCancelled
}

// MarkError moves a job to the error state with progress zero, unless it was
// already cancelled. Cancellation takes precedence over errors surfacing
// afterwards.
func (t *Tracker) MarkError(ctx context.Context, jobID uuid.UUID, cause error) {
	job, err := t.jobs.Get(ctx, jobID)
	if err != nil {
		t.logger.WithJob(jobID.String()).Error().Err(err).Msg("load job for error mark failed")
		return
	}
	if job.Status.IsTerminal() {
		return
	}

	message := "Processing failed"
	if cause != nil {
		message = fmt.Sprintf("Processing failed: %v", cause)
	}
	if err := t.jobs.UpdateState(ctx, jobID, storage.JobStatusError, 0, message); err != nil {
		t.logger.WithJob(jobID.String()).Error().Err(err).Msg("persist error state failed")
		return
	}

	t.logger.WithJob(jobID.String()).Error().Err(cause).Msg("job failed")
	t.publish(ctx, job.OwnerID, jobID, storage.JobStatusError, 0, message)
}

func (t *Tracker) publish(ctx context.Context, ownerID string, jobID uuid.UUID, status storage.JobStatus, progress int, message string) {
	if t.bus == nil {
		return
	}
	evt := events.ProgressEvent{
		JobID:    jobID.String(),
		OwnerID:  ownerID,
		Status:   string(status),
		Progress: progress,
		Message:  message,
		At:       time.Now().UTC(),
	}
	if err := t.bus.PublishProgress(ctx, evt); err != nil {
		t.logger.WithJob(jobID.String()).Warn().Err(err).Msg("progress event publish failed")
	}
}
