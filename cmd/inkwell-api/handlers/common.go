// Package handlers provides HTTP handlers for the Inkwell API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/inkwell-ai/inkwell/internal/jobtrack"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// ErrorDTO is the error response body.
type ErrorDTO struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, ErrorDTO{Error: message, Detail: detail})
}

// writeDomainError maps well-known errors to status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", "")
	case errors.Is(err, jobtrack.ErrInvalidState):
		writeError(w, http.StatusConflict, "job is not in a cancellable state", "")
	case errors.Is(err, jobtrack.ErrTerminalFailure):
		writeError(w, http.StatusConflict, "job already failed", "")
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// JobDTO is the API representation of a job.
type JobDTO struct {
	ID              string          `json:"id"`
	Title           *string         `json:"title,omitempty"`
	InputType       string          `json:"inputType"`
	Status          string          `json:"status"`
	Progress        int             `json:"progress"`
	ProgressMessage string          `json:"progressMessage"`
	Settings        json.RawMessage `json:"settings"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func toJobDTO(job *storage.Job) JobDTO {
	return JobDTO{
		ID:              job.ID.String(),
		Title:           job.Title,
		InputType:       string(job.InputType),
		Status:          string(job.Status),
		Progress:        job.Progress,
		ProgressMessage: job.ProgressMessage,
		Settings:        job.Settings,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

// FlashcardDTO is the API representation of a flashcard.
type FlashcardDTO struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Source     string `json:"source"`
	Position   int    `json:"position"`
}

func toFlashcardDTO(card *storage.Flashcard) FlashcardDTO {
	return FlashcardDTO{
		ID:         card.ID.String(),
		Topic:      card.Topic,
		Term:       card.Term,
		Definition: card.Definition,
		Source:     string(card.Source),
		Position:   card.Position,
	}
}
