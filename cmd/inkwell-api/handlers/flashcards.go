package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/cmd/inkwell-api/middleware"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/pipeline"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// FlashcardsHandler handles manual flashcard CRUD.
type FlashcardsHandler struct {
	logger       *observability.Logger
	orchestrator *pipeline.Orchestrator
	cards        *storage.FlashcardRepository
}

// NewFlashcardsHandler creates a new flashcards handler.
func NewFlashcardsHandler(logger *observability.Logger, orchestrator *pipeline.Orchestrator, cards *storage.FlashcardRepository) *FlashcardsHandler {
	return &FlashcardsHandler{logger: logger, orchestrator: orchestrator, cards: cards}
}

// ownedJob resolves the job while enforcing ownership. A nil return means
// the response was already written.
func (h *FlashcardsHandler) ownedJob(w http.ResponseWriter, r *http.Request) *storage.Job {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return nil
	}
	job, err := h.orchestrator.GetJob(r.Context(), middleware.OwnerFromContext(r.Context()), jobID)
	if err != nil {
		writeDomainError(w, err)
		return nil
	}
	return job
}

// List handles GET /jobs/{jobID}/flashcards.
func (h *FlashcardsHandler) List(w http.ResponseWriter, r *http.Request) {
	job := h.ownedJob(w, r)
	if job == nil {
		return
	}

	cards, err := h.cards.ListByJob(r.Context(), job.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]FlashcardDTO, 0, len(cards))
	for _, card := range cards {
		dtos = append(dtos, toFlashcardDTO(card))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CardRequestDTO represents a manual card create or update.
type CardRequestDTO struct {
	Topic      string `json:"topic"`
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Position   *int   `json:"position,omitempty"`
}

func (d *CardRequestDTO) validate() string {
	if strings.TrimSpace(d.Term) == "" {
		return "term is required"
	}
	if strings.TrimSpace(d.Definition) == "" {
		return "definition is required"
	}
	return ""
}

// Create handles POST /jobs/{jobID}/flashcards. Created cards are always
// manual and survive AI regeneration.
func (h *FlashcardsHandler) Create(w http.ResponseWriter, r *http.Request) {
	job := h.ownedJob(w, r)
	if job == nil {
		return
	}

	var reqDTO CardRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if msg := reqDTO.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg, "")
		return
	}

	card := &storage.Flashcard{
		JobID:      job.ID,
		Topic:      strings.TrimSpace(reqDTO.Topic),
		Term:       strings.TrimSpace(reqDTO.Term),
		Definition: strings.TrimSpace(reqDTO.Definition),
		Source:     storage.FlashcardSourceManual,
	}
	if reqDTO.Position != nil {
		card.Position = *reqDTO.Position
	}

	if err := h.cards.Create(r.Context(), card); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFlashcardDTO(card))
}

// Update handles PUT /jobs/{jobID}/flashcards/{cardID}.
func (h *FlashcardsHandler) Update(w http.ResponseWriter, r *http.Request) {
	job := h.ownedJob(w, r)
	if job == nil {
		return
	}
	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id", "")
		return
	}

	var reqDTO CardRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if msg := reqDTO.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg, "")
		return
	}

	card, err := h.cards.Get(r.Context(), job.ID, cardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	card.Topic = strings.TrimSpace(reqDTO.Topic)
	card.Term = strings.TrimSpace(reqDTO.Term)
	card.Definition = strings.TrimSpace(reqDTO.Definition)
	if reqDTO.Position != nil {
		card.Position = *reqDTO.Position
	}

	if err := h.cards.Update(r.Context(), card); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFlashcardDTO(card))
}

// Delete handles DELETE /jobs/{jobID}/flashcards/{cardID}.
func (h *FlashcardsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	job := h.ownedJob(w, r)
	if job == nil {
		return
	}
	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card id", "")
		return
	}

	if err := h.cards.Delete(r.Context(), job.ID, cardID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
