package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/cmd/inkwell-api/middleware"
	"github.com/inkwell-ai/inkwell/internal/normalize"
	"github.com/inkwell-ai/inkwell/internal/objstore"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/pipeline"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// JobsHandler handles job submission and lifecycle requests.
type JobsHandler struct {
	logger         *observability.Logger
	orchestrator   *pipeline.Orchestrator
	objects        objstore.Store
	maxUploadBytes int64
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(logger *observability.Logger, orchestrator *pipeline.Orchestrator, objects objstore.Store, maxUploadBytes int64) *JobsHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &JobsHandler{
		logger:         logger,
		orchestrator:   orchestrator,
		objects:        objects,
		maxUploadBytes: maxUploadBytes,
	}
}

// SubmitRequestDTO represents a text submission.
type SubmitRequestDTO struct {
	Title    string                     `json:"title,omitempty"`
	Text     string                     `json:"text"`
	Settings storage.ProcessingSettings `json:"settings"`
}

// Submit handles POST /jobs.
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO SubmitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(reqDTO.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required", "")
		return
	}

	job, err := h.orchestrator.Submit(ctx, pipeline.Submission{
		OwnerID:  middleware.OwnerFromContext(ctx),
		Title:    reqDTO.Title,
		Input:    normalize.Input{Text: reqDTO.Text},
		Settings: reqDTO.Settings,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("job submission failed")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toJobDTO(job))
}

// SubmitUpload handles POST /jobs/upload with multipart image or PDF files.
func (h *JobsHandler) SubmitUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.OwnerFromContext(ctx)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}

	var settings storage.ProcessingSettings
	if raw := r.FormValue("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings", err.Error())
			return
		}
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required", "")
		return
	}

	uploadID := uuid.New().String()
	input := normalize.Input{}
	for i, header := range files {
		file, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file", err.Error())
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes))
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file", err.Error())
			return
		}

		ext := strings.ToLower(filepath.Ext(header.Filename))
		key := "uploads/" + uploadID + "/" + uuid.New().String() + ext
		if err := h.objects.Upload(key, data); err != nil {
			h.logger.Error().Err(err).Msg("upload store failed")
			writeError(w, http.StatusInternalServerError, "upload failed", "")
			return
		}

		if ext == ".pdf" {
			if i > 0 || len(files) > 1 {
				writeError(w, http.StatusBadRequest, "a pdf submission must be a single file", "")
				return
			}
			input.PDFKey = key
		} else {
			input.ImageKeys = append(input.ImageKeys, key)
		}
	}

	job, err := h.orchestrator.Submit(ctx, pipeline.Submission{
		OwnerID:  ownerID,
		Title:    r.FormValue("title"),
		Input:    input,
		Settings: settings,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("job submission failed")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toJobDTO(job))
}

// List handles GET /jobs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobs, err := h.orchestrator.ListJobs(ctx, middleware.OwnerFromContext(ctx))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]JobDTO, 0, len(jobs))
	for _, job := range jobs {
		dtos = append(dtos, toJobDTO(job))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Get handles GET /jobs/{jobID}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}

	job, err := h.orchestrator.GetJob(ctx, middleware.OwnerFromContext(ctx), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDTO(job))
}

// ResultDTO is the completed job payload.
type ResultDTO struct {
	JobDTO
	InputText    *string `json:"inputText,omitempty"`
	EnhancedText *string `json:"enhancedText,omitempty"`
}

// Result handles GET /jobs/{jobID}/result.
func (h *JobsHandler) Result(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}

	job, err := h.orchestrator.GetJob(ctx, middleware.OwnerFromContext(ctx), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if job.Status != storage.JobStatusCompleted {
		writeError(w, http.StatusConflict, "job is not completed", string(job.Status))
		return
	}

	writeJSON(w, http.StatusOK, ResultDTO{
		JobDTO:       toJobDTO(job),
		InputText:    job.InputText,
		EnhancedText: job.EnhancedText,
	})
}

// Cancel handles POST /jobs/{jobID}/cancel.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}

	if err := h.orchestrator.Cancel(ctx, middleware.OwnerFromContext(ctx), jobID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(storage.JobStatusCancelled)})
}

// Delete handles DELETE /jobs/{jobID}.
func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}

	if err := h.orchestrator.Delete(ctx, middleware.OwnerFromContext(ctx), jobID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameRequestDTO represents a title update.
type RenameRequestDTO struct {
	Title string `json:"title"`
}

// Rename handles PATCH /jobs/{jobID}.
func (h *JobsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}

	var reqDTO RenameRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(reqDTO.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required", "")
		return
	}

	if err := h.orchestrator.Rename(ctx, middleware.OwnerFromContext(ctx), jobID, reqDTO.Title); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
