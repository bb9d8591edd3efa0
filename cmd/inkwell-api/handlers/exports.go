package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/cmd/inkwell-api/middleware"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/pipeline"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// ExportsHandler serves and regenerates export artifacts.
type ExportsHandler struct {
	logger       *observability.Logger
	orchestrator *pipeline.Orchestrator
}

// NewExportsHandler creates a new exports handler.
func NewExportsHandler(logger *observability.Logger, orchestrator *pipeline.Orchestrator) *ExportsHandler {
	return &ExportsHandler{logger: logger, orchestrator: orchestrator}
}

var exportContentTypes = map[storage.ExportFormat]string{
	storage.ExportFormatPDF:  "application/pdf",
	storage.ExportFormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	storage.ExportFormatTXT:  "text/plain; charset=utf-8",
}

// Download handles GET /jobs/{jobID}/exports/{format}.
func (h *ExportsHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}
	format, err := storage.ParseExportFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid export format", err.Error())
		return
	}

	_, data, err := h.orchestrator.FetchExport(ctx, middleware.OwnerFromContext(ctx), jobID, format)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", exportContentTypes[format])
	w.Header().Set("Content-Disposition", `attachment; filename="notes.`+string(format)+`"`)
	w.Write(data)
}

// ArtifactDTO is the API representation of an export artifact.
type ArtifactDTO struct {
	Format    string `json:"format"`
	Location  string `json:"location"`
	CreatedAt string `json:"createdAt"`
}

// Regenerate handles POST /jobs/{jobID}/exports/{format}. The force query
// parameter skips the freshness check.
func (h *ExportsHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}
	format, err := storage.ParseExportFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid export format", err.Error())
		return
	}
	force := r.URL.Query().Get("force") == "true"

	art, err := h.orchestrator.RegenerateExport(ctx, middleware.OwnerFromContext(ctx), jobID, format, force)
	if err != nil {
		h.logger.Error().Err(err).Str("format", string(format)).Msg("export regeneration failed")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ArtifactDTO{
		Format:    string(art.Format),
		Location:  art.Location,
		CreatedAt: art.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}
