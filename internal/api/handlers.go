package api

import (
	"context"
	"encoding/json"
	"net/http"

	"reldiff/internal/errors"
	"reldiff/internal/logging"
	"reldiff/internal/release"
	"reldiff/internal/validation"
	"reldiff/shared/types"

	"go.uber.org/zap"
)

// Computer produces release diffs.
type Computer interface {
	Compute(ctx context.Context, req release.Request) (*release.Result, error)
}

// Archive stores generated diffs.
type Archive interface {
	Save(ctx context.Context, res *release.Result) (*types.DiffReport, error)
	Get(ctx context.Context, id string) (*types.DiffReport, error)
	List(ctx context.Context) ([]types.DiffSummary, error)
}

type DiffHandler struct {
	computer Computer
	archive  Archive
	logger   *logging.Logger
}

func NewDiffHandler(computer Computer, archive Archive, logger *logging.Logger) *DiffHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DiffHandler{
		computer: computer,
		archive:  archive,
		logger:   logger,
	}
}

// Register mounts the diff routes on mux.
func (h *DiffHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", Health)
	mux.HandleFunc("POST /api/diffs", h.Create)
	mux.HandleFunc("GET /api/diffs", h.List)
	mux.HandleFunc("GET /api/diffs/{id}", h.Get)
	mux.HandleFunc("GET /api/diffs/{id}/patch", h.Patch)
}

func (h *DiffHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := validation.ValidateDiffRequest(w, r)
	if err != nil {
		errors.Write(w, err)
		return
	}

	res, err := h.computer.Compute(r.Context(), *req)
	if err != nil {
		h.logger.WithRequestID(r.Context()).Info("diff failed",
			zap.String("repository", req.RepoPath),
			zap.String("head", req.Head),
			zap.Error(err),
		)
		errors.Write(w, err)
		return
	}

	report, err := h.archive.Save(r.Context(), res)
	if err != nil {
		errors.Write(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

func (h *DiffHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.archive.List(r.Context())
	if err != nil {
		errors.Write(w, err)
		return
	}
	if summaries == nil {
		summaries = []types.DiffSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *DiffHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.archive.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Patch serves the diff text alone.
func (h *DiffHandler) Patch(w http.ResponseWriter, r *http.Request) {
	report, err := h.archive.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-diff; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(report.Text))
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
