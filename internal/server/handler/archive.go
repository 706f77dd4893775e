package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/pipeline"
)

// ArchivePrefix is the object-storage prefix archive files live under.
const ArchivePrefix = "archive/"

// ArchiveLister lists archive objects.
type ArchiveLister interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// ArchiveRunner runs one archive pass on demand.
type ArchiveRunner interface {
	Run(ctx context.Context) (pipeline.RunResult, error)
}

// ArchiveHandler serves the cold-storage endpoints.
type ArchiveHandler struct {
	blobs  ArchiveLister
	runner ArchiveRunner
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. runner may be nil, in which
// case on-demand runs are refused.
func NewArchiveHandler(blobs ArchiveLister, runner ArchiveRunner, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, runner: runner, logger: logHandler(logger, "archive")}
}

// List returns the archive objects, optionally narrowed to one kind.
// GET /api/archives?kind=orders
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := ArchivePrefix
	if kind := r.URL.Query().Get("kind"); kind != "" {
		prefix += kind + "/"
	}
	objects, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list archives")
		return
	}
	if objects == nil {
		objects = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": objects})
}

// Run archives expired history immediately.
// POST /api/archives/run
func (h *ArchiveHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusNotImplemented, "archive job is not enabled")
		return
	}
	h.logger.InfoContext(r.Context(), "archive run requested")
	res, err := h.runner.Run(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err, "archive run failed")
		return
	}
	status := http.StatusOK
	if res.Skipped {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}
