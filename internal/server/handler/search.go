package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/server/middleware"
)

// SearchService defines the methods that the search handler requires from
// the service layer.
type SearchService interface {
	Search(ctx context.Context, query string) ([]domain.CoinQuote, error)
	CoinDetail(ctx context.Context, id string) (domain.CoinDetail, error)
	Select(ctx context.Context, owner, keyword string) (string, error)
	History(ctx context.Context, owner string) ([]string, error)
	ClearHistory(ctx context.Context, owner string) error
}

// SearchHandler serves coin search and the per-session keyword history.
type SearchHandler struct {
	search SearchService
	logger *slog.Logger
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(search SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: logHandler(logger, "search")}
}

// Search looks coins up by name or ticker.
// GET /api/coins/search?query=eth
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	coins, err := h.search.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "coin search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coins": coins})
}

// Coin returns the detail of one coin.
// GET /api/coins/{id}
func (h *SearchHandler) Coin(w http.ResponseWriter, r *http.Request) {
	detail, err := h.search.CoinDetail(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to get coin")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// History lists the session's search keywords, newest first.
// GET /api/search/history
func (h *SearchHandler) History(w http.ResponseWriter, r *http.Request) {
	keywords, err := h.search.History(r.Context(), middleware.SessionID(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list search history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keywords": keywords})
}

type selectRequest struct {
	Keyword string `json:"keyword"`
}

// Select records a keyword and returns the pair symbol it resolves to.
// POST /api/search/history
func (h *SearchHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	symbol, err := h.search.Select(r.Context(), middleware.SessionID(r), req.Keyword)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to record search")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"keyword": req.Keyword, "symbol": symbol})
}

// Clear forgets the session's search keywords.
// DELETE /api/search/history
func (h *SearchHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.search.ClearHistory(r.Context(), middleware.SessionID(r)); err != nil {
		writeDomainError(w, r, h.logger, err, "failed to clear search history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
