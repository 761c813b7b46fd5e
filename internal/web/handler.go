package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/semvault/semvault/internal/index"
	"github.com/semvault/semvault/internal/search"
	"github.com/semvault/semvault/internal/version"
)

// Handler handles JSON API requests.
type Handler struct {
	server *Server
}

// NewHandler creates a Handler bound to the server.
func NewHandler(s *Server) *Handler {
	return &Handler{server: s}
}

// Search handles GET /api/search?q=...&k=...
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	opts := h.server.config.SearchOpts
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		if k, err := strconv.Atoi(kStr); err == nil && k > 0 {
			opts.TopK = k
		}
	}

	table, err := h.server.config.TableProvider()
	if err != nil {
		h.server.logger.Error("table load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	searcher := search.NewSearcher(table, search.WithLogger(h.server.logger))
	results, err := searcher.Search(query, h.server.Index(), opts)
	if err != nil {
		h.server.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
	})
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	idx := h.server.Index()
	status := map[string]any{
		"version": version.Short(),
		"indexed": false,
	}
	if table, err := h.server.config.TableProvider(); err == nil {
		status["table_words"] = table.Len()
		status["table_dimension"] = table.Dim()
	}
	if idx != nil {
		status["indexed"] = true
		status["items"] = len(idx.Items)
		status["strategy"] = idx.Strategy
		status["built_at"] = idx.BuiltAt
		status["has_principal_component"] = idx.Principal != nil
	}
	writeJSON(w, http.StatusOK, status)
}

// Rebuild handles POST /api/rebuild
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	idx, err := h.server.Rebuild(r.Context())
	if err != nil {
		if errors.Is(err, index.ErrBuildInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.server.logger.Error("rebuild failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":    len(idx.Items),
		"strategy": idx.Strategy,
		"built_at": idx.BuiltAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
