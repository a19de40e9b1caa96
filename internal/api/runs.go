package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// listAutomationRuns returns the runs of one automation, newest first.
// GET /api/automations/{id}/runs?limit=20&offset=0
func (s *Server) listAutomationRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []any{}, "total": 0})
		return
	}

	id := chi.URLParam(r, "id")
	limit, offset := parsePagination(r)

	runs, total, err := s.runs.ListRuns(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []any{}, "total": total})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
	})
}

func parsePagination(r *http.Request) (int, int) {
	limit := 20
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
