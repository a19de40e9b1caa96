package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/finauto/internal/finauto"
)

type processRequest struct {
	AutomationID string `json:"automation_id"`
}

// processAutomations runs a sweep, or one automation when the body names it.
// POST /api/automations/process
func (s *Server) processAutomations(w http.ResponseWriter, r *http.Request) {
	inv := finauto.Scheduled()

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if id := strings.TrimSpace(req.AutomationID); id != "" {
		inv = finauto.Manual(id)
	}

	s.invoke(w, r, inv)
}

// runAutomation runs one automation now, ignoring its schedule.
// POST /api/automations/{id}/run
func (s *Server) runAutomation(w http.ResponseWriter, r *http.Request) {
	s.invoke(w, r, finauto.Manual(chi.URLParam(r, "id")))
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, inv finauto.Invocation) {
	slog.Info("api: invocation requested", "mode", inv.Mode, "automation", inv.AutomationID, "subject", Subject(r.Context()))
	sum, err := s.processor.Process(r.Context(), inv)
	if err != nil {
		slog.Error("api: process failed", "mode", inv.Mode, "automation", inv.AutomationID, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sum.Message != "" {
		writeJSON(w, http.StatusOK, map[string]any{"processed": 0, "message": sum.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"processed": sum.Processed,
		"failed":    sum.Failed,
		"total":     sum.Total,
	})
}
