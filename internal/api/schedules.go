package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/soochol/finauto/internal/finauto"
	"github.com/soochol/finauto/internal/schedule"
)

const (
	defaultPreviewCount = 5
	maxPreviewCount     = 20
)

// previewSchedule returns the next fire instants of a schedule spec, using
// the same resolver the orchestrator advances schedules with.
// POST /api/schedules/preview?count=5
func (s *Server) previewSchedule(w http.ResponseWriter, r *http.Request) {
	var spec finauto.ScheduleSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule: "+err.Error())
		return
	}
	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	count := defaultPreviewCount
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = min(n, maxPreviewCount)
	}

	runs := firing(spec, schedule.Upcoming(spec, s.now(), count))
	writeJSON(w, http.StatusOK, map[string]any{
		"timezone":  schedule.ResolveLocation(spec.Timezone).String(),
		"next_runs": runs,
		"retires":   len(runs) < count,
	})
}

// firing trims candidate instants to those a new automation would actually
// run at before its duration policy retires it.
func firing(spec finauto.ScheduleSpec, candidates []time.Time) []time.Time {
	var state finauto.ScheduleState
	out := make([]time.Time, 0, len(candidates))
	for _, at := range candidates {
		if schedule.Expired(spec, state, at) {
			break
		}
		out = append(out, at)
		state.RunsCompleted++
	}
	return out
}
