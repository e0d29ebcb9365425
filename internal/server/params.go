package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fleetgrid/fleetgrid/internal/routing"
	"github.com/fleetgrid/fleetgrid/modules/fleet/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "invalid_json", "invalid json")
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, template string) (int64, bool) {
	raw, ok := routing.PathParam(r.URL.Path, template, "id")
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusNotFound, "not_found", "not found")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusUnprocessableEntity, "invalid_id", "invalid id")
		return 0, false
	}
	return id, true
}

// streamQueryFromRequest parses the three listing parameters every
// state-stream endpoint exposes: since, last_n and wait with timeout_ms.
func streamQueryFromRequest(r *http.Request) services.StreamQuery {
	q := r.URL.Query()
	sq := services.StreamQuery{}
	if v, err := strconv.ParseInt(q.Get("since"), 10, 64); err == nil && v > 0 {
		sq.Since = v
	}
	if v, err := strconv.Atoi(q.Get("last_n")); err == nil && v > 0 {
		sq.LastN = v
	}
	if q.Get("wait") == "true" || q.Get("wait") == "1" {
		sq.Wait = true
	}
	if v, err := strconv.Atoi(q.Get("timeout_ms")); err == nil && v > 0 {
		sq.Timeout = time.Duration(v) * time.Millisecond
	}
	return sq
}
