package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/wolf-bridge/internal/audit"
	"github.com/nerrad567/wolf-bridge/internal/device"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/status/{parent}", s.handleStatusGroup)
		r.Get("/parameters", s.handleListParameters)
		r.Get("/writes", s.handleListWrites)
	})

	if s.panel != nil {
		r.Handle("/*", s.panel)
	}

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.mqtt != nil {
		body["mqtt_connected"] = s.mqtt.IsConnected()
	}
	if updated := s.snapshots.UpdatedAt(); !updated.IsZero() {
		body["last_update"] = updated.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, body)
}

// handleStatus returns the latest status in the same shape as the MQTT
// status message.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status, ok := s.snapshots.Status()
	if !ok {
		writeNotFound(w, "no status fetched yet")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleStatusGroup returns one parent group of the latest status.
func (s *Server) handleStatusGroup(w http.ResponseWriter, r *http.Request) {
	status, ok := s.snapshots.Status()
	if !ok {
		writeNotFound(w, "no status fetched yet")
		return
	}

	parent := chi.URLParam(r, "parent")
	group, ok := status.Groups[parent]
	if !ok {
		writeNotFound(w, "unknown group "+strconv.Quote(parent))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"parent": parent,
		"values": group,
		"time":   status.Time.Format(device.StatusTimeLayout),
	})
}

// handleListParameters returns the parameter catalog.
//
// Query parameters:
//   - parent: only parameters of this group
//   - writable: "true" hides read-only parameters
func (s *Server) handleListParameters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	parent := q.Get("parent")
	writable := q.Get("writable") == "true"

	params := []device.Parameter{}
	for _, p := range s.snapshots.Parameters() {
		if parent != "" && p.Parent != parent {
			continue
		}
		if writable && p.ReadOnly {
			continue
		}
		params = append(params, p)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"parameters": params,
		"count":      len(params),
	})
}

// handleListWrites returns paginated write journal entries.
//
// Query parameters:
//   - name: filter by parameter name
//   - source: filter by source (cli, mqtt)
//   - outcome: filter by outcome (ok, skipped, failed)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListWrites(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "write journal not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Name:    q.Get("name"),
		Source:  q.Get("source"),
		Outcome: q.Get("outcome"),
	}

	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, key+" must be an integer")
			return
		}
		*dst = n
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list write journal", "error", err)
		writeInternalError(w, "failed to list write journal")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
