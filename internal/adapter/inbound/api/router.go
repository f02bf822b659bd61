// Package api implements the versioned management REST surface consumed
// by operator tooling: status_snapshot, capabilities_snapshot, events_tail,
// reload, and reconnect(name), each a thin JSON wrapper around the
// internal/gateway facade (distilled §6 "Management observation surface").
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/diaz3618/mcp-sentinel/internal/domain/audit"
	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/gateway"
)

const requestTimeout = 30 * time.Second

// NewRouter builds the chi router mounted at /api/v1 by the cmd entrypoint.
// It talks only to gw's exported fields and methods — it never reaches
// into a service package directly.
func NewRouter(gw *gateway.Gateway) http.Handler {
	routes := &routes{gw: gw}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Timeout(requestTimeout), jsonContentType)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", routes.getStatus)
		r.Get("/capabilities", routes.getCapabilities)
		r.Get("/events", routes.getEvents)
		r.Post("/reload", routes.postReload)
		r.Post("/backends/{name}/reconnect", routes.postReconnect)
	})

	return r
}

type routes struct {
	gw *gateway.Gateway
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusResponse is status_snapshot(): aggregate per-backend state.
type statusResponse struct {
	Backends []backend.StatusRecord `json:"backends"`
}

func (rt *routes) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Backends: rt.gw.Manager.Snapshot()})
}

// capabilitiesResponse is capabilities_snapshot(filters): the currently
// published route map's flat catalog, filtered by kind/backend if given.
type capabilitiesResponse struct {
	BuiltAt      time.Time          `json:"built_at"`
	Capabilities []capability.Record `json:"capabilities"`
}

func (rt *routes) getCapabilities(w http.ResponseWriter, r *http.Request) {
	kindFilter := capability.Kind(r.URL.Query().Get("kind"))
	backendFilter := r.URL.Query().Get("backend")

	snap := rt.gw.Registry.Current()
	out := make([]capability.Record, 0, len(snap.Catalog))
	for _, rec := range snap.Catalog {
		if kindFilter != "" && rec.Kind != kindFilter {
			continue
		}
		if backendFilter != "" && rec.Backend != backendFilter {
			continue
		}
		out = append(out, rec)
	}

	writeJSON(w, http.StatusOK, capabilitiesResponse{BuiltAt: snap.BuiltAt, Capabilities: out})
}

// eventsResponse is events_tail(since, max): recent audit events.
type eventsResponse struct {
	Events []audit.Event `json:"events"`
}

func (rt *routes) getEvents(w http.ResponseWriter, r *http.Request) {
	max := 100
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		max = n
	}

	events := rt.gw.AuditSink.Tail(max)

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filtered := make([]audit.Event, 0, len(events))
		for _, ev := range events {
			if ev.Timestamp.After(since) {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (rt *routes) postReload(w http.ResponseWriter, r *http.Request) {
	report, err := rt.gw.ReloadConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// reconnectResponse is reconnect(name): success flag plus new phase.
type reconnectResponse struct {
	Name    string        `json:"name"`
	Success bool          `json:"success"`
	Phase   backend.Phase `json:"phase"`
	Error   string        `json:"error,omitempty"`
}

func (rt *routes) postReconnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	resp := reconnectResponse{Name: name}
	if err := rt.gw.Manager.Reconnect(name); err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusNotFound, resp)
		return
	}
	resp.Success = true

	for _, rec := range rt.gw.Manager.Snapshot() {
		if rec.Name == name {
			resp.Phase = rec.Phase
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
