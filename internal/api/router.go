package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/radiotherm-homie/internal/homie"
)

// healthCheckTimeout bounds all component checks for one /health request.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/properties", s.handleListProperties)
		r.Get("/properties/{node}", s.handleListNodeProperties)
		r.Get("/properties/{node}/{property}", s.handleGetProperty)
	})

	return r
}

// handleHealth runs every component check. Any failure yields 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(s.checks)+1)
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	state := s.tree.State()
	components["homie"] = state
	if state != homie.StateReady {
		status = http.StatusServiceUnavailable
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	})
}

// propertiesResponse is the body of the property list endpoints.
type propertiesResponse struct {
	Device     string                `json:"device"`
	Name       string                `json:"name"`
	State      string                `json:"state"`
	Properties []homie.PropertyValue `json:"properties"`
}

func (s *Server) handleListProperties(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, propertiesResponse{
		Device:     s.tree.ID(),
		Name:       s.tree.Name(),
		State:      s.tree.State(),
		Properties: s.tree.Values(),
	})
}

func (s *Server) handleListNodeProperties(w http.ResponseWriter, r *http.Request) {
	node := chi.URLParam(r, "node")

	props := []homie.PropertyValue{}
	for _, pv := range s.tree.Values() {
		if pv.Node == node {
			props = append(props, pv)
		}
	}
	if len(props) == 0 {
		writeNotFound(w, "node not found")
		return
	}

	writeJSON(w, http.StatusOK, propertiesResponse{
		Device:     s.tree.ID(),
		Name:       s.tree.Name(),
		State:      s.tree.State(),
		Properties: props,
	})
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	node := chi.URLParam(r, "node")
	property := chi.URLParam(r, "property")

	for _, pv := range s.tree.Values() {
		if pv.Node == node && pv.Property == property {
			writeJSON(w, http.StatusOK, pv)
			return
		}
	}
	writeNotFound(w, "property not found")
}
