// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memvault Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/memvault-dev/memvault/internal/config"
	"github.com/memvault-dev/memvault/pkg/health"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Database health",
		Description: "Opens a read-only handle and reports engine settings. Responds 503 when the database cannot be opened.",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/api/v1/config",
		Summary:     "Resolved tuning and write switch",
		Tags:        []string{"system"},
	}, s.handleConfig)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-maintenance",
		Method:      http.MethodGet,
		Path:        "/api/v1/maintenance",
		Summary:     "Maintenance action outcomes",
		Description: "Runs, failures and last timestamps per maintenance action since the process started.",
		Tags:        []string{"system"},
	}, s.handleMaintenance)
}

// --- Request/Response types for huma ---

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status   string         `json:"status" example:"ok" doc:"ok or unavailable"`
	Database map[string]any `json:"database" doc:"Backend health report"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Status int
	Body   HealthBody
}

type configOutput struct {
	Body struct {
		Version       string        `json:"version"`
		WritesEnabled bool          `json:"writes_enabled" doc:"Live value of the global write switch"`
		Tuning        config.Tuning `json:"tuning"`
	}
}

type maintenanceOutput struct {
	Body struct {
		Healthy bool                     `json:"healthy" doc:"False when any action's latest run failed"`
		Actions map[string]health.Status `json:"actions"`
	}
}

func (s *Server) handleHealth(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
	report := s.deps.Health.Health(ctx)

	resp := &HealthResponse{Status: http.StatusOK, Body: HealthBody{Status: "ok", Database: report}}
	if ok, _ := report["ok"].(bool); !ok {
		s.deps.Logger.Warn("health check failed", "error", report["error"])
		resp.Status = http.StatusServiceUnavailable
		resp.Body.Status = "unavailable"
	}
	return resp, nil
}

func (s *Server) handleConfig(_ context.Context, _ *struct{}) (*configOutput, error) {
	out := &configOutput{}
	out.Body.Version = s.cfg.Version
	out.Body.WritesEnabled = s.deps.Writes.WritesEnabled()
	out.Body.Tuning = s.deps.Tuning
	return out, nil
}

func (s *Server) handleMaintenance(_ context.Context, _ *struct{}) (*maintenanceOutput, error) {
	out := &maintenanceOutput{}
	out.Body.Healthy = true
	out.Body.Actions = map[string]health.Status{}
	if s.deps.Maintenance == nil {
		return out, nil
	}
	for name, st := range s.deps.Maintenance.Status() {
		out.Body.Actions[name] = st
		if !st.Healthy() {
			out.Body.Healthy = false
		}
	}
	return out, nil
}
