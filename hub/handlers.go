// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"clouddeck/hub/connectors/base"
	"clouddeck/hub/connectors/registry"
	"clouddeck/hub/refresh"
	"clouddeck/hub/shared/logger"
	"clouddeck/hub/store"
)

// Prometheus metrics for the integrations API
var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clouddeck_api_requests_total",
			Help: "Total number of integrations API requests",
		},
		[]string{"endpoint", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clouddeck_api_request_duration_seconds",
			Help:    "Duration of integrations API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

// Handlers exposes the integrations API over the registry, the refresh
// orchestrator and the sync engine.
type Handlers struct {
	reg        *registry.Registry
	orch       *refresh.Orchestrator
	engine     *store.Engine
	connectors map[base.Family]base.Connector
	log        *logger.Logger
}

// NewHandlers wires the API handler set.
func NewHandlers(reg *registry.Registry, orch *refresh.Orchestrator, engine *store.Engine, connectors map[base.Family]base.Connector) *Handlers {
	return &Handlers{
		reg:        reg,
		orch:       orch,
		engine:     engine,
		connectors: connectors,
		log:        logger.New("hub-api"),
	}
}

// Register adds the integrations API endpoints to the router.
//
// Endpoints:
//   - GET    /api/v1/integrations                  - list all connections
//   - POST   /api/v1/integrations                  - add and probe a connection
//   - GET    /api/v1/integrations/{id}             - get one connection
//   - PATCH  /api/v1/integrations/{id}             - edit name/credentials
//   - DELETE /api/v1/integrations/{id}             - remove a connection
//   - POST   /api/v1/integrations/{id}/test        - re-probe one connection
//   - POST   /api/v1/integrations/{id}/disconnect  - disconnect, keep credentials
//   - POST   /api/v1/integrations/refresh          - re-probe all candidates
//   - GET    /api/v1/sync/status                   - sync engine state
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/integrations", h.listIntegrations).Methods("GET")
	r.HandleFunc("/api/v1/integrations", h.addIntegration).Methods("POST")
	r.HandleFunc("/api/v1/integrations/refresh", h.refreshAll).Methods("POST")
	r.HandleFunc("/api/v1/integrations/{id}", h.getIntegration).Methods("GET")
	r.HandleFunc("/api/v1/integrations/{id}", h.updateIntegration).Methods("PATCH")
	r.HandleFunc("/api/v1/integrations/{id}", h.removeIntegration).Methods("DELETE")
	r.HandleFunc("/api/v1/integrations/{id}/test", h.testIntegration).Methods("POST")
	r.HandleFunc("/api/v1/integrations/{id}/disconnect", h.disconnectIntegration).Methods("POST")
	r.HandleFunc("/api/v1/sync/status", h.syncStatus).Methods("GET")
}

// ConnectionView is the API projection of a connection. Stored secrets are
// never echoed back; only their presence is reported.
type ConnectionView struct {
	ID             string            `json:"id"`
	Family         base.Family       `json:"family"`
	DisplayName    string            `json:"display_name"`
	Status         registry.Status   `json:"status"`
	StatusMessage  string            `json:"status_message,omitempty"`
	HasCredentials bool              `json:"has_credentials"`
	ProbeResult    *base.ProbeResult `json:"probe_result,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func toView(conn *registry.Connection) *ConnectionView {
	return &ConnectionView{
		ID:             conn.ID,
		Family:         conn.Family,
		DisplayName:    conn.DisplayName,
		Status:         conn.Status,
		StatusMessage:  conn.StatusMessage,
		HasCredentials: conn.Credentials != nil,
		ProbeResult:    conn.ProbeResult,
		CreatedAt:      conn.CreatedAt,
		UpdatedAt:      conn.UpdatedAt,
	}
}

// AddIntegrationRequest is the POST /api/v1/integrations body.
type AddIntegrationRequest struct {
	Family      base.Family       `json:"family"`
	DisplayName string            `json:"display_name,omitempty"`
	Credentials *base.Credentials `json:"credentials"`
}

// UpdateIntegrationRequest is the PATCH body. Nil fields are left untouched.
type UpdateIntegrationRequest struct {
	DisplayName *string           `json:"display_name,omitempty"`
	Credentials *base.Credentials `json:"credentials,omitempty"`
}

// ErrorBody is the uniform error payload.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *Handlers) listIntegrations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	conns := h.reg.List()
	views := make([]*ConnectionView, 0, len(conns))
	for _, conn := range conns {
		views = append(views, toView(conn))
	}

	apiRequestsTotal.WithLabelValues("list", "success").Inc()
	apiRequestDuration.WithLabelValues("list").Observe(time.Since(start).Seconds())
	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"integrations":  views,
		"connected_ids": h.reg.ConnectedIDs(),
	})
}

func (h *Handlers) getIntegration(w http.ResponseWriter, r *http.Request) {
	conn, err := h.reg.Get(mux.Vars(r)["id"])
	if err != nil {
		apiRequestsTotal.WithLabelValues("get", "error").Inc()
		h.sendError(w, http.StatusNotFound, err)
		return
	}
	apiRequestsTotal.WithLabelValues("get", "success").Inc()
	h.sendJSON(w, http.StatusOK, toView(conn))
}

// addIntegration validates the credentials, registers the connection and
// runs the initial probe before answering. The response carries the
// connection in whatever state the probe left it; a failed probe is a
// created-but-errored connection, not an HTTP failure.
func (h *Handlers) addIntegration(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()

	var req AddIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiRequestsTotal.WithLabelValues("add", "error").Inc()
		h.sendError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	connector, ok := h.connectors[req.Family]
	if !ok {
		apiRequestsTotal.WithLabelValues("add", "error").Inc()
		h.sendError(w, http.StatusBadRequest, base.NewValidationError(req.Family, "family", "unknown integration family"))
		return
	}
	if err := connector.Validate(req.Credentials); err != nil {
		apiRequestsTotal.WithLabelValues("add", "error").Inc()
		h.log.Warn(requestID, "credential validation failed", map[string]interface{}{
			"family": string(req.Family), "error": err.Error(),
		})
		h.sendError(w, http.StatusBadRequest, err)
		return
	}

	conn, err := h.reg.Add(req.Family, req.DisplayName, req.Credentials)
	if err != nil {
		status := http.StatusBadRequest
		if base.KindOf(err) == base.KindDuplicate {
			status = http.StatusConflict
		}
		apiRequestsTotal.WithLabelValues("add", "error").Inc()
		h.sendError(w, status, err)
		return
	}

	// The initial probe decides connected vs error. Its failure is part of
	// the connection state, so the add itself still succeeds. The probe runs
	// detached: a client dropping the request must not cancel it and record
	// a spurious error.
	if _, err := h.orch.ProbeOne(context.WithoutCancel(r.Context()), conn.ID); err != nil {
		h.log.Warn(requestID, "initial probe failed", map[string]interface{}{
			"id": conn.ID, "error": err.Error(),
		})
	}

	conn, err = h.reg.Get(conn.ID)
	if err != nil {
		apiRequestsTotal.WithLabelValues("add", "error").Inc()
		h.sendError(w, http.StatusInternalServerError, err)
		return
	}

	h.log.InfoWithDuration(requestID, "integration added",
		float64(time.Since(start).Milliseconds()),
		map[string]interface{}{"id": conn.ID, "status": string(conn.Status)})
	apiRequestsTotal.WithLabelValues("add", "success").Inc()
	apiRequestDuration.WithLabelValues("add").Observe(time.Since(start).Seconds())
	h.sendJSON(w, http.StatusCreated, toView(conn))
}

func (h *Handlers) updateIntegration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	requestID := uuid.NewString()

	var req UpdateIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiRequestsTotal.WithLabelValues("update", "error").Inc()
		h.sendError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	if req.Credentials != nil {
		conn, err := h.reg.Get(id)
		if err != nil {
			apiRequestsTotal.WithLabelValues("update", "error").Inc()
			h.sendError(w, http.StatusNotFound, err)
			return
		}
		connector, ok := h.connectors[conn.Family]
		if !ok {
			// Reachable through a restored record whose family has since
			// been retired; without the check this would nil-deref.
			apiRequestsTotal.WithLabelValues("update", "error").Inc()
			h.sendError(w, http.StatusBadRequest, base.NewValidationError(conn.Family, "family", "unknown integration family"))
			return
		}
		if err := connector.Validate(req.Credentials); err != nil {
			apiRequestsTotal.WithLabelValues("update", "error").Inc()
			h.sendError(w, http.StatusBadRequest, err)
			return
		}
	}

	conn, err := h.reg.Update(id, registry.Patch{
		DisplayName: req.DisplayName,
		Credentials: req.Credentials,
	})
	if err != nil {
		apiRequestsTotal.WithLabelValues("update", "error").Inc()
		h.sendError(w, http.StatusNotFound, err)
		return
	}

	// New credentials have to prove themselves.
	if req.Credentials != nil {
		if _, err := h.orch.ProbeOne(context.WithoutCancel(r.Context()), id); err != nil {
			h.log.Warn(requestID, "re-probe after credential edit failed", map[string]interface{}{
				"id": id, "error": err.Error(),
			})
		}
		conn, _ = h.reg.Get(id)
	}

	apiRequestsTotal.WithLabelValues("update", "success").Inc()
	h.sendJSON(w, http.StatusOK, toView(conn))
}

func (h *Handlers) removeIntegration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.reg.Remove(id); err != nil {
		apiRequestsTotal.WithLabelValues("remove", "error").Inc()
		h.sendError(w, http.StatusNotFound, err)
		return
	}
	apiRequestsTotal.WithLabelValues("remove", "success").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// testIntegration re-probes a single connection and reports this probe's
// outcome alongside the resulting connection state.
func (h *Handlers) testIntegration(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := mux.Vars(r)["id"]

	result, probeErr := h.orch.ProbeOne(context.WithoutCancel(r.Context()), id)
	conn, err := h.reg.Get(id)
	if err != nil {
		apiRequestsTotal.WithLabelValues("test", "error").Inc()
		h.sendError(w, http.StatusNotFound, err)
		return
	}

	body := map[string]interface{}{
		"success":     probeErr == nil,
		"integration": toView(conn),
	}
	if probeErr != nil {
		body["error"] = probeErr.Error()
		body["kind"] = string(base.KindOf(probeErr))
		apiRequestsTotal.WithLabelValues("test", "error").Inc()
	} else {
		body["result"] = result
		apiRequestsTotal.WithLabelValues("test", "success").Inc()
	}
	apiRequestDuration.WithLabelValues("test").Observe(time.Since(start).Seconds())
	h.sendJSON(w, http.StatusOK, body)
}

func (h *Handlers) disconnectIntegration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.reg.Disconnect(id); err != nil {
		apiRequestsTotal.WithLabelValues("disconnect", "error").Inc()
		h.sendError(w, http.StatusNotFound, err)
		return
	}

	conn, _ := h.reg.Get(id)
	apiRequestsTotal.WithLabelValues("disconnect", "success").Inc()
	h.sendJSON(w, http.StatusOK, toView(conn))
}

func (h *Handlers) refreshAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	// Detached from the request: a dropped connection mid-refresh must not
	// cancel every in-flight probe and mass-error the registry.
	report := h.orch.RefreshAll(context.WithoutCancel(r.Context()))

	apiRequestsTotal.WithLabelValues("refresh", "success").Inc()
	apiRequestDuration.WithLabelValues("refresh").Observe(time.Since(start).Seconds())
	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"report":   report,
		"duration": report.Duration.String(),
	})
}

func (h *Handlers) syncStatus(w http.ResponseWriter, r *http.Request) {
	state, pushedVersion := h.engine.State()
	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"state":          state,
		"pushed_version": pushedVersion,
		"local_version":  h.reg.Snapshot().Version,
	})
}

func (h *Handlers) sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers already sent; nothing left but to note it.
		h.log.Error("", "failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func (h *Handlers) sendError(w http.ResponseWriter, status int, err error) {
	body := ErrorBody{Error: err.Error()}
	var ce *base.ConnectorError
	if errors.As(err, &ce) {
		body.Kind = string(ce.Kind)
	}
	h.sendJSON(w, status, body)
}
