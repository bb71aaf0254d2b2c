// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package workflow implements the workflow-api connector for n8n-style
// automation servers. This is the only multi-instance family: users attach
// one connection per server.
package workflow

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"clouddeck/hub/connectors/base"
	"clouddeck/hub/connectors/webhook"
)

const workflowsPath = "/api/v1/workflows"

// Connector lists the workflows of an automation server as its probe.
type Connector struct {
	client *http.Client
	logger *log.Logger
}

// Option configures a Connector.
type Option func(*Connector)

// WithClient overrides the HTTP client (used in tests).
func WithClient(client *http.Client) Option {
	return func(c *Connector) { c.client = client }
}

// New creates a workflow-api connector.
func New(opts ...Option) *Connector {
	c := &Connector{
		client: &http.Client{Timeout: base.ProbeTimeout},
		logger: log.New(os.Stdout, "[WORKFLOW] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Family returns the handled integration family.
func (c *Connector) Family() base.Family {
	return base.FamilyWorkflowAPI
}

// Validate checks credential shape without any network call.
func (c *Connector) Validate(creds *base.Credentials) error {
	if creds == nil || creds.API == nil {
		return base.NewValidationError(c.Family(), "api", "api credentials are required")
	}
	return base.ValidateStruct(c.Family(), creds.API)
}

// Probe lists the server's workflows with the stored API key. The response
// is either `{"data": [...]}` (n8n) or a bare array; both resolve to the
// canonical item list.
func (c *Connector) Probe(ctx context.Context, creds *base.Credentials) (*base.ProbeResult, error) {
	if err := c.Validate(creds); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, base.ProbeTimeout)
	defer cancel()

	endpoint := strings.TrimSuffix(creds.API.APIURL, "/") + workflowsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, base.NewConnectorError(c.Family(), "Probe", base.KindValidation, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	applyAuth(req, creds.API)

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, base.FromTransport(c.Family(), "Probe", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, base.NewConnectorError(c.Family(), "Probe", base.KindUpstream, "failed to read response", err)
	}

	if statusErr := base.FromStatus(c.Family(), "Probe", resp.StatusCode, string(raw)); statusErr != nil {
		return nil, statusErr
	}

	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, base.NewConnectorError(c.Family(), "Probe", base.KindUpstream, "malformed response body", err)
	}

	result := webhook.ResultFromPayload(payload, "workflow")
	result.Latency = latency
	c.logger.Printf("Probed %s: %s (%v)", endpoint, result.Message, latency)
	return result, nil
}

// applyAuth attaches the server's expected auth header. n8n uses a
// dedicated key header; generic servers take a bearer token.
func applyAuth(req *http.Request, creds *base.APICredentials) {
	switch creds.APIType {
	case "generic":
		req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	default:
		req.Header.Set("X-N8N-API-KEY", creds.APIKey)
	}
}
