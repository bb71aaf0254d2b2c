// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package clouddrive implements the cloud-drive connector. Drive providers
// answer the probe with a file list and, for suites, the status of nested
// child services (docs/sheets/slides style).
package clouddrive

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"

	"clouddeck/hub/connectors/base"
	"clouddeck/hub/connectors/webhook"
)

// Connector probes cloud-drive providers through their webhook endpoint.
type Connector struct {
	client          *http.Client
	logger          *log.Logger
	allowPrivateIPs bool
}

// Option configures a Connector.
type Option func(*Connector)

// WithClient overrides the HTTP client (used in tests).
func WithClient(client *http.Client) Option {
	return func(c *Connector) { c.client = client }
}

// WithPrivateIPs disables the private-address guard.
func WithPrivateIPs() Option {
	return func(c *Connector) { c.allowPrivateIPs = true }
}

// New creates a cloud-drive connector.
func New(opts ...Option) *Connector {
	c := &Connector{
		client: &http.Client{Timeout: base.ProbeTimeout},
		logger: log.New(os.Stdout, "[CLOUD_DRIVE] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Family returns the handled integration family.
func (c *Connector) Family() base.Family {
	return base.FamilyCloudDrive
}

// Validate checks credential shape without any network call.
func (c *Connector) Validate(creds *base.Credentials) error {
	return webhook.ValidateWebhook(c.Family(), creds)
}

// Probe fetches the drive's file list and the status of any nested child
// services the provider exposes.
func (c *Connector) Probe(ctx context.Context, creds *base.Credentials) (*base.ProbeResult, error) {
	if err := c.Validate(creds); err != nil {
		return nil, err
	}

	payload, latency, err := webhook.FetchJSON(ctx, c.client, c.Family(), creds.Webhook, c.allowPrivateIPs)
	if err != nil {
		return nil, err
	}

	result := webhook.ResultFromPayload(payload, "file")
	result.Children = childStatuses(payload)
	result.Latency = latency

	c.logger.Printf("Probed drive %s: %s, %d child service(s)",
		creds.Webhook.URL, result.Message, len(result.Children))
	return result, nil
}

// childStatuses extracts nested sub-service states from a drive response.
// Accepted value shapes per service: bool, a status string ("ok",
// "connected", anything else is treated as an error message), or an object
// with connected/message fields.
func childStatuses(payload interface{}) []base.ChildStatus {
	root, ok := payload.(map[string]interface{})
	if !ok {
		return nil
	}
	services, ok := root["services"].(map[string]interface{})
	if !ok {
		return nil
	}

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	children := make([]base.ChildStatus, 0, len(names))
	for _, name := range names {
		child := base.ChildStatus{Name: name}
		switch v := services[name].(type) {
		case bool:
			child.Connected = v
		case string:
			if v == "ok" || v == "connected" {
				child.Connected = true
			} else {
				child.Message = v
			}
		case map[string]interface{}:
			if connected, ok := v["connected"].(bool); ok {
				child.Connected = connected
			}
			if msg, ok := v["message"].(string); ok {
				child.Message = msg
			}
		default:
			child.Message = fmt.Sprintf("unrecognized status: %v", v)
		}
		children = append(children, child)
	}
	return children
}
