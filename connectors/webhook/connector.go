// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package webhook implements the webhook-generic connector: a single
// user-supplied URL probed with GET or POST, tolerant of the polymorphic
// response shapes low-code webhook backends return.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"clouddeck/hub/connectors/base"
)

const (
	// maxResponseSize caps probe response bodies (10MB).
	maxResponseSize = 10 * 1024 * 1024
)

// Connector probes generic webhook endpoints.
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

// WithPrivateIPs disables the private-address guard for self-hosted setups
// that probe services on the local network.
func WithPrivateIPs() Option {
	return func(c *Connector) { c.allowPrivateIPs = true }
}

// New creates a webhook connector with secure defaults.
func New(opts ...Option) *Connector {
	c := &Connector{
		client: &http.Client{
			Timeout: base.ProbeTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    100,
				MaxConnsPerHost: 10,
				IdleConnTimeout: 90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
		logger: log.New(os.Stdout, "[WEBHOOK] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Family returns the handled integration family.
func (c *Connector) Family() base.Family {
	return base.FamilyWebhookGeneric
}

// Validate checks credential shape without any network call.
func (c *Connector) Validate(creds *base.Credentials) error {
	return ValidateWebhook(c.Family(), creds)
}

// ValidateWebhook is shared by every family configured with a single
// webhook URL (webhook-generic, cloud-drive, chat-webhook).
func ValidateWebhook(family base.Family, creds *base.Credentials) error {
	if creds == nil || creds.Webhook == nil {
		return base.NewValidationError(family, "webhook", "webhook credentials are required")
	}
	if err := base.ValidateStruct(family, creds.Webhook); err != nil {
		return err
	}
	parsed, err := url.Parse(creds.Webhook.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return base.NewValidationError(family, "url", "must be an http or https URL")
	}
	return nil
}

// Probe performs the minimal round-trip that proves the webhook is
// reachable and returns the canonical item payload.
func (c *Connector) Probe(ctx context.Context, creds *base.Credentials) (*base.ProbeResult, error) {
	if err := c.Validate(creds); err != nil {
		return nil, err
	}

	raw, latency, err := FetchJSON(ctx, c.client, c.Family(), creds.Webhook, c.allowPrivateIPs)
	if err != nil {
		return nil, err
	}

	result := ResultFromPayload(raw, "item")
	result.Latency = latency
	c.logger.Printf("Probed %s: %s (%v)", creds.Webhook.URL, result.Message, latency)
	return result, nil
}

// FetchJSON issues the probe request and decodes the JSON body. An empty
// body decodes to nil. Every transport and status failure is mapped to the
// closed error taxonomy before returning.
func FetchJSON(ctx context.Context, client *http.Client, family base.Family, creds *base.WebhookCredentials, allowPrivateIPs bool) (interface{}, time.Duration, error) {
	if !allowPrivateIPs {
		if err := guardHost(family, creds.URL); err != nil {
			return nil, 0, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, base.ProbeTimeout)
	defer cancel()

	method := creds.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte(`{}`))
	}

	req, err := http.NewRequestWithContext(ctx, method, creds.URL, body)
	if err != nil {
		return nil, 0, base.NewConnectorError(family, "Probe", base.KindValidation, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, latency, base.FromTransport(family, "Probe", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, latency, base.NewConnectorError(family, "Probe", base.KindUpstream, "failed to read response", err)
	}

	if statusErr := base.FromStatus(family, "Probe", resp.StatusCode, string(raw)); statusErr != nil {
		return nil, latency, statusErr
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, latency, nil
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, latency, base.NewConnectorError(family, "Probe", base.KindUpstream, "malformed response body", err)
	}
	return payload, latency, nil
}

// ResultFromPayload normalizes a decoded payload into the canonical probe
// result, wording the message with the family's item noun.
func ResultFromPayload(payload interface{}, noun string) *base.ProbeResult {
	items, ok := base.NormalizeItems(payload)
	if !ok || len(items) == 0 {
		return &base.ProbeResult{
			NoItems: true,
			Message: fmt.Sprintf("connected, no %ss found", noun),
		}
	}
	return &base.ProbeResult{
		Items:     items,
		ItemCount: len(items),
		Message:   fmt.Sprintf("%d %s(s) found", len(items), noun),
	}
}

// guardHost refuses probes that resolve to private or reserved addresses,
// so a user-entered URL cannot be used to reach the hub's own network.
func guardHost(family base.Family, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return base.NewValidationError(family, "url", "must be a valid URL")
	}

	ips, err := net.LookupIP(parsed.Hostname())
	if err != nil {
		return base.FromTransport(family, "Probe", err)
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return base.NewConnectorError(family, "Probe", base.KindValidation,
				fmt.Sprintf("refusing to probe private address %s", ip), nil)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	return false
}
