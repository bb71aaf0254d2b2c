// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package chat implements the two chat families. A chat-webhook connection
// is a single incoming webhook checked for reachability. A chat-bot
// connection (Discord-style) is two-step: the probe here only performs the
// channel discovery step; sending content happens elsewhere and is not part
// of connection management.
package chat

import (
	"context"
	"log"
	"net/http"
	"os"

	"clouddeck/hub/connectors/base"
	"clouddeck/hub/connectors/webhook"
)

// WebhookConnector probes a chat platform's incoming webhook.
type WebhookConnector struct {
	client          *http.Client
	logger          *log.Logger
	allowPrivateIPs bool
}

// BotConnector discovers the channels a chat bot can post to.
type BotConnector struct {
	client          *http.Client
	logger          *log.Logger
	allowPrivateIPs bool
}

type config struct {
	client          *http.Client
	allowPrivateIPs bool
}

// Option configures the chat connectors.
type Option func(*config)

// WithClient overrides the HTTP client (used in tests).
func WithClient(client *http.Client) Option {
	return func(cfg *config) { cfg.client = client }
}

// WithPrivateIPs disables the private-address guard.
func WithPrivateIPs() Option {
	return func(cfg *config) { cfg.allowPrivateIPs = true }
}

func buildConfig(opts []Option) config {
	cfg := config{client: &http.Client{Timeout: base.ProbeTimeout}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewWebhookConnector creates the chat-webhook connector.
func NewWebhookConnector(opts ...Option) *WebhookConnector {
	cfg := buildConfig(opts)
	return &WebhookConnector{
		client:          cfg.client,
		allowPrivateIPs: cfg.allowPrivateIPs,
		logger:          log.New(os.Stdout, "[CHAT_WEBHOOK] ", log.LstdFlags),
	}
}

// Family returns the handled integration family.
func (c *WebhookConnector) Family() base.Family {
	return base.FamilyChatWebhook
}

// Validate checks credential shape without any network call.
func (c *WebhookConnector) Validate(creds *base.Credentials) error {
	return webhook.ValidateWebhook(c.Family(), creds)
}

// Probe checks the webhook is reachable. Chat webhooks answer a GET with
// their own metadata; no item list is expected.
func (c *WebhookConnector) Probe(ctx context.Context, creds *base.Credentials) (*base.ProbeResult, error) {
	if err := c.Validate(creds); err != nil {
		return nil, err
	}

	_, latency, err := webhook.FetchJSON(ctx, c.client, c.Family(), creds.Webhook, c.allowPrivateIPs)
	if err != nil {
		return nil, err
	}

	result := &base.ProbeResult{
		NoItems: true,
		Message: "webhook reachable",
		Latency: latency,
	}
	c.logger.Printf("Probed chat webhook %s: reachable (%v)", creds.Webhook.URL, latency)
	return result, nil
}

// NewBotConnector creates the chat-bot connector.
func NewBotConnector(opts ...Option) *BotConnector {
	cfg := buildConfig(opts)
	return &BotConnector{
		client:          cfg.client,
		allowPrivateIPs: cfg.allowPrivateIPs,
		logger:          log.New(os.Stdout, "[CHAT_BOT] ", log.LstdFlags),
	}
}

// Family returns the handled integration family.
func (c *BotConnector) Family() base.Family {
	return base.FamilyChatBot
}

// Validate checks both bot URLs structurally. The send URL is stored for
// the later send step and never called by the probe.
func (c *BotConnector) Validate(creds *base.Credentials) error {
	if creds == nil || creds.Chat == nil {
		return base.NewValidationError(c.Family(), "chat", "chat bot credentials are required")
	}
	return base.ValidateStruct(c.Family(), creds.Chat)
}

// Probe performs the channel discovery step and returns the channel list.
func (c *BotConnector) Probe(ctx context.Context, creds *base.Credentials) (*base.ProbeResult, error) {
	if err := c.Validate(creds); err != nil {
		return nil, err
	}

	discovery := &base.WebhookCredentials{URL: creds.Chat.ChannelsURL, Method: http.MethodGet}
	payload, latency, err := webhook.FetchJSON(ctx, c.client, c.Family(), discovery, c.allowPrivateIPs)
	if err != nil {
		return nil, err
	}

	result := webhook.ResultFromPayload(payload, "channel")
	result.Latency = latency
	c.logger.Printf("Discovered channels via %s: %s", creds.Chat.ChannelsURL, result.Message)
	return result, nil
}
