// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"clouddeck/hub/connectors/registry"
)

// TokenProvider supplies the bearer token for the remote record service.
type TokenProvider func() (string, error)

// remoteRecord is the wire shape of the remote connection record.
type remoteRecord struct {
	Connections []*registry.Connection `json:"connections"`
}

// RemoteClient talks to the account-scoped remote record service. Every push
// replaces the full record; the service holds no per-connection deltas.
type RemoteClient struct {
	baseURL string
	client  *http.Client
	token   TokenProvider
	logger  *log.Logger
}

// NewRemoteClient creates a client for the remote record service.
func NewRemoteClient(baseURL string, token TokenProvider) *RemoteClient {
	return &RemoteClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		token:   token,
		logger:  log.New(os.Stdout, "[REMOTE_STORE] ", log.LstdFlags),
	}
}

// bearerToken fetches the session token and rejects it locally when it is a
// JWT that has already expired, saving a doomed round trip. Opaque tokens
// pass through untouched.
func (c *RemoteClient) bearerToken() (string, error) {
	token, err := c.token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain session token: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("session token is empty")
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		// Not a JWT; let the service decide.
		return token, nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err == nil && exp != nil && exp.Before(time.Now()) {
		return "", fmt.Errorf("session token expired at %s", exp.Format(time.RFC3339))
	}
	return token, nil
}

func (c *RemoteClient) newRequest(ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	token, err := c.bearerToken()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/connections", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Load fetches the remote connection record. A missing record (404) is an
// empty list, not an error.
func (c *RemoteClient) Load(ctx context.Context) ([]*registry.Connection, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach remote record service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote record service returned %d", resp.StatusCode)
	}

	var record remoteRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10*1024*1024)).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode remote record: %w", err)
	}
	return record.Connections, nil
}

// Push replaces the remote record with the given snapshot.
func (c *RemoteClient) Push(ctx context.Context, snap *registry.Snapshot) error {
	conns := snap.Connections
	if conns == nil {
		conns = []*registry.Connection{}
	}
	payload, err := json.Marshal(remoteRecord{Connections: conns})
	if err != nil {
		return fmt.Errorf("failed to encode remote record: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach remote record service: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote record service returned %d", resp.StatusCode)
	}
	return nil
}

// Wipe replaces the remote record with an empty one.
func (c *RemoteClient) Wipe(ctx context.Context) error {
	return c.Push(ctx, &registry.Snapshot{Connections: []*registry.Connection{}})
}
