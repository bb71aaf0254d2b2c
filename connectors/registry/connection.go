// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package registry

import (
	"time"

	"clouddeck/hub/connectors/base"
)

// Status is the lifecycle state of a connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Connection is one configured integration.
//
// Invariants:
//   - status=connected implies a non-empty StatusMessage and either a
//     ProbeResult or an explicit no-items marker inside it.
//   - status=error never retains a ProbeResult from a prior success.
type Connection struct {
	ID            string            `json:"id"`
	Family        base.Family       `json:"family"`
	DisplayName   string            `json:"display_name"`
	Status        Status            `json:"status"`
	StatusMessage string            `json:"status_message,omitempty"`
	Credentials   *base.Credentials `json:"credentials,omitempty"`
	ProbeResult   *base.ProbeResult `json:"probe_result,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers can never mutate registry state
// through a returned pointer.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Credentials = cloneCredentials(c.Credentials)
	clone.ProbeResult = cloneProbeResult(c.ProbeResult)
	return &clone
}

func cloneCredentials(creds *base.Credentials) *base.Credentials {
	if creds == nil {
		return nil
	}
	clone := &base.Credentials{}
	if creds.Webhook != nil {
		w := *creds.Webhook
		clone.Webhook = &w
	}
	if creds.Database != nil {
		d := *creds.Database
		clone.Database = &d
	}
	if creds.API != nil {
		a := *creds.API
		clone.API = &a
	}
	if creds.Chat != nil {
		ch := *creds.Chat
		clone.Chat = &ch
	}
	return clone
}

func cloneProbeResult(result *base.ProbeResult) *base.ProbeResult {
	if result == nil {
		return nil
	}
	clone := *result
	clone.Items = append([]base.Item(nil), result.Items...)
	clone.Children = append([]base.ChildStatus(nil), result.Children...)
	return &clone
}

// Snapshot is the full state of all connections at one instant, plus the
// derived connected-id set kept in lockstep with status mutations.
type Snapshot struct {
	Version      int64         `json:"version"`
	Connections  []*Connection `json:"connections"`
	ConnectedIDs []string      `json:"connected_ids"`
}
