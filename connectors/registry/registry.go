// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package registry

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"clouddeck/hub/connectors/base"
)

// ErrNotFound is returned when an operation references an unknown id.
var ErrNotFound = errors.New("connection not found")

// SnapshotFunc receives the full snapshot after every mutation. The registry
// invokes it outside its lock; the sync engine uses it to persist locally
// and schedule the remote push.
type SnapshotFunc func(*Snapshot)

// Registry is the source of truth for the set of configured connections.
// All mutations go through its operations, giving the snapshot single-writer
// semantics even when the refresh orchestrator fans out concurrent probers.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	order     []string
	connected map[string]struct{}
	// seq holds the latest probe token issued per id. A probe result is
	// applied only if it still carries the latest token, so a status
	// transition issued after the probe started always wins.
	seq        map[string]uint64
	version    int64
	onSnapshot SnapshotFunc
	logger     *log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]*Connection),
		order:     make([]string, 0),
		connected: make(map[string]struct{}),
		seq:       make(map[string]uint64),
		logger:    log.New(os.Stdout, "[REGISTRY] ", log.LstdFlags),
	}
}

// SetOnSnapshot installs the mutation hook. Must be called during wiring,
// before concurrent use.
func (r *Registry) SetOnSnapshot(fn SnapshotFunc) {
	r.onSnapshot = fn
}

// Add creates a connection for the given family. Singleton families reject
// a second add with a duplicate error; multi-instance families delegate id
// generation to the instance numbering rules.
func (r *Registry) Add(family base.Family, displayName string, creds *base.Credentials) (*Connection, error) {
	if !family.Valid() {
		return nil, base.NewValidationError(family, "family", "unknown integration family")
	}

	r.mu.Lock()
	if !family.MultiInstance() {
		for _, conn := range r.conns {
			if conn.Family == family {
				r.mu.Unlock()
				return nil, base.NewDuplicateError(family)
			}
		}
	}

	id, defaultName := nextInstanceID(r.order, family)
	if displayName == "" {
		displayName = defaultName
	}

	now := time.Now().UTC()
	conn := &Connection{
		ID:            id,
		Family:        family,
		DisplayName:   displayName,
		Status:        StatusConnecting,
		StatusMessage: "connecting",
		Credentials:   cloneCredentials(creds),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	r.conns[id] = conn
	r.order = append(r.order, id)
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Printf("Added connection '%s' (family: %s)", id, family)
	r.notify(snap)
	return conn.Clone(), nil
}

// Patch carries the mutable fields of Update. Nil fields are left untouched.
type Patch struct {
	DisplayName *string
	Credentials *base.Credentials
}

// Update edits a connection's display name and/or credentials. A credential
// edit invalidates any in-flight probe for the id.
func (r *Registry) Update(id string, patch Patch) (*Connection, error) {
	r.mu.Lock()
	conn, exists := r.conns[id]
	if !exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if patch.DisplayName != nil {
		conn.DisplayName = *patch.DisplayName
	}
	if patch.Credentials != nil {
		conn.Credentials = cloneCredentials(patch.Credentials)
		r.seq[id]++
	}
	conn.UpdatedAt = time.Now().UTC()
	r.version++
	snap := r.snapshotLocked()
	clone := conn.Clone()
	r.mu.Unlock()

	r.notify(snap)
	return clone, nil
}

// Remove destroys a connection. An in-flight probe for the id will be
// discarded when it completes.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	if _, exists := r.conns[id]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(r.conns, id)
	delete(r.connected, id)
	delete(r.seq, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Printf("Removed connection '%s'", id)
	r.notify(snap)
	return nil
}

// Disconnect clears runtime state but retains credentials for a one-click
// reconnect. The stored secrets are never re-displayed by the API layer.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	conn, exists := r.conns[id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	r.seq[id]++
	conn.Status = StatusDisconnected
	conn.StatusMessage = "disconnected"
	conn.ProbeResult = nil
	conn.UpdatedAt = time.Now().UTC()
	delete(r.connected, id)
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
	return nil
}

// Get returns a copy of one connection.
func (r *Registry) Get(id string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.conns[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return conn.Clone(), nil
}

// List returns copies of all connections in insertion order.
func (r *Registry) List() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.order))
	for _, id := range r.order {
		conns = append(conns, r.conns[id].Clone())
	}
	return conns
}

// Count returns the number of configured connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SetStatus applies an externally issued status transition. It invalidates
// in-flight probes for the id so a stale result can never overwrite it.
func (r *Registry) SetStatus(id string, status Status, message string, result *base.ProbeResult) error {
	r.mu.Lock()
	conn, exists := r.conns[id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	r.seq[id]++
	r.applyStatusLocked(conn, status, message, result)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
	return nil
}

// BeginProbe stamps a new probe for the id and returns its token. The token
// must be presented to CompleteProbe; only the latest token is accepted.
func (r *Registry) BeginProbe(id string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; !exists {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.seq[id]++
	return r.seq[id], nil
}

// CompleteProbe applies a probe outcome if its token is still current.
// Returns false when the result was discarded as stale (the connection was
// removed, edited, or transitioned while the probe was in flight).
func (r *Registry) CompleteProbe(id string, token uint64, status Status, message string, result *base.ProbeResult) bool {
	r.mu.Lock()
	conn, exists := r.conns[id]
	if !exists || r.seq[id] != token {
		r.mu.Unlock()
		r.logger.Printf("Discarded stale probe result for '%s'", id)
		return false
	}

	r.applyStatusLocked(conn, status, message, result)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snap)
	return true
}

// applyStatusLocked mutates status, message and probe payload under the
// write lock, keeping the connected set and the payload invariants in
// lockstep: an error wipes any prior payload, a connected state always
// carries one.
func (r *Registry) applyStatusLocked(conn *Connection, status Status, message string, result *base.ProbeResult) {
	conn.Status = status
	conn.StatusMessage = message
	conn.UpdatedAt = time.Now().UTC()

	switch status {
	case StatusError:
		conn.ProbeResult = nil
	case StatusConnected:
		if result != nil {
			conn.ProbeResult = cloneProbeResult(result)
		} else if conn.ProbeResult == nil {
			conn.ProbeResult = &base.ProbeResult{NoItems: true, Message: message}
		}
	default:
		if result != nil {
			conn.ProbeResult = cloneProbeResult(result)
		}
	}

	if status == StatusConnected {
		r.connected[conn.ID] = struct{}{}
	} else {
		delete(r.connected, conn.ID)
	}
	r.version++
}

// ConnectedIDs returns the derived connected-id set.
func (r *Registry) ConnectedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.connected))
	for _, id := range r.order {
		if _, ok := r.connected[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// RefreshCandidates returns the ids a full refresh should re-probe:
// currently connected records plus errored ones that may have recovered.
func (r *Registry) RefreshCandidates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		switch r.conns[id].Status {
		case StatusConnected, StatusError:
			ids = append(ids, id)
		}
	}
	return ids
}

// Snapshot returns a deep copy of the full current state.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Version:      r.version,
		Connections:  make([]*Connection, 0, len(r.order)),
		ConnectedIDs: make([]string, 0, len(r.connected)),
	}
	for _, id := range r.order {
		snap.Connections = append(snap.Connections, r.conns[id].Clone())
		if _, ok := r.connected[id]; ok {
			snap.ConnectedIDs = append(snap.ConnectedIDs, id)
		}
	}
	return snap
}

// Restore replaces the registry state from a persisted snapshot. The
// connected set is re-derived from connection statuses; a persisted set
// that disagrees is reconciled in favor of the statuses.
func (r *Registry) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns = make(map[string]*Connection, len(snap.Connections))
	r.order = make([]string, 0, len(snap.Connections))
	r.connected = make(map[string]struct{})
	r.seq = make(map[string]uint64)

	persisted := make(map[string]struct{}, len(snap.ConnectedIDs))
	for _, id := range snap.ConnectedIDs {
		persisted[id] = struct{}{}
	}

	for _, conn := range snap.Connections {
		clone := conn.Clone()
		r.conns[clone.ID] = clone
		r.order = append(r.order, clone.ID)
		if clone.Status == StatusConnected {
			r.connected[clone.ID] = struct{}{}
			if _, ok := persisted[clone.ID]; !ok {
				r.logger.Printf("Reconciled connected set for '%s' from status", clone.ID)
			}
		}
	}
	r.version = snap.Version
}

// AdoptRemote merges remote-only connections into the registry. Entries
// present in both stores keep the local copy, which is assumed more recent.
// Returns the number of adopted entries.
func (r *Registry) AdoptRemote(remote []*Connection) int {
	r.mu.Lock()
	adopted := 0
	for _, conn := range remote {
		if conn == nil || conn.ID == "" {
			continue
		}
		if !conn.Family.Valid() {
			r.logger.Printf("Skipping remote entry '%s' with unknown family %q", conn.ID, conn.Family)
			continue
		}
		if _, exists := r.conns[conn.ID]; exists {
			continue
		}
		clone := conn.Clone()
		r.conns[clone.ID] = clone
		r.order = append(r.order, clone.ID)
		if clone.Status == StatusConnected {
			r.connected[clone.ID] = struct{}{}
		}
		adopted++
	}

	var snap *Snapshot
	if adopted > 0 {
		r.version++
		snap = r.snapshotLocked()
	}
	r.mu.Unlock()

	if adopted > 0 {
		r.logger.Printf("Adopted %d connection(s) from remote record", adopted)
		r.notify(snap)
	}
	return adopted
}

func (r *Registry) notify(snap *Snapshot) {
	if r.onSnapshot != nil && snap != nil {
		r.onSnapshot(snap)
	}
}
