// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package store

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"clouddeck/hub/connectors/registry"
)

// SyncState describes how far a registry version has propagated.
type SyncState string

const (
	// SyncLocalOnly: persisted locally, no remote configured or nothing
	// pushed yet.
	SyncLocalOnly SyncState = "local-only"
	// SyncPending: a newer version is persisted locally and waiting for the
	// debounced remote push.
	SyncPending SyncState = "sync-pending"
	// SyncSynced: the latest version has been accepted by the remote record
	// service.
	SyncSynced SyncState = "synced"
)

// Engine keeps the local store authoritative and mirrors it to the remote
// record best-effort. Local writes are synchronous on every mutation; remote
// pushes are debounced full-snapshot replacements, so a burst of edits costs
// one round trip.
type Engine struct {
	local    LocalStore
	remote   *RemoteClient
	debounce time.Duration
	logger   *log.Logger

	// saveMu serializes local saves and orders them by snapshot version,
	// since the registry notifies outside its lock.
	saveMu       sync.Mutex
	savedVersion int64

	mu            sync.Mutex
	latest        *registry.Snapshot
	timer         *time.Timer
	state         SyncState
	pushedVersion int64
}

// NewEngine creates a sync engine. remote may be nil, in which case state
// never leaves local-only.
func NewEngine(local LocalStore, remote *RemoteClient, debounce time.Duration) *Engine {
	return &Engine{
		local:    local,
		remote:   remote,
		debounce: debounce,
		logger:   log.New(os.Stdout, "[SYNC] ", log.LstdFlags),
		state:    SyncLocalOnly,
	}
}

// Load hydrates the registry at startup: the local image first, then the
// remote record merged on top with local entries winning. The remote load is
// skipped entirely for the session that just ran a migration wipe, otherwise
// the stale remote record would resurrect what was wiped. A remote failure
// is logged and swallowed; startup must succeed offline.
func (e *Engine) Load(ctx context.Context, reg *registry.Registry, mig MigrationResult) error {
	snap, err := e.local.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap != nil {
		reg.Restore(snap)
		e.logger.Printf("Restored %d connection(s) from local store", len(snap.Connections))
	}

	if e.remote == nil {
		return nil
	}
	if mig.Migrated {
		e.logger.Printf("Skipping remote load this session (migrated %s -> %s)", mig.From, mig.To)
		return nil
	}

	remote, err := e.remote.Load(ctx)
	if err != nil {
		e.logger.Printf("Warning: remote record unavailable, continuing with local state: %v", err)
		syncFailures.WithLabelValues("load").Inc()
		return nil
	}
	if adopted := reg.AdoptRemote(remote); adopted > 0 {
		e.logger.Printf("Merged %d remote-only connection(s)", adopted)
	}
	return nil
}

// OnSnapshot is the registry mutation hook. The local save happens inline so
// the caller's mutation is durable before its response; the remote push is
// scheduled behind the debounce window.
//
// Concurrent mutations can deliver snapshots out of order. Versions are
// total-ordered, so anything at or below the highest version already
// persisted is stale and is dropped: an older snapshot must never overwrite
// a newer one in the local store or become the push candidate.
func (e *Engine) OnSnapshot(snap *registry.Snapshot) {
	e.saveMu.Lock()
	if snap.Version <= e.savedVersion {
		e.saveMu.Unlock()
		return
	}
	e.savedVersion = snap.Version

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := e.local.SaveSnapshot(ctx, snap); err != nil {
		e.logger.Printf("Error: failed to persist snapshot v%d locally: %v", snap.Version, err)
		syncFailures.WithLabelValues("local").Inc()
	}
	cancel()
	e.saveMu.Unlock()

	if e.remote == nil {
		return
	}

	e.mu.Lock()
	if e.latest != nil && snap.Version <= e.latest.Version {
		e.mu.Unlock()
		return
	}
	e.latest = snap
	e.state = SyncPending
	if e.timer == nil {
		e.timer = time.AfterFunc(e.debounce, e.pushLatest)
	} else {
		e.timer.Reset(e.debounce)
	}
	e.mu.Unlock()
	syncStateGauge.Set(stateValue(SyncPending))
}

// pushLatest ships whatever snapshot is newest when the debounce fires.
func (e *Engine) pushLatest() {
	e.mu.Lock()
	snap := e.latest
	e.mu.Unlock()
	if snap == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.remote.Push(ctx, snap); err != nil {
		// Stay in sync-pending so staleness is observable; the next
		// mutation or flush retries.
		e.logger.Printf("Warning: remote push of v%d failed: %v", snap.Version, err)
		syncFailures.WithLabelValues("push").Inc()
		return
	}

	e.mu.Lock()
	e.pushedVersion = snap.Version
	if e.latest != nil && e.latest.Version == snap.Version {
		e.state = SyncSynced
	}
	state := e.state
	e.mu.Unlock()

	syncPushes.Inc()
	syncStateGauge.Set(stateValue(state))
	e.logger.Printf("Pushed snapshot v%d to remote record", snap.Version)
}

// Flush pushes any pending snapshot immediately. Used on shutdown.
func (e *Engine) Flush(ctx context.Context) {
	if e.remote == nil {
		return
	}
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
	}
	snap := e.latest
	pending := e.state == SyncPending
	e.mu.Unlock()

	if !pending || snap == nil {
		return
	}
	if err := e.remote.Push(ctx, snap); err != nil {
		e.logger.Printf("Warning: final remote push failed: %v", err)
		syncFailures.WithLabelValues("push").Inc()
		return
	}
	e.mu.Lock()
	e.pushedVersion = snap.Version
	e.state = SyncSynced
	e.mu.Unlock()
	syncPushes.Inc()
}

// State reports the current sync state and the last version accepted by the
// remote record service.
func (e *Engine) State() (SyncState, int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.pushedVersion
}

func stateValue(state SyncState) float64 {
	switch state {
	case SyncSynced:
		return 2
	case SyncPending:
		return 1
	default:
		return 0
	}
}
