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
)

// SchemaVersion is the connection-record schema the current build writes.
// Bump it when the persisted shape changes incompatibly; the gate then wipes
// stale state on the next boot instead of misreading it.
const SchemaVersion = "2"

// MigrationResult reports what the gate did this boot. The sync engine
// consumes it: a migrated session must not load the remote record, because
// the remote wipe is best-effort and a surviving stale record would undo
// the migration.
type MigrationResult struct {
	Migrated bool
	From     string
	To       string
}

// Gate runs the one-time schema migration before anything reads the stores.
type Gate struct {
	local   LocalStore
	remote  *RemoteClient
	current string
	logger  *log.Logger
}

// NewGate creates a migration gate targeting the current schema version.
func NewGate(local LocalStore, remote *RemoteClient) *Gate {
	return &Gate{
		local:   local,
		remote:  remote,
		current: SchemaVersion,
		logger:  log.New(os.Stdout, "[MIGRATE] ", log.LstdFlags),
	}
}

// Run compares the stored marker with the current schema version. A match is
// a no-op. A fresh install (no marker, no data) just stamps the marker. Any
// other mismatch wipes the local image, best-effort wipes the remote record,
// and stamps the new marker. The wipe-then-stamp order means a crash between
// the two repeats the (idempotent) wipe on the next boot rather than leaving
// stale data behind a current marker.
func (g *Gate) Run(ctx context.Context) (MigrationResult, error) {
	stored, err := g.local.SchemaVersion(ctx)
	if err != nil {
		return MigrationResult{}, err
	}
	if stored == g.current {
		return MigrationResult{}, nil
	}

	if stored == "" {
		snap, err := g.local.LoadSnapshot(ctx)
		if err != nil {
			return MigrationResult{}, err
		}
		if snap == nil {
			if err := g.local.SetSchemaVersion(ctx, g.current); err != nil {
				return MigrationResult{}, err
			}
			g.logger.Printf("Fresh install, stamped schema version %s", g.current)
			return MigrationResult{}, nil
		}
	}

	g.logger.Printf("Schema version %q is stale (current %s), wiping connection state", stored, g.current)
	if err := g.local.Wipe(ctx); err != nil {
		return MigrationResult{}, err
	}
	if g.remote != nil {
		if err := g.remote.Wipe(ctx); err != nil {
			g.logger.Printf("Warning: remote wipe failed, remote load stays suppressed this session: %v", err)
		}
	}
	if err := g.local.SetSchemaVersion(ctx, g.current); err != nil {
		return MigrationResult{}, err
	}

	migrationsRun.Inc()
	return MigrationResult{Migrated: true, From: stored, To: g.current}, nil
}
