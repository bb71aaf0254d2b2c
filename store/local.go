// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/go-redis/redis/v8"

	"clouddeck/hub/connectors/registry"
)

// The local image lives in three keys that must stay mutually consistent:
// the connection-list blob, the derived connected-id set, and the schema
// version marker the migration gate compares against.
const (
	keyConnections   = "clouddeck:hub:connections"
	keyConnectedIDs  = "clouddeck:hub:connected-ids"
	keySchemaVersion = "clouddeck:hub:schema-version"
)

// LocalStore is the durable local image of the registry.
type LocalStore interface {
	LoadSnapshot(ctx context.Context) (*registry.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap *registry.Snapshot) error
	SchemaVersion(ctx context.Context) (string, error)
	SetSchemaVersion(ctx context.Context, version string) error
	Wipe(ctx context.Context) error
}

// connectionsBlob is the persisted shape of the connection-list key.
type connectionsBlob struct {
	Version     int64                  `json:"version"`
	Connections []*registry.Connection `json:"connections"`
}

// RedisLocal stores the local image in Redis.
type RedisLocal struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisLocal creates a Redis-backed local store.
func NewRedisLocal(addr, password string, db int) *RedisLocal {
	return &RedisLocal{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		logger: log.New(os.Stdout, "[LOCAL_STORE] ", log.LstdFlags),
	}
}

// Ping verifies the store is reachable.
func (s *RedisLocal) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// LoadSnapshot reads both blobs and composes the snapshot. Returns nil when
// no local image exists yet.
func (s *RedisLocal) LoadSnapshot(ctx context.Context) (*registry.Snapshot, error) {
	raw, err := s.client.Get(ctx, keyConnections).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection list: %w", err)
	}

	var blob connectionsBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("failed to decode connection list: %w", err)
	}

	snap := &registry.Snapshot{
		Version:     blob.Version,
		Connections: blob.Connections,
	}

	rawIDs, err := s.client.Get(ctx, keyConnectedIDs).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load connected-id set: %w", err)
	}
	if len(rawIDs) > 0 {
		if err := json.Unmarshal(rawIDs, &snap.ConnectedIDs); err != nil {
			// The registry re-derives membership from statuses on restore,
			// so a corrupt set is dropped rather than fatal.
			s.logger.Printf("Warning: discarding corrupt connected-id set: %v", err)
			snap.ConnectedIDs = nil
		}
	}

	return snap, nil
}

// SaveSnapshot writes both blobs in one transaction so the pair can never
// be observed half-updated.
func (s *RedisLocal) SaveSnapshot(ctx context.Context, snap *registry.Snapshot) error {
	blob, err := json.Marshal(connectionsBlob{
		Version:     snap.Version,
		Connections: snap.Connections,
	})
	if err != nil {
		return fmt.Errorf("failed to encode connection list: %w", err)
	}

	ids := snap.ConnectedIDs
	if ids == nil {
		ids = []string{}
	}
	idsBlob, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode connected-id set: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyConnections, blob, 0)
	pipe.Set(ctx, keyConnectedIDs, idsBlob, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}

// SchemaVersion returns the stored marker, or "" when none exists.
func (s *RedisLocal) SchemaVersion(ctx context.Context) (string, error) {
	version, err := s.client.Get(ctx, keySchemaVersion).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load schema version: %w", err)
	}
	return version, nil
}

// SetSchemaVersion stores the marker.
func (s *RedisLocal) SetSchemaVersion(ctx context.Context, version string) error {
	if err := s.client.Set(ctx, keySchemaVersion, version, 0).Err(); err != nil {
		return fmt.Errorf("failed to store schema version: %w", err)
	}
	return nil
}

// Wipe deletes the connection blobs. The schema marker is managed
// separately by the migration gate.
func (s *RedisLocal) Wipe(ctx context.Context) error {
	if err := s.client.Del(ctx, keyConnections, keyConnectedIDs).Err(); err != nil {
		return fmt.Errorf("failed to wipe local store: %w", err)
	}
	s.logger.Println("Wiped local connection state")
	return nil
}

// Close releases the Redis client.
func (s *RedisLocal) Close() error {
	return s.client.Close()
}
