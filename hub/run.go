// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"clouddeck/hub/config"
	"clouddeck/hub/connectors/base"
	"clouddeck/hub/connectors/chat"
	"clouddeck/hub/connectors/clouddrive"
	"clouddeck/hub/connectors/database"
	"clouddeck/hub/connectors/registry"
	"clouddeck/hub/connectors/webhook"
	"clouddeck/hub/connectors/workflow"
	"clouddeck/hub/refresh"
	"clouddeck/hub/shared/logger"
	"clouddeck/hub/store"
)

// Run is the exported entry point for the hub service.
//
// It wires the local store, the remote record client, the connection
// registry, the refresh scheduler and the HTTP API, then blocks until the
// process receives SIGINT or SIGTERM.
//
// Environment variables used:
//   - PORT: HTTP server port (default: 8090)
//   - REDIS_ADDR: local store address (default: localhost:6379)
//   - REDIS_PASSWORD, REDIS_DB: local store auth (optional)
//   - REMOTE_SYNC_URL: remote record service base URL (optional)
//   - SESSION_TOKEN: bearer token for the remote record service
//   - SYNC_DEBOUNCE_MS: remote push debounce window (default: 2000)
//   - REFRESH_INTERVAL_MINUTES: periodic refresh cadence, 0 disables (default: 5)
//   - SEED_FILE: YAML seed file applied on first boot (optional)
//   - ALLOW_PRIVATE_PROBES: permit probes to private addresses (default: false)
func Run() {
	// .env is a local development convenience; absence is normal.
	_ = godotenv.Load()

	log := logger.New("hub")
	log.Info("", "Starting CloudDeck Hub", nil)

	ctx := context.Background()

	local := store.NewRedisLocal(
		getEnv("REDIS_ADDR", "localhost:6379"),
		os.Getenv("REDIS_PASSWORD"),
		getEnvInt("REDIS_DB", 0),
	)
	defer local.Close()
	if err := local.Ping(ctx); err != nil {
		log.Error("", "local store unreachable", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	var remote *store.RemoteClient
	if remoteURL := os.Getenv("REMOTE_SYNC_URL"); remoteURL != "" {
		remote = store.NewRemoteClient(remoteURL, func() (string, error) {
			return os.Getenv("SESSION_TOKEN"), nil
		})
		log.Info("", "remote sync enabled", map[string]interface{}{"url": remoteURL})
	} else {
		log.Info("", "remote sync disabled, running local-only", nil)
	}

	gate := store.NewGate(local, remote)
	migration, err := gate.Run(ctx)
	if err != nil {
		log.Error("", "schema migration failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	debounce := time.Duration(getEnvInt("SYNC_DEBOUNCE_MS", 2000)) * time.Millisecond
	engine := store.NewEngine(local, remote, debounce)

	reg := registry.NewRegistry()
	reg.SetOnSnapshot(engine.OnSnapshot)
	if err := engine.Load(ctx, reg, migration); err != nil {
		log.Error("", "failed to load connection state", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	connectors := buildConnectors(os.Getenv("ALLOW_PRIVATE_PROBES") == "true")
	orch := refresh.New(reg, connectors)

	seedRegistry(ctx, log, reg, orch)

	// Periodic refresh keeps statuses honest between manual refreshes.
	scheduler := gocron.NewScheduler(time.UTC)
	if interval := getEnvInt("REFRESH_INTERVAL_MINUTES", 5); interval > 0 {
		if _, err := scheduler.Every(interval).Minutes().Do(func() {
			orch.RefreshAll(context.Background())
		}); err != nil {
			log.Error("", "failed to schedule periodic refresh", map[string]interface{}{"error": err.Error()})
		} else {
			log.Info("", "periodic refresh scheduled", map[string]interface{}{"interval_minutes": interval})
		}
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	r := mux.NewRouter()
	NewHandlers(reg, orch, engine, connectors).Register(r)
	r.HandleFunc("/healthz", healthzHandler(local, reg, engine)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	port := getEnv("PORT", "8090")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      c.Handler(r),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("", "listening", map[string]interface{}{"port": port})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("", "server failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("", "shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("", "shutdown error", map[string]interface{}{"error": err.Error()})
	}
	// Ship any pending snapshot before the process dies.
	engine.Flush(shutdownCtx)
}

// buildConnectors assembles one connector per family.
func buildConnectors(allowPrivate bool) map[base.Family]base.Connector {
	var webhookOpts []webhook.Option
	var chatOpts []chat.Option
	if allowPrivate {
		webhookOpts = append(webhookOpts, webhook.WithPrivateIPs())
		chatOpts = append(chatOpts, chat.WithPrivateIPs())
	}

	return map[base.Family]base.Connector{
		base.FamilyWebhookGeneric: webhook.New(webhookOpts...),
		base.FamilyCloudDrive:     clouddrive.New(cloudDriveOpts(allowPrivate)...),
		base.FamilyChatWebhook:    chat.NewWebhookConnector(chatOpts...),
		base.FamilyChatBot:        chat.NewBotConnector(chatOpts...),
		base.FamilyRelationalDB:   database.New(base.FamilyRelationalDB),
		base.FamilyDeviceDB:       database.New(base.FamilyDeviceDB),
		base.FamilyWorkflowAPI:    workflow.New(),
	}
}

func cloudDriveOpts(allowPrivate bool) []clouddrive.Option {
	if allowPrivate {
		return []clouddrive.Option{clouddrive.WithPrivateIPs()}
	}
	return nil
}

// seedRegistry applies the seed file on first boot with an empty registry.
// Seeds never merge into existing state; once the hub has connections, the
// registry is authoritative.
func seedRegistry(ctx context.Context, log *logger.Logger, reg *registry.Registry, orch *refresh.Orchestrator) {
	seedFile := os.Getenv("SEED_FILE")
	if seedFile == "" || reg.Count() > 0 {
		return
	}

	loader, err := config.NewSeedLoader(seedFile)
	if err != nil {
		log.Error("", "failed to load seed file", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, entry := range loader.Seeds() {
		family := base.Family(entry.Seed.Family)
		conn, err := reg.Add(family, entry.Seed.DisplayName, entry.Seed.CredentialsFor(family))
		if err != nil {
			log.Warn("", "seed rejected", map[string]interface{}{
				"seed": entry.Name, "error": err.Error(),
			})
			continue
		}
		if _, err := orch.ProbeOne(ctx, conn.ID); err != nil {
			log.Warn("", "seed probe failed", map[string]interface{}{
				"id": conn.ID, "error": err.Error(),
			})
		}
		log.Info("", "seed applied", map[string]interface{}{"seed": entry.Name, "id": conn.ID})
	}
}

func healthzHandler(local *store.RedisLocal, reg *registry.Registry, engine *store.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		localOK := local.Ping(r.Context()) == nil
		state, _ := engine.State()

		status := http.StatusOK
		if !localOK {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      map[bool]string{true: "healthy", false: "degraded"}[localOK],
			"service":     "clouddeck-hub",
			"timestamp":   time.Now().UTC(),
			"connections": reg.Count(),
			"sync_state":  state,
			"components": map[string]bool{
				"local_store": localOK,
			},
		})
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
