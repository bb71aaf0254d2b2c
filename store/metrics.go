// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncPushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clouddeck_sync_pushes_total",
		Help: "Number of snapshots accepted by the remote record service",
	})

	syncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clouddeck_sync_failures_total",
		Help: "Number of failed sync operations by stage",
	}, []string{"stage"})

	syncStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clouddeck_sync_state",
		Help: "Current sync state (0 local-only, 1 sync-pending, 2 synced)",
	})

	migrationsRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clouddeck_schema_migrations_total",
		Help: "Number of schema migration wipes performed",
	})
)
