// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clouddeck_probes_total",
		Help: "Number of connection probes by family and outcome",
	}, []string{"family", "outcome"})

	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clouddeck_probe_duration_seconds",
		Help:    "Probe latency by family",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"family"})

	refreshRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clouddeck_refresh_runs_total",
		Help: "Number of completed full refresh passes",
	})
)
