// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package refresh

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"clouddeck/hub/connectors/base"
	"clouddeck/hub/connectors/registry"
)

// Orchestrator re-probes configured connections. Each probe is stamped with
// a registry token before it starts, so results landing after the connection
// was removed, edited, or disconnected are discarded instead of applied.
type Orchestrator struct {
	reg        *registry.Registry
	connectors map[base.Family]base.Connector
	logger     *log.Logger
}

// New creates an orchestrator over the given connector set.
func New(reg *registry.Registry, connectors map[base.Family]base.Connector) *Orchestrator {
	return &Orchestrator{
		reg:        reg,
		connectors: connectors,
		logger:     log.New(os.Stdout, "[REFRESH] ", log.LstdFlags),
	}
}

// ProbeOne runs a single probe for the id and applies the outcome to the
// registry. The returned result and error describe this probe attempt even
// when the registry discarded it as stale.
func (o *Orchestrator) ProbeOne(ctx context.Context, id string) (*base.ProbeResult, error) {
	conn, err := o.reg.Get(id)
	if err != nil {
		return nil, err
	}

	connector, ok := o.connectors[conn.Family]
	if !ok {
		return nil, fmt.Errorf("no connector registered for family %s", conn.Family)
	}

	token, err := o.reg.BeginProbe(id)
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, base.ProbeTimeout)
	defer cancel()

	start := time.Now()
	result, probeErr := connector.Probe(probeCtx, conn.Credentials)
	probeDuration.WithLabelValues(string(conn.Family)).Observe(time.Since(start).Seconds())

	if probeErr != nil {
		probesTotal.WithLabelValues(string(conn.Family), "error").Inc()
		applied := o.reg.CompleteProbe(id, token, registry.StatusError, probeErr.Error(), nil)
		if applied {
			o.logger.Printf("Probe failed for '%s': %v", id, probeErr)
		}
		return nil, probeErr
	}

	probesTotal.WithLabelValues(string(conn.Family), "success").Inc()
	o.reg.CompleteProbe(id, token, registry.StatusConnected, result.Message, result)
	return result, nil
}

// Report summarizes one full refresh pass.
type Report struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"-"`
}

// RefreshAll re-probes every refresh candidate concurrently and waits for
// all of them. One connection's slow or failing probe never blocks or fails
// the others; the pass completes when the last probe lands.
func (o *Orchestrator) RefreshAll(ctx context.Context) Report {
	ids := o.reg.RefreshCandidates()
	report := Report{Total: len(ids)}
	if len(ids) == 0 {
		return report
	}

	start := time.Now()
	o.logger.Printf("Refreshing %d connection(s)", len(ids))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := o.ProbeOne(ctx, id)
			mu.Lock()
			if err != nil {
				report.Failed++
			} else {
				report.Succeeded++
			}
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	report.Duration = time.Since(start)
	refreshRuns.Inc()
	o.logger.Printf("Refresh complete: %d ok, %d failed in %s",
		report.Succeeded, report.Failed, report.Duration.Round(time.Millisecond))
	return report
}
