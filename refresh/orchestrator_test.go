// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package refresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"clouddeck/hub/connectors/base"
	"clouddeck/hub/connectors/registry"
)

// fakeConnector scripts one probe behavior per family.
type fakeConnector struct {
	family base.Family
	result *base.ProbeResult
	err    error
	delay  time.Duration
	calls  int32
}

func (f *fakeConnector) Family() base.Family                        { return f.family }
func (f *fakeConnector) Validate(creds *base.Credentials) error     { return nil }
func (f *fakeConnector) Probe(ctx context.Context, creds *base.Credentials) (*base.ProbeResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, base.FromTransport(f.family, "probe", ctx.Err())
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func connect(t *testing.T, reg *registry.Registry, o *Orchestrator, family base.Family) string {
	t.Helper()
	conn, err := reg.Add(family, "", nil)
	if err != nil {
		t.Fatalf("failed to add %s: %v", family, err)
	}
	if _, err := o.ProbeOne(context.Background(), conn.ID); err != nil {
		t.Fatalf("failed to connect %s: %v", conn.ID, err)
	}
	return conn.ID
}

func TestProbeOne_AppliesSuccess(t *testing.T) {
	reg := registry.NewRegistry()
	fake := &fakeConnector{
		family: base.FamilyWebhookGeneric,
		result: &base.ProbeResult{ItemCount: 2, Message: "2 item(s) found"},
	}
	o := New(reg, map[base.Family]base.Connector{base.FamilyWebhookGeneric: fake})

	conn, _ := reg.Add(base.FamilyWebhookGeneric, "", nil)
	result, err := o.ProbeOne(context.Background(), conn.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemCount != 2 {
		t.Errorf("expected 2 items, got %d", result.ItemCount)
	}

	got, _ := reg.Get(conn.ID)
	if got.Status != registry.StatusConnected {
		t.Errorf("expected connected status, got %s", got.Status)
	}
	if got.StatusMessage != "2 item(s) found" {
		t.Errorf("unexpected status message: %q", got.StatusMessage)
	}
}

func TestProbeOne_AppliesErrorAndClearsResult(t *testing.T) {
	reg := registry.NewRegistry()
	fake := &fakeConnector{
		family: base.FamilyWorkflowAPI,
		result: &base.ProbeResult{ItemCount: 1, Message: "1 workflow(s) found"},
	}
	o := New(reg, map[base.Family]base.Connector{base.FamilyWorkflowAPI: fake})

	id := connect(t, reg, o, base.FamilyWorkflowAPI)

	fake.err = base.NewConnectorError(fake.family, "probe", base.KindUnreachable, "connection refused", nil)
	if _, err := o.ProbeOne(context.Background(), id); err == nil {
		t.Fatal("expected probe error")
	}

	got, _ := reg.Get(id)
	if got.Status != registry.StatusError {
		t.Errorf("expected error status, got %s", got.Status)
	}
	if got.ProbeResult != nil {
		t.Error("an errored connection must not retain a stale probe result")
	}
	if len(reg.ConnectedIDs()) != 0 {
		t.Errorf("connected set not cleared: %v", reg.ConnectedIDs())
	}
}

func TestProbeOne_UnknownFamilyConnector(t *testing.T) {
	reg := registry.NewRegistry()
	o := New(reg, map[base.Family]base.Connector{})

	conn, _ := reg.Add(base.FamilyCloudDrive, "", nil)
	if _, err := o.ProbeOne(context.Background(), conn.ID); err == nil {
		t.Fatal("expected error for unregistered family")
	}
}

func TestRefreshAll_IndependentOutcomes(t *testing.T) {
	reg := registry.NewRegistry()
	healthy := &fakeConnector{
		family: base.FamilyWebhookGeneric,
		result: &base.ProbeResult{ItemCount: 1, Message: "1 item(s) found"},
	}
	broken := &fakeConnector{
		family: base.FamilyChatBot,
		result: &base.ProbeResult{NoItems: true, Message: "webhook reachable"},
	}
	o := New(reg, map[base.Family]base.Connector{
		base.FamilyWebhookGeneric: healthy,
		base.FamilyChatBot:        broken,
	})

	healthyID := connect(t, reg, o, base.FamilyWebhookGeneric)
	brokenID := connect(t, reg, o, base.FamilyChatBot)

	broken.err = base.NewConnectorError(broken.family, "probe", base.KindTimeout, "probe timed out", nil)

	report := o.RefreshAll(context.Background())
	if report.Total != 2 || report.Succeeded != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	h, _ := reg.Get(healthyID)
	if h.Status != registry.StatusConnected {
		t.Errorf("healthy connection should stay connected, got %s", h.Status)
	}
	b, _ := reg.Get(brokenID)
	if b.Status != registry.StatusError {
		t.Errorf("broken connection should be errored, got %s", b.Status)
	}
}

func TestRefreshAll_WaitsForSlowProbe(t *testing.T) {
	reg := registry.NewRegistry()
	slow := &fakeConnector{
		family: base.FamilyRelationalDB,
		result: &base.ProbeResult{ItemCount: 3, Message: "3 database(s) found"},
	}
	o := New(reg, map[base.Family]base.Connector{base.FamilyRelationalDB: slow})

	id := connect(t, reg, o, base.FamilyRelationalDB)
	slow.delay = 80 * time.Millisecond

	start := time.Now()
	report := o.RefreshAll(context.Background())
	if elapsed := time.Since(start); elapsed < slow.delay {
		t.Errorf("refresh returned before the slow probe landed (%s)", elapsed)
	}
	if report.Succeeded != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	got, _ := reg.Get(id)
	if got.Status != registry.StatusConnected {
		t.Errorf("expected connected status, got %s", got.Status)
	}
}

func TestRefreshAll_SkipsDisconnected(t *testing.T) {
	reg := registry.NewRegistry()
	fake := &fakeConnector{
		family: base.FamilyWebhookGeneric,
		result: &base.ProbeResult{ItemCount: 1, Message: "1 item(s) found"},
	}
	o := New(reg, map[base.Family]base.Connector{base.FamilyWebhookGeneric: fake})

	id := connect(t, reg, o, base.FamilyWebhookGeneric)
	if err := reg.Disconnect(id); err != nil {
		t.Fatalf("failed to disconnect: %v", err)
	}
	before := atomic.LoadInt32(&fake.calls)

	report := o.RefreshAll(context.Background())
	if report.Total != 0 {
		t.Fatalf("disconnected records are not refresh candidates: %+v", report)
	}
	if atomic.LoadInt32(&fake.calls) != before {
		t.Error("disconnected connection was probed")
	}
}
