// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package registry

import (
	"errors"
	"testing"

	"clouddeck/hub/connectors/base"
)

func webhookCreds(url string) *base.Credentials {
	return &base.Credentials{Webhook: &base.WebhookCredentials{URL: url}}
}

func apiCreds(url string) *base.Credentials {
	return &base.Credentials{API: &base.APICredentials{APIURL: url, APIKey: "key"}}
}

func TestRegistry_Add_Singleton(t *testing.T) {
	r := NewRegistry()

	conn, err := r.Add(base.FamilyWebhookGeneric, "", webhookCreds("https://x/y"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.ID != "webhook-generic" {
		t.Errorf("expected id 'webhook-generic', got %s", conn.ID)
	}
	if conn.Status != StatusConnecting {
		t.Errorf("expected connecting status, got %s", conn.Status)
	}
}

func TestRegistry_Add_SingletonRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add(base.FamilyChatBot, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := r.Add(base.FamilyChatBot, "", nil)
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	var ce *base.ConnectorError
	if !errors.As(err, &ce) || ce.Kind != base.KindDuplicate {
		t.Fatalf("expected duplicate kind, got %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("registry must be unchanged after a rejected add, got %d connections", r.Count())
	}
}

func TestRegistry_Add_MultiInstanceNumbering(t *testing.T) {
	r := NewRegistry()

	first, _ := r.Add(base.FamilyWorkflowAPI, "", apiCreds("https://one"))
	second, _ := r.Add(base.FamilyWorkflowAPI, "", apiCreds("https://two"))
	third, _ := r.Add(base.FamilyWorkflowAPI, "", apiCreds("https://three"))

	if first.ID != "workflow-api" || second.ID != "workflow-api-2" || third.ID != "workflow-api-3" {
		t.Errorf("unexpected ids: %s, %s, %s", first.ID, second.ID, third.ID)
	}
	if first.DisplayName != "workflow-api" || second.DisplayName != "workflow-api 2" {
		t.Errorf("unexpected display names: %q, %q", first.DisplayName, second.DisplayName)
	}

	seen := map[string]bool{first.ID: true, second.ID: true, third.ID: true}
	if len(seen) != 3 {
		t.Error("expected 3 distinct ids for sequential adds")
	}
}

// Interior removal does not renumber survivors, so the count-based display
// number of a new add can repeat a survivor's. This is the numbering scheme
// the dashboard has always had; the test documents it rather than fixing
// it. Ids stay unique regardless.
func TestRegistry_Add_MultiInstanceSuffixReuseAfterInteriorRemoval(t *testing.T) {
	r := NewRegistry()
	r.Add(base.FamilyWorkflowAPI, "", apiCreds("https://one"))
	second, _ := r.Add(base.FamilyWorkflowAPI, "", apiCreds("https://two"))
	third, _ := r.Add(base.FamilyWorkflowAPI, "", apiCreds("https://three"))

	if err := r.Remove(second.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fourth, err := r.Add(base.FamilyWorkflowAPI, "", apiCreds("https://four"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Two matching ids remain, so the new display number is 3 — the same
	// label the survivor already carries.
	if fourth.DisplayName != "workflow-api 3" || third.DisplayName != "workflow-api 3" {
		t.Errorf("expected duplicate display number 3, got %q and %q",
			third.DisplayName, fourth.DisplayName)
	}
	if fourth.ID == third.ID {
		t.Fatalf("ids must stay unique, both got %s", fourth.ID)
	}
	if fourth.ID != "workflow-api-4" {
		t.Errorf("expected id advanced past the survivor, got %s", fourth.ID)
	}
	if r.Count() != 3 {
		t.Errorf("expected 3 live connections, got %d", r.Count())
	}
}

func TestRegistry_SetStatus_ErrorClearsProbeResult(t *testing.T) {
	r := NewRegistry()
	conn, _ := r.Add(base.FamilyWorkflowAPI, "", apiCreds("https://one"))

	result := &base.ProbeResult{Items: []base.Item{{Name: "wf"}}, ItemCount: 1, Message: "1 workflow(s) found"}
	if err := r.SetStatus(conn.ID, StatusConnected, result.Message, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := r.Get(conn.ID)
	if got.ProbeResult == nil || got.ProbeResult.ItemCount != 1 {
		t.Fatal("expected probe result after success")
	}

	if err := r.SetStatus(conn.ID, StatusError, "timeout", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ = r.Get(conn.ID)
	if got.ProbeResult != nil {
		t.Error("error status must clear stale probe payload")
	}
	if got.StatusMessage != "timeout" {
		t.Errorf("expected error message retained, got %q", got.StatusMessage)
	}
}

func TestRegistry_SetStatus_ConnectedSetLockstep(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Add(base.FamilyWebhookGeneric, "", webhookCreds("https://a"))
	b, _ := r.Add(base.FamilyWorkflowAPI, "", apiCreds("https://b"))

	r.SetStatus(a.ID, StatusConnected, "ok", &base.ProbeResult{NoItems: true, Message: "ok"})
	r.SetStatus(b.ID, StatusConnected, "ok", &base.ProbeResult{NoItems: true, Message: "ok"})

	if got := len(r.ConnectedIDs()); got != 2 {
		t.Fatalf("expected 2 connected ids, got %d", got)
	}

	r.SetStatus(a.ID, StatusError, "down", nil)
	ids := r.ConnectedIDs()
	if len(ids) != 1 || ids[0] != b.ID {
		t.Errorf("expected connected set to track status mutations, got %v", ids)
	}
}

func TestRegistry_IdempotentReconnect(t *testing.T) {
	r := NewRegistry()
	conn, _ := r.Add(base.FamilyWorkflowAPI, "", apiCreds("https://one"))

	for i := 0; i < 3; i++ {
		token, err := r.BeginProbe(conn.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !r.CompleteProbe(conn.ID, token, StatusConnected, "12 workflow(s) found",
			&base.ProbeResult{ItemCount: 12, Message: "12 workflow(s) found"}) {
			t.Fatal("expected probe result to apply")
		}
	}

	got, _ := r.Get(conn.ID)
	if got.ID != conn.ID || got.Family != conn.Family || got.DisplayName != conn.DisplayName {
		t.Error("re-probing with unchanged credentials must not change identity fields")
	}
}

func TestRegistry_CompleteProbe_DiscardsStaleToken(t *testing.T) {
	r := NewRegistry()
	conn, _ := r.Add(base.FamilyWebhookGeneric, "", webhookCreds("https://a"))

	stale, _ := r.BeginProbe(conn.ID)
	// A later transition (user disconnect) invalidates the in-flight probe.
	if err := r.Disconnect(conn.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.CompleteProbe(conn.ID, stale, StatusConnected, "ok", &base.ProbeResult{NoItems: true}) {
		t.Error("stale probe result must be discarded")
	}

	got, _ := r.Get(conn.ID)
	if got.Status != StatusDisconnected {
		t.Errorf("expected disconnected to win, got %s", got.Status)
	}
}

func TestRegistry_CompleteProbe_RemovedConnection(t *testing.T) {
	r := NewRegistry()
	conn, _ := r.Add(base.FamilyWebhookGeneric, "", webhookCreds("https://a"))

	token, _ := r.BeginProbe(conn.ID)
	r.Remove(conn.ID)

	if r.CompleteProbe(conn.ID, token, StatusConnected, "ok", nil) {
		t.Error("probe result for a removed connection must be discarded")
	}
}

func TestRegistry_Disconnect_RetainsCredentials(t *testing.T) {
	r := NewRegistry()
	conn, _ := r.Add(base.FamilyWebhookGeneric, "", webhookCreds("https://a"))
	r.SetStatus(conn.ID, StatusConnected, "ok", &base.ProbeResult{NoItems: true, Message: "ok"})

	if err := r.Disconnect(conn.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := r.Get(conn.ID)
	if got.Status != StatusDisconnected {
		t.Errorf("expected disconnected, got %s", got.Status)
	}
	if got.ProbeResult != nil {
		t.Error("disconnect must clear runtime probe data")
	}
	if got.Credentials == nil || got.Credentials.Webhook == nil || got.Credentials.Webhook.URL != "https://a" {
		t.Error("disconnect must retain credentials for one-click reconnect")
	}
}

func TestRegistry_Update_CredentialEditInvalidatesProbe(t *testing.T) {
	r := NewRegistry()
	conn, _ := r.Add(base.FamilyWebhookGeneric, "", webhookCreds("https://a"))

	token, _ := r.BeginProbe(conn.ID)
	if _, err := r.Update(conn.ID, Patch{Credentials: webhookCreds("https://b")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.CompleteProbe(conn.ID, token, StatusConnected, "ok", nil) {
		t.Error("probe started before a credential edit must be discarded")
	}
}

func TestRegistry_SnapshotRestore_RoundTrip(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Add(base.FamilyWebhookGeneric, "", webhookCreds("https://a"))
	b, _ := r.Add(base.FamilyWorkflowAPI, "custom name", apiCreds("https://b"))
	r.SetStatus(a.ID, StatusConnected, "ok", &base.ProbeResult{NoItems: true, Message: "ok"})

	snap := r.Snapshot()

	restored := NewRegistry()
	restored.Restore(snap)

	if restored.Count() != 2 {
		t.Fatalf("expected 2 connections after restore, got %d", restored.Count())
	}
	ids := restored.ConnectedIDs()
	if len(ids) != 1 || ids[0] != a.ID {
		t.Errorf("expected connected set rebuilt from statuses, got %v", ids)
	}
	got, err := restored.Get(b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DisplayName != "custom name" {
		t.Errorf("expected display name preserved, got %q", got.DisplayName)
	}
}

func TestRegistry_AdoptRemote_LocalWins(t *testing.T) {
	r := NewRegistry()
	local, _ := r.Add(base.FamilyWebhookGeneric, "local name", webhookCreds("https://local"))

	remote := []*Connection{
		{ID: local.ID, Family: base.FamilyWebhookGeneric, DisplayName: "remote name",
			Credentials: webhookCreds("https://remote")},
		{ID: "workflow-api", Family: base.FamilyWorkflowAPI, DisplayName: "workflow-api",
			Credentials: apiCreds("https://remote-only")},
	}

	if adopted := r.AdoptRemote(remote); adopted != 1 {
		t.Fatalf("expected 1 adopted entry, got %d", adopted)
	}

	got, _ := r.Get(local.ID)
	if got.DisplayName != "local name" || got.Credentials.Webhook.URL != "https://local" {
		t.Error("entries present in both stores must keep the local copy")
	}
	if _, err := r.Get("workflow-api"); err != nil {
		t.Error("remote-only entries must be adopted")
	}
}

func TestRegistry_AdoptRemote_SkipsUnknownFamily(t *testing.T) {
	r := NewRegistry()

	remote := []*Connection{
		{ID: "old-thing", Family: "retired-family", DisplayName: "old thing"},
		{ID: "workflow-api", Family: base.FamilyWorkflowAPI, DisplayName: "workflow-api",
			Credentials: apiCreds("https://remote")},
	}

	if adopted := r.AdoptRemote(remote); adopted != 1 {
		t.Fatalf("expected only the known family adopted, got %d", adopted)
	}
	if _, err := r.Get("old-thing"); !errors.Is(err, ErrNotFound) {
		t.Error("a record with no known connector must not be adopted")
	}
	if _, err := r.Get("workflow-api"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegistry_Notify_FiresOnMutation(t *testing.T) {
	r := NewRegistry()
	var versions []int64
	r.SetOnSnapshot(func(snap *Snapshot) {
		versions = append(versions, snap.Version)
	})

	conn, _ := r.Add(base.FamilyWebhookGeneric, "", webhookCreds("https://a"))
	r.SetStatus(conn.ID, StatusConnected, "ok", &base.ProbeResult{NoItems: true, Message: "ok"})
	r.Remove(conn.ID)

	if len(versions) != 3 {
		t.Fatalf("expected 3 snapshot notifications, got %d", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Error("snapshot versions must be monotonic")
		}
	}
}

func TestRegistry_Get_NotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
