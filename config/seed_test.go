// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"clouddeck/hub/connectors/base"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}
	return path
}

func TestSeedLoader_LoadsEnabledSeeds(t *testing.T) {
	path := writeSeedFile(t, `
version: "1"
integrations:
  home_webhook:
    family: webhook-generic
    enabled: true
    display_name: "Home webhook"
    credentials:
      url: https://hooks.local/x
      method: POST
  disabled_drive:
    family: cloud-drive
    enabled: false
    credentials:
      url: https://drive.local
`)

	loader, err := NewSeedLoader(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seeds := loader.Seeds()
	if len(seeds) != 1 {
		t.Fatalf("expected 1 enabled seed, got %d", len(seeds))
	}
	if seeds[0].Name != "home_webhook" {
		t.Errorf("unexpected seed name: %s", seeds[0].Name)
	}

	creds := seeds[0].Seed.CredentialsFor(base.FamilyWebhookGeneric)
	if creds.Webhook == nil || creds.Webhook.URL != "https://hooks.local/x" {
		t.Errorf("unexpected credentials: %+v", creds)
	}
	if creds.Webhook.Method != "POST" {
		t.Errorf("unexpected method: %s", creds.Webhook.Method)
	}
}

func TestSeedLoader_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_SEED_URL", "https://hooks.local/from-env")

	path := writeSeedFile(t, `
version: "1"
integrations:
  hook:
    family: webhook-generic
    enabled: true
    credentials:
      url: ${TEST_SEED_URL}
      method: ${TEST_SEED_METHOD:-GET}
`)

	loader, err := NewSeedLoader(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seed := loader.Seeds()[0].Seed
	if seed.Credentials.URL != "https://hooks.local/from-env" {
		t.Errorf("env var not expanded: %s", seed.Credentials.URL)
	}
	if seed.Credentials.Method != "GET" {
		t.Errorf("default value not applied: %s", seed.Credentials.Method)
	}
}

func TestSeedLoader_DeterministicOrder(t *testing.T) {
	path := writeSeedFile(t, `
version: "1"
integrations:
  zeta:
    family: workflow-api
    enabled: true
  alpha:
    family: workflow-api
    enabled: true
  mid:
    family: workflow-api
    enabled: true
`)

	loader, err := NewSeedLoader(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seeds := loader.Seeds()
	want := []string{"alpha", "mid", "zeta"}
	for i, name := range want {
		if seeds[i].Name != name {
			t.Fatalf("expected order %v, got %s at %d", want, seeds[i].Name, i)
		}
	}
}

func TestSeedLoader_RejectsUnknownFamily(t *testing.T) {
	path := writeSeedFile(t, `
version: "1"
integrations:
  bogus:
    family: punch-cards
    enabled: true
`)

	if _, err := NewSeedLoader(path); err == nil {
		t.Fatal("expected an error for an unknown family")
	}
}

func TestSeedLoader_RequiresVersion(t *testing.T) {
	path := writeSeedFile(t, `
integrations:
  hook:
    family: webhook-generic
    enabled: true
`)

	if _, err := NewSeedLoader(path); err == nil {
		t.Fatal("expected an error for a missing version")
	}
}

func TestCredentialsFor_DatabaseFamily(t *testing.T) {
	seed := IntegrationSeed{
		Family: "relational-db",
		Credentials: CredentialSeed{
			Type: "postgres", Host: "db.local", Port: 5432,
			Username: "deck", Password: "secret", Database: "media",
		},
	}

	creds := seed.CredentialsFor(base.FamilyRelationalDB)
	if creds.Database == nil || creds.Database.Host != "db.local" || creds.Database.Port != 5432 {
		t.Errorf("unexpected credentials: %+v", creds)
	}
}

func TestGenerateExampleSeedFile_IsValid(t *testing.T) {
	path := writeSeedFile(t, GenerateExampleSeedFile())
	if _, err := NewSeedLoader(path); err != nil {
		t.Fatalf("example seed file must parse: %v", err)
	}
}
