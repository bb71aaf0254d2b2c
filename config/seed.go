// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"clouddeck/hub/connectors/base"
)

// SeedFile is the root structure of the integration seed file. Seeds are a
// bootstrap convenience: they are applied only when the hub starts with an
// empty registry, never merged into existing state.
type SeedFile struct {
	Version      string                     `yaml:"version"`
	Integrations map[string]IntegrationSeed `yaml:"integrations,omitempty"`
}

// IntegrationSeed is one pre-configured integration in the seed file.
type IntegrationSeed struct {
	Family      string         `yaml:"family"`
	Enabled     bool           `yaml:"enabled"`
	DisplayName string         `yaml:"display_name,omitempty"`
	Credentials CredentialSeed `yaml:"credentials,omitempty"`
}

// CredentialSeed is the union of credential fields across families. Only the
// fields the named family needs are read.
type CredentialSeed struct {
	URL    string `yaml:"url,omitempty"`
	Method string `yaml:"method,omitempty"`

	Type     string `yaml:"type,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`

	APIURL  string `yaml:"api_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	APIType string `yaml:"api_type,omitempty"`

	ChannelsURL string `yaml:"channels_url,omitempty"`
	SendURL     string `yaml:"send_url,omitempty"`
}

// Credentials converts the seed fields into the runtime credential union for
// the given family.
func (s *IntegrationSeed) CredentialsFor(family base.Family) *base.Credentials {
	switch family {
	case base.FamilyRelationalDB, base.FamilyDeviceDB:
		return &base.Credentials{Database: &base.DatabaseCredentials{
			Type:     s.Credentials.Type,
			Host:     s.Credentials.Host,
			Port:     s.Credentials.Port,
			Username: s.Credentials.Username,
			Password: s.Credentials.Password,
			Database: s.Credentials.Database,
		}}
	case base.FamilyWorkflowAPI:
		return &base.Credentials{API: &base.APICredentials{
			APIURL:  s.Credentials.APIURL,
			APIKey:  s.Credentials.APIKey,
			APIType: s.Credentials.APIType,
		}}
	case base.FamilyChatBot:
		return &base.Credentials{Chat: &base.ChatCredentials{
			ChannelsURL: s.Credentials.ChannelsURL,
			SendURL:     s.Credentials.SendURL,
		}}
	default:
		return &base.Credentials{Webhook: &base.WebhookCredentials{
			URL:    s.Credentials.URL,
			Method: s.Credentials.Method,
		}}
	}
}

// SeedLoader loads integration seeds from a YAML file.
type SeedLoader struct {
	filePath string
	file     *SeedFile
}

// NewSeedLoader creates a loader and parses the file immediately.
func NewSeedLoader(filePath string) (*SeedLoader, error) {
	loader := &SeedLoader{filePath: filePath}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

func (l *SeedLoader) reload() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", l.filePath, err)
	}

	expanded := expandEnvVars(string(data))

	var file SeedFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := ValidateSeedFile(&file); err != nil {
		return err
	}

	l.file = &file
	return nil
}

// Reload re-reads the seed file.
func (l *SeedLoader) Reload() error {
	return l.reload()
}

// SeedEntry pairs a seed with its stable name for deterministic ordering.
type SeedEntry struct {
	Name string
	Seed IntegrationSeed
}

// Seeds returns the enabled seeds sorted by name.
func (l *SeedLoader) Seeds() []SeedEntry {
	entries := make([]SeedEntry, 0, len(l.file.Integrations))
	for name, seed := range l.file.Integrations {
		if !seed.Enabled {
			continue
		}
		entries = append(entries, SeedEntry{Name: name, Seed: seed})
	}
	// Map iteration order is random; instance numbering must not be.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Name > entries[j].Name; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
	return entries
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string.
// Supports ${VAR_NAME}, $VAR_NAME and ${VAR_NAME:-default} syntax; undefined
// variables without a default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

// ValidateSeedFile validates the structure of a seed file.
func ValidateSeedFile(file *SeedFile) error {
	if file.Version == "" {
		return fmt.Errorf("seed file must specify a version")
	}

	for name, seed := range file.Integrations {
		family := base.Family(seed.Family)
		if !family.Valid() {
			return fmt.Errorf("integration '%s' has unknown family '%s'", name, seed.Family)
		}
	}
	return nil
}

// GenerateExampleSeedFile generates an example seed file.
func GenerateExampleSeedFile() string {
	return `# CloudDeck Hub integration seeds
# Applied once, on first boot with an empty registry.
# Environment variables can be referenced using ${VAR_NAME} or
# ${VAR_NAME:-default} syntax.

version: "1"

integrations:
  home_webhook:
    family: webhook-generic
    enabled: true
    display_name: "Home webhook"
    credentials:
      url: ${HOME_WEBHOOK_URL}
      method: GET

  media_db:
    family: relational-db
    enabled: false  # Enable when configured
    credentials:
      type: postgres
      host: ${MEDIA_DB_HOST:-localhost}
      port: 5432
      username: ${MEDIA_DB_USER:-clouddeck}
      password: ${MEDIA_DB_PASSWORD}
      database: media

  automation:
    family: workflow-api
    enabled: false  # Enable when configured
    credentials:
      api_url: ${N8N_URL:-http://localhost:5678}
      api_key: ${N8N_API_KEY}
      api_type: n8n
`
}
