// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package base

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
)

// ProbeTimeout is the bounded deadline applied to every network-bound probe.
const ProbeTimeout = 15 * time.Second

// Family identifies the integration type a connector handles.
type Family string

const (
	FamilyWebhookGeneric Family = "webhook-generic"
	FamilyCloudDrive     Family = "cloud-drive"
	FamilyChatWebhook    Family = "chat-webhook"
	FamilyChatBot        Family = "chat-bot"
	FamilyRelationalDB   Family = "relational-db"
	FamilyWorkflowAPI    Family = "workflow-api"
	FamilyDeviceDB       Family = "device-db"
)

// Families lists every supported integration family.
func Families() []Family {
	return []Family{
		FamilyWebhookGeneric,
		FamilyCloudDrive,
		FamilyChatWebhook,
		FamilyChatBot,
		FamilyRelationalDB,
		FamilyWorkflowAPI,
		FamilyDeviceDB,
	}
}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	for _, known := range Families() {
		if f == known {
			return true
		}
	}
	return false
}

// MultiInstance reports whether the family allows multiple named instances.
// Workflow servers can be attached more than once (one per server); every
// other family is a singleton.
func (f Family) MultiInstance() bool {
	return f == FamilyWorkflowAPI
}

// Connector is implemented once per integration family. Validate checks
// credential shape without touching the network; Probe performs the minimal
// round-trip that proves connectivity and returns the canonical payload.
type Connector interface {
	Family() Family
	Validate(creds *Credentials) error
	Probe(ctx context.Context, creds *Credentials) (*ProbeResult, error)
}

// Credentials is the per-family credential bundle. Exactly one branch is
// populated, selected by the connection's family.
type Credentials struct {
	Webhook  *WebhookCredentials  `json:"webhook,omitempty" yaml:"webhook,omitempty"`
	Database *DatabaseCredentials `json:"database,omitempty" yaml:"database,omitempty"`
	API      *APICredentials      `json:"api,omitempty" yaml:"api,omitempty"`
	Chat     *ChatCredentials     `json:"chat,omitempty" yaml:"chat,omitempty"`
}

// WebhookCredentials configures webhook-generic, cloud-drive and
// chat-webhook connections.
type WebhookCredentials struct {
	URL    string `json:"url" yaml:"url" validate:"required,url"`
	Method string `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=GET POST"`
}

// DatabaseCredentials configures relational-db and device-db connections.
type DatabaseCredentials struct {
	Type     string `json:"type" yaml:"type" validate:"required,oneof=postgres mysql"`
	Host     string `json:"host" yaml:"host" validate:"required"`
	Port     int    `json:"port" yaml:"port" validate:"required,min=1,max=65535"`
	Username string `json:"username" yaml:"username" validate:"required"`
	Password string `json:"password" yaml:"password" validate:"required"`
	Database string `json:"database" yaml:"database" validate:"required"`
}

// APICredentials configures workflow-api connections (n8n-style servers).
type APICredentials struct {
	APIURL  string `json:"api_url" yaml:"api_url" validate:"required,url"`
	APIKey  string `json:"api_key" yaml:"api_key" validate:"required"`
	APIType string `json:"api_type,omitempty" yaml:"api_type,omitempty" validate:"omitempty,oneof=n8n generic"`
}

// ChatCredentials configures chat-bot connections. ChannelsURL is the
// discovery endpoint; SendURL is stored for the later send step and only
// validated here.
type ChatCredentials struct {
	ChannelsURL string `json:"channels_url" yaml:"channels_url" validate:"required,url"`
	SendURL     string `json:"send_url" yaml:"send_url" validate:"required,url"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs struct-tag validation and maps the first failure to a
// field-level validation error. It never performs network I/O.
func ValidateStruct(family Family, s interface{}) error {
	if err := validate.Struct(s); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return NewValidationError(family, fe.Field(), "failed '"+fe.Tag()+"' validation")
		}
		return NewValidationError(family, "", err.Error())
	}
	return nil
}

// Item is one entry of a probe's canonical item list (a file, workflow,
// channel or database).
type Item struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// ChildStatus is the state of a nested sub-service exposed by a provider
// (e.g. a drive provider exposing docs/sheets/slides).
type ChildStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
}

// ProbeResult is the normalized payload every connector resolves to,
// regardless of the upstream response shape.
type ProbeResult struct {
	Items     []Item        `json:"items,omitempty"`
	ItemCount int           `json:"item_count"`
	Message   string        `json:"message"`
	Children  []ChildStatus `json:"children,omitempty"`
	// NoItems marks an explicitly empty result so a connected state is
	// distinguishable from a missing payload.
	NoItems bool          `json:"no_items,omitempty"`
	Latency time.Duration `json:"latency_ns,omitempty"`
}
