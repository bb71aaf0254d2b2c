// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package main is the entry point for the CloudDeck Hub service.
//
// The Hub manages the dashboard's integration connections:
//   - registers and probes connections across all integration families
//   - keeps the local connection store authoritative and mirrors it to the
//     account-scoped remote record
//   - refreshes connection health on a schedule and on demand
//
// Usage:
//
//	./hub
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8090)
//	REDIS_ADDR - local store address (default: localhost:6379)
//	REMOTE_SYNC_URL - remote record service base URL (optional)
//	SESSION_TOKEN - bearer token for the remote record service
//	SEED_FILE - YAML seed file applied on first boot (optional)
package main

import (
	"clouddeck/hub/hub"
)

func main() {
	hub.Run()
}
