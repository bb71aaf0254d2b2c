// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package store persists connection state twice: a Redis-backed local image
// that is always written synchronously, and an account-scoped remote record
// mirrored best-effort behind a debounce window. The migration gate wipes
// both when the persisted schema version goes stale.
package store
