// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package registry holds the source of truth for configured integrations:
// the connection records, their status transitions, and the instance
// numbering rules for families that allow multiple named servers.
package registry
