// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package hub wires the connection registry, the dual-store sync engine,
// the refresh scheduler and the integrations HTTP API into one service.
package hub
