// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package refresh re-probes configured connections, concurrently for full
// passes, with per-probe tokens guarding against stale results.
package refresh
