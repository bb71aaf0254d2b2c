// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package base defines the contract every integration connector implements:
// credential validation, a bounded connectivity probe, the normalized probe
// payload, and the closed error taxonomy surfaced to the dashboard.
package base
