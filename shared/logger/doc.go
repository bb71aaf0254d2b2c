// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package logger provides structured JSON logging shared by all hub
// components. Every entry carries the component, instance and container
// identity so aggregated logs can be filtered per deployment.
package logger
