// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads clipgate configuration.
//
// Precedence is ENV > File > Defaults. The YAML file is parsed strictly:
// unknown keys are rejected. Environment variables use the CLIPGATE_ prefix.
package config
