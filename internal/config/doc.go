// Package config provides configuration management for resonance.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. The file is created with defaults on first use and
// mirrors the structs defined here, including every pipeline stage under
// the brain key.
//
// # Environment Variables
//
// Any key present in the file can be overridden with the RESONANCE_ prefix.
// Nested fields are separated by underscores.
//
// Examples:
//   - RESONANCE_LOGGING_LEVEL=debug
//   - RESONANCE_STORAGE_DB_PATH=/tmp/resonance.db
//   - RESONANCE_LLM_ENABLED=true
//
// # Validation
//
// Validate wraps ErrInvalid for every failure, so callers can test with
// errors.Is. Besides the per-stage checks it enforces that the convergence
// weights sum to 1, that strategy thresholds are ordered, and that cluster
// tiers never increase.
package config
