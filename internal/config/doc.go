// ABOUTME: Package doc for config.
// ABOUTME: YAML configuration with env expansion for console and stub backend.

// Package config loads the console configuration from YAML.
//
// Configuration files support ${VAR} environment variable expansion and
// duration strings ("1s", "500ms"). Missing files fall back to defaults via
// LoadOrDefault so the console runs with zero setup against a local stub.
package config
