// Package config loads, normalizes, and validates the TOML configuration that
// drives the compositing pipeline, detector, refinement client, and logging.
package config
