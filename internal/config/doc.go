// Package config loads, normalizes, and validates webupload configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// WEBUPLOAD_API_TOKEN and WEBUPLOAD_WORKERS_DIR. The Config type centralizes
// every knob the engine and the CLIs need: state and staging directories, the
// service to worker mapping, configured accounts and the monitors that feed the
// engine.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
