// Package config loads, normalizes, and validates sdconvert configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours the
// environment fallbacks used by the converter models (MODEL_VIEW_URL and the
// per-conversion BACKEND_TICKET_* variables). The Config type centralizes the
// endpoint credentials, HTTP and polling limits, and logging preferences.
//
// Always obtain settings through this package so downstream code receives
// trimmed values, canonical log formats, and clear validation errors.
package config
