// Package services defines shared utilities consumed by the conversion
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, conversion modes, and stage
//     names for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the user-visible failure kinds reported by the CLI.
//
// Use these helpers when wiring new pipeline steps so failure reporting and
// observability stay uniform across the tool.
package services
