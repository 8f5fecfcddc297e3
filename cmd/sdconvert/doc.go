// Package main hosts the sdconvert CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into conversion
// pipeline runs against the ShapeDiver geometry backend, plus session
// inspection, preflight checks, mime type lookups, and configuration
// scaffolding. It centralizes .env and configuration resolution, logger
// construction, and remote client wiring so subcommands can focus on user
// experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
