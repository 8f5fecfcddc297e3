// Package shapediver talks to the ShapeDiver Geometry Backend API v2.
//
// Client covers the raw HTTP exchanges: ticket sessions, upload requests and
// transfers, output computation with the delay-driven cache poll, and result
// downloads. Idempotent calls (result polls and downloads) are retried on
// throttling and server errors; session, upload, and customization requests
// are sent exactly once.
//
// Remote adapts Client to the conversion package's remote interfaces and
// tags failures with the services error markers.
package shapediver
