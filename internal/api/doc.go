// Package api hosts the HTTP server, middleware, and read-only handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/state for the live replicated state of the running publisher.
//   - GET /v1/sessions/{session_id}/frames and /state for persisted sessions
//     via the FrameRepository interface.
package api
