// Package gateway assembles and serves the call-monitoring HTTP surface.
//
// # Endpoints
//
// The call API lives under /api/calls:
//
//   - POST /api/calls                 starts a call session
//   - GET  /api/calls                 lists active sessions
//   - GET  /api/calls/{id}            returns one session's snapshot
//   - POST /api/calls/{id}/chunks     uploads one audio chunk
//   - POST /api/calls/{id}/finalize   completes a session
//
// GET /ws/call_monitoring/{id} upgrades to a WebSocket carrying the call's
// event stream. /health and /health/ready are unauthenticated.
//
// # Auth
//
// When auth.jwt_secret is configured every API and WebSocket route requires a
// bearer token (or a token query parameter, for browser WebSocket clients).
// Without a secret the gateway runs open, which is intended for local
// development only.
package gateway
