// Package api implements the HTTP REST API of the access gateway.
//
// This package provides:
//   - User, attendance and device endpoints for biometric terminals
//   - Door and voice commands with tcp/udp transport fallback
//   - Health and status probes that always answer 200
//   - A paginated view of the audit trail
//   - Middleware stack (request ID, logging, recovery, CORS, body limit,
//     optional bearer auth and per-client rate limiting)
//
// # Addressing
//
// Every terminal route takes its target from query parameters, falling
// back to the configured defaults: ip (or host), port, comm_key, timeout
// in seconds, force_udp and ommit_ping (or omit_ping). One route set
// serves any number of terminals.
//
// # Errors
//
// Failures use the envelope {"error": "message"}. Terminal error kinds map
// to status codes here and nowhere else: not found is 404, unsupported is
// 501, malformed input is 400 and everything else is 500.
//
// # Security
//
// With security.jwt.secret set, /api/v1 requires a Bearer token minted by
// the token command. The token subject is recorded as the actor of every
// audited operation. An empty secret leaves the API open for trusted LAN
// deployments.
package api
