// Package auth issues and verifies the bearer tokens that guard the
// gateway API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. The subject
// names the caller and ends up as the actor in the audit trail. A static
// role model decides what the caller may do:
//
//   - viewer: read terminal data
//   - operator: viewer plus user, clock and door commands
//   - admin: operator plus restart and the audit trail
//
// There is no token store; tokens are checked by signature and expiry
// only and are minted with the "token" CLI command.
package auth
