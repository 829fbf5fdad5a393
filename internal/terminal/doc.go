// Package terminal talks to biometric attendance terminals on behalf of
// the HTTP API.
//
// Every operation follows the same shape: open a session to one
// terminal, do the work, close the session. WithSession owns that
// lifecycle, so a session is released exactly once whether the operation
// succeeds, fails, or panics. Probe layers a single transport fallback on
// top: the primary transport (normally TCP) first, then exactly one
// attempt over the secondary (normally UDP).
//
// The wire protocol itself lives behind the Driver interface. The
// simulator subpackage provides a SQLite-backed driver for development
// and integration tests; terminaltest provides an in-memory fake for unit
// tests.
//
// Results read from a terminal are normalised before they leave this
// package: strings are trimmed of device padding, attendance timestamps
// are placed in the site timezone, and the seven device identity fields
// are fetched independently so an unsupported field becomes null instead
// of failing the whole request.
//
// Nothing is cached. Each call reads fresh state from the terminal.
package terminal
