// Package internal holds helpers private to goAccount: session IDs
// and state-checker tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: credential attempt limiters (password, TOTP)
//   - logging: zerolog process logger with optional file rotation
//   - rate: Redis fixed-window counter
//
// # What this package must NOT do
//
//   - Export types that appear in the public goAccount API.
package internal
