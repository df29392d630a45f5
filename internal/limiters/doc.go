// Package limiters provides the credential attempt limiters used by the
// password and TOTP update forms, built on the internal/rate primitives.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import goAccount or any sibling internal package except internal/rate.
//   - Decide what a tripped limit means for the page; the console does.
package limiters
