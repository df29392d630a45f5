// Package session provides Redis-backed persistence of realm login sessions
// and their compact binary encoding.
//
// # Key layout
//
//   - prefix:realm:sid      encoded [Session], TTL bound to the session deadline
//   - prefixu:realm:user    set of session IDs for a user
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It does NOT
// interpret identity tokens or decide who may list or end a session; the console does.
//
// # What this package must NOT do
//
//   - Import goAccount, jwt, or permission (no upward imports).
//   - Store credentials in [Session] fields.
package session
