// Package stores provides the Redis-backed account record store used by the
// demo user provider.
//
// # Design
//
// Each user is one versioned, binary-encoded record under
// prefix:realm:user. Mutations run as WATCH/MULTI optimistic transactions
// and retry on contention. Records carry the TOTP secret, so the encoding
// is never logged.
//
// # What this package must NOT do
//
//   - Import goAccount or any sibling internal package.
//   - Hash passwords or verify codes; callers hand in final values.
package stores
