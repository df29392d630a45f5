// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash on the next successful password change.
//
// # Architecture boundaries
//
// This package owns hashing, verification and the [Policy] on length. Reuse checks
// and attempt limiting belong to the console.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other goAccount package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
