// Package jwt issues and verifies the identity tokens that carry an
// authenticated principal into the account console.
//
// Tokens name the realm, user (subject), login session and roles. Ed25519
// and HS256 are supported, with optional kid-based key rotation through
// Config.VerifyKeys.
package jwt
