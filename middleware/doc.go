// Package middleware exposes HTTP middleware that resolves the account
// console's optional authenticated principal.
//
// # Guards
//
//   - [Guard] resolves an identity token with an explicit validation mode.
//   - [JWTOnly] verifies the token signature only; no Redis call.
//   - [Strict] also requires the token's session in the session store.
//
// A guard reads the token from the Authorization header or the identity
// cookie, calls Console.Authenticate, and attaches the resulting
// AuthContext to the request context. Missing or unusable credentials do
// not reject the request: it continues unauthenticated and the console
// dispatcher sends it to the login flow.
//
// [ClientInfo] records the caller's IP and user agent for audit events and
// new sessions.
package middleware
