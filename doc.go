// Package goAccount provides an authentication-gated account console: given an optional
// authenticated principal and a requested account page, it either renders the page through
// a page-builder collaborator or hands the request to a login redirect.
//
// The package is designed for concurrent server workloads: a [Console] is built once via
// [Builder.Build] and is safe for concurrent use. Each request gets its own [Dispatcher]
// from [Console.NewDispatcher]; dispatchers are cheap, request scoped, and share no
// mutable state.
//
// # Architecture boundaries
//
// goAccount is the public surface. It exposes [Console], [Dispatcher], [Builder], [Config],
// the closed [PageKind] set, and the collaborator interfaces ([PageBuilder],
// [SessionProvider], [LoginRedirector], [ErrorPager], [UserProvider]). Session encoding,
// attempt limiting and audit dispatch live under internal/ and session/.
//
// # What this package must NOT do
//
//   - Render HTML or negotiate locales (package pages does that behind [PageBuilder]).
//   - Speak HTTP beyond the status/header/body triple in [Response] (package httpapi does).
//   - Wrap or retry collaborator failures: they are returned to the caller unchanged.
//   - Import any sub-package that re-imports goAccount (no import cycles).
package goAccount
