// Package permission resolves token roles to permission grants.
//
// A [Registry] gives each permission name a bit, [Roles] maps role names
// to sets of those bits, and [Grants] is the resolved set for one
// principal. Registrations happen at build time; both tables are frozen
// before the console serves requests.
package permission
