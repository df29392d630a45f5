// Package httpapi mounts the account console on a chi router.
//
// Every console page is served under /realms/{realm}/account. The handler
// resolves the optional identity of the caller, binds a state-checker token
// to the browser with a signed cookie, and hands the request to a
// goAccount.Dispatcher. Unauthenticated requests are answered by the
// console's login redirector; see [LoginRedirect] for the default one.
package httpapi
