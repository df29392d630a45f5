package goAccount

import "errors"

var (
	// ErrUnknownPageKind is returned by Dispatch for a kind outside the closed page set.
	ErrUnknownPageKind = errors.New("unknown account page kind")
	// ErrConsoleNotReady is returned when a nil or unbuilt console is used.
	ErrConsoleNotReady = errors.New("account console not initialized")
	// ErrInvalidConfig wraps every error from [Config.Validate].
	ErrInvalidConfig = errors.New("invalid console config")
	ErrTokenInvalid  = errors.New("invalid identity token")
	// ErrSessionNotFound means a strict check found no live session for the token.
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionUnavailable = errors.New("session backend unavailable")
	ErrInvalidRouteMode   = errors.New("invalid route validation mode")
	// ErrPermissionDenied is recorded when the principal lacks the console permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStateCheckerMismatch is recorded when a form post carries a stale or missing state checker.
	ErrStateCheckerMismatch = errors.New("state checker mismatch")
	ErrFeatureDisabled      = errors.New("feature disabled")

	// Update form outcomes. These are recorded on audit events, never
	// returned from Dispatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordMissing    = errors.New("password missing")
	ErrPasswordMismatch   = errors.New("password confirmation does not match")
	ErrPasswordPolicy     = errors.New("password policy violation")
	ErrPasswordReuse      = errors.New("new password must be different from current password")
	ErrTOTPMissing        = errors.New("totp code missing")
	ErrTOTPInvalid        = errors.New("invalid totp code")
	ErrRateLimited        = errors.New("attempts rate limited")

	// ErrUserNotFound should be returned by UserProvider implementations for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserStoreUnavailable is returned by the Redis user provider when Redis fails.
	ErrUserStoreUnavailable = errors.New("user store unavailable")
)
