package goAccount

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goAccount/internal/limiters"
	"github.com/MrEthical07/goAccount/password"
)

const (
	auditEventUpdatePassword      = "update_password"
	auditEventUpdatePasswordError = "update_password_error"
	auditEventUpdateTOTP          = "update_totp"
	auditEventUpdateTOTPError     = "update_totp_error"
	auditEventRemoveTOTP          = "remove_totp"
	auditEventLogoutOthers        = "logout_other_sessions"
	auditEventAccessDenied        = "account_access_denied"
)

// AuditErrorCode is the stable error value recorded on failed account events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_user_credentials"
	auditErrPasswordMissing    AuditErrorCode = "password_missing"
	auditErrPasswordConfirm    AuditErrorCode = "password_confirm_error"
	auditErrPasswordRejected   AuditErrorCode = "password_rejected"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrTOTPMissing        AuditErrorCode = "totp_missing"
	auditErrTOTPInvalid        AuditErrorCode = "invalid_totp"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidState       AuditErrorCode = "invalid_state"
	auditErrPermissionDenied   AuditErrorCode = "not_allowed"
	auditErrFeatureDisabled    AuditErrorCode = "feature_disabled"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit records one account event. Events are dropped entirely when the
// Events feature is off.
func (c *Console) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	auth *AuthContext,
	err error,
	detailsBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil || !c.config.Features.Events {
		return
	}

	var details map[string]string
	if detailsBuilder != nil {
		details = detailsBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		ClientID:  c.config.Console.ClientID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Details:   details,
	}
	if auth != nil {
		event.RealmID = auth.Realm.ID
		event.UserID = auth.User.ID
		event.SessionID = auth.SessionID
		if auth.Client.ClientID != "" {
			event.ClientID = auth.Client.ClientID
		}
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrPasswordMissing):
		return auditErrPasswordMissing
	case errors.Is(err, ErrPasswordMismatch):
		return auditErrPasswordConfirm
	case errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, password.ErrTooShort),
		errors.Is(err, password.ErrTooLong):
		return auditErrPasswordRejected
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrTOTPMissing):
		return auditErrTOTPMissing
	case errors.Is(err, ErrTOTPInvalid):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, limiters.ErrAttemptsExceeded):
		return auditErrRateLimited
	case errors.Is(err, ErrStateCheckerMismatch):
		return auditErrInvalidState
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrFeatureDisabled):
		return auditErrFeatureDisabled
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrSessionUnavailable),
		errors.Is(err, ErrUserStoreUnavailable),
		errors.Is(err, limiters.ErrAttemptsUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
