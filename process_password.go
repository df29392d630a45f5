package goAccount

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/goAccount/password"
)

// processPasswordUpdate handles a posted password form. Form problems are
// reported on the password page; only collaborator failures become errors.
func (d *Dispatcher) processPasswordUpdate(ctx context.Context) (*Response, error) {
	if !d.stateCheckerValid() {
		return d.rejectStateChecker(ctx, auditEventUpdatePasswordError)
	}

	c := d.console
	realmID, userID := d.auth.Realm.ID, d.auth.User.ID
	b := d.page(ctx)

	if !c.config.Features.PasswordUpdate {
		c.emitAudit(ctx, auditEventUpdatePasswordError, false, d.auth, ErrFeatureDisabled, nil)
		return b.SetError(http.StatusBadRequest, MsgPasswordUpdateNotAllowed).CreateResponse(PagePassword)
	}

	user, err := c.users.GetUserByID(ctx, realmID, userID)
	if err != nil {
		return nil, err
	}

	form := d.info.Form
	current := form.Get(FormPassword)
	next := form.Get(FormPasswordNew)
	confirm := form.Get(FormPasswordConfirm)

	passwordSet := user.PasswordHash != ""
	b.SetPasswordSet(passwordSet)

	if passwordSet {
		if current == "" {
			d.passwordRejected(ctx, ErrPasswordMissing)
			return b.SetError(http.StatusOK, MsgMissingPassword).CreateResponse(PagePassword)
		}
		if err := c.passwordLimiter.Acquire(ctx, realmID, userID); err != nil {
			return d.attemptsBlocked(ctx, b, PagePassword, auditEventUpdatePasswordError, err)
		}

		ok, err := c.passwordHash.Verify(current, user.PasswordHash)
		if err != nil && !errors.Is(err, password.ErrTooLong) {
			return nil, err
		}
		if !ok {
			c.metricInc(MetricPasswordUpdateInvalidCurrent)
			c.emitAudit(ctx, auditEventUpdatePasswordError, false, d.auth, ErrInvalidCredentials, nil)
			return b.SetError(http.StatusOK, MsgInvalidPasswordExisting).CreateResponse(PagePassword)
		}
		if err := c.passwordLimiter.Reset(ctx, realmID, userID); err != nil {
			c.logger.Warn().Err(err).Str("realm", realmID).Str("user_id", userID).Msg("password attempts not reset")
		}
	}

	if next == "" {
		d.passwordRejected(ctx, ErrPasswordMissing)
		return b.SetError(http.StatusOK, MsgMissingPassword).CreateResponse(PagePassword)
	}
	if next != confirm {
		d.passwordRejected(ctx, ErrPasswordMismatch)
		return b.SetError(http.StatusOK, MsgNotMatchPassword).CreateResponse(PagePassword)
	}
	if passwordSet && next == current {
		d.passwordRejected(ctx, ErrPasswordReuse)
		return b.SetError(http.StatusOK, MsgPasswordReuse).CreateResponse(PagePassword)
	}

	hash, err := c.passwordHash.Hash(next)
	var lengthErr *password.LengthError
	switch {
	case errors.As(err, &lengthErr):
		d.passwordRejected(ctx, err)
		key := MsgInvalidPasswordMinLength
		if errors.Is(err, password.ErrTooLong) {
			key = MsgInvalidPasswordMaxLength
		}
		return b.SetError(http.StatusOK, key, lengthErr.Limit).CreateResponse(PagePassword)
	case err != nil:
		return nil, err
	}

	if err := c.users.UpdatePasswordHash(ctx, realmID, userID, hash); err != nil {
		return nil, err
	}
	if form.Get(FormLogoutSessions) == "on" {
		if err := d.logoutOtherSessions(ctx); err != nil {
			return nil, err
		}
	}

	c.metricInc(MetricPasswordUpdateSuccess)
	c.emitAudit(ctx, auditEventUpdatePassword, true, d.auth, nil, nil)

	return b.SetPasswordSet(true).SetSuccess(MsgAccountPasswordUpdated).CreateResponse(PagePassword)
}

func (d *Dispatcher) passwordRejected(ctx context.Context, reason error) {
	c := d.console
	c.metricInc(MetricPasswordUpdateRejected)
	c.emitAudit(ctx, auditEventUpdatePasswordError, false, d.auth, reason, nil)
}

// logoutOtherSessions ends every session of the principal except the one
// the request came from. Providers without [SessionTerminator] are skipped.
func (d *Dispatcher) logoutOtherSessions(ctx context.Context) error {
	c := d.console
	terminator, ok := c.sessions.(SessionTerminator)
	if !ok {
		c.logger.Warn().Str("realm", d.auth.Realm.ID).Msg("session provider cannot log out other sessions")
		return nil
	}

	n, err := terminator.LogoutOtherSessions(ctx, d.auth.Realm, d.auth.User, d.auth.SessionID)
	if err != nil {
		return err
	}

	c.metrics.Add(MetricSessionsLoggedOut, uint64(n))
	c.emitAudit(ctx, auditEventLogoutOthers, true, d.auth, nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return nil
}
