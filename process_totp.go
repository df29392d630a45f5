package goAccount

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// processTOTPUpdate handles a posted authenticator form: cancel, delete,
// or verify a code against the enrollment secret shown on the page.
func (d *Dispatcher) processTOTPUpdate(ctx context.Context) (*Response, error) {
	if !d.stateCheckerValid() {
		return d.rejectStateChecker(ctx, auditEventUpdateTOTPError)
	}

	c := d.console
	form := d.info.Form
	action := form.Get(FormSubmitAction)
	if action == ActionCancel {
		return d.renderTOTP(ctx)
	}

	realmID, userID := d.auth.Realm.ID, d.auth.User.ID
	user, err := c.users.GetUserByID(ctx, realmID, userID)
	if err != nil {
		return nil, err
	}
	b := d.page(ctx)

	if action == ActionDelete {
		if err := c.users.DisableTOTP(ctx, realmID, userID); err != nil {
			return nil, err
		}
		c.metricInc(MetricTOTPRemoved)
		c.emitAudit(ctx, auditEventRemoveTOTP, true, d.auth, nil, nil)

		user.TOTPEnabled = false
		if err := d.setTOTPAttributes(b, user, ""); err != nil {
			return nil, err
		}
		return b.SetSuccess(MsgSuccessTOTPRemoved).CreateResponse(PageTOTP)
	}

	if !c.config.Features.TOTP {
		c.emitAudit(ctx, auditEventUpdateTOTPError, false, d.auth, ErrFeatureDisabled, nil)
		return b.SetError(http.StatusBadRequest, MsgTOTPNotSupported).CreateResponse(PageTOTP)
	}

	encoded := strings.TrimSpace(form.Get(FormTOTPSecret))
	code := strings.TrimSpace(form.Get(FormTOTP))

	secret, decodeErr := decodeTOTPSecret(encoded)
	if decodeErr != nil {
		encoded = ""
	}
	if err := d.setTOTPAttributes(b, user, encoded); err != nil {
		return nil, err
	}

	if code == "" {
		c.metricInc(MetricTOTPUpdateFailure)
		c.emitAudit(ctx, auditEventUpdateTOTPError, false, d.auth, ErrTOTPMissing, nil)
		return b.SetError(http.StatusOK, MsgMissingTOTP).CreateResponse(PageTOTP)
	}

	if err := c.totpLimiter.Acquire(ctx, realmID, userID); err != nil {
		return d.attemptsBlocked(ctx, b, PageTOTP, auditEventUpdateTOTPError, err)
	}

	valid := false
	var counter int64
	if decodeErr == nil {
		counter, valid, err = c.totp.Verify(secret, code, time.Now())
		if err != nil {
			return nil, err
		}
	}
	if !valid {
		c.metricInc(MetricTOTPUpdateFailure)
		c.emitAudit(ctx, auditEventUpdateTOTPError, false, d.auth, ErrTOTPInvalid, nil)
		return b.SetError(http.StatusOK, MsgInvalidTOTP).CreateResponse(PageTOTP)
	}

	if err := c.users.EnableTOTP(ctx, realmID, userID, secret); err != nil {
		return nil, err
	}
	if err := c.users.MarkTOTPVerified(ctx, realmID, userID); err != nil {
		return nil, err
	}
	if err := c.users.UpdateTOTPLastUsedCounter(ctx, realmID, userID, counter); err != nil {
		return nil, err
	}
	if err := c.totpLimiter.Reset(ctx, realmID, userID); err != nil {
		c.logger.Warn().Err(err).Str("realm", realmID).Str("user_id", userID).Msg("totp attempts not reset")
	}

	c.metricInc(MetricTOTPUpdateSuccess)
	c.emitAudit(ctx, auditEventUpdateTOTP, true, d.auth, nil, nil)

	return b.SetAttribute(AttrTOTPEnabled, "true").SetSuccess(MsgSuccessTOTP).CreateResponse(PageTOTP)
}
