package goAccount

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/goAccount/internal/limiters"
)

// Form field names posted by the password and authenticator pages.
const (
	FormStateChecker    = "stateChecker"
	FormPassword        = "password"
	FormPasswordNew     = "password-new"
	FormPasswordConfirm = "password-confirm"
	FormLogoutSessions  = "logout-sessions"
	FormSubmitAction    = "submitAction"
	FormTOTP            = "totp"
	FormTOTPSecret      = "totpSecret"
)

// Values of [FormSubmitAction] on the authenticator form.
const (
	ActionCancel = "Cancel"
	ActionDelete = "Delete"
)

// Page attributes set on the authenticator page.
const (
	AttrTOTPEnabled       = "totpEnabled"
	AttrTOTPSecret        = "totpSecret"
	AttrTOTPSecretEncoded = "totpSecretEncoded"
	AttrTOTPURI           = "totpURI"
	AttrTOTPDigits        = "totpDigits"
	AttrTOTPPeriod        = "totpPeriod"
	AttrTOTPAlgorithm     = "totpAlgorithm"
)

// Message keys passed to SetSuccess, SetError and CreateErrorPage. Page
// builders localize them.
const (
	MsgNoAccess                 = "noAccess"
	MsgInvalidRequest           = "invalidRequest"
	MsgPasswordUpdateNotAllowed = "passwordUpdateNotAllowed"
	MsgInvalidPasswordExisting  = "invalidPasswordExisting"
	MsgTooManyAttempts          = "tooManyAttempts"
	MsgMissingPassword          = "missingPassword"
	MsgNotMatchPassword         = "notMatchPassword"
	MsgInvalidPasswordMinLength = "invalidPasswordMinLength"
	MsgInvalidPasswordMaxLength = "invalidPasswordMaxLength"
	MsgPasswordReuse            = "passwordReuse"
	MsgAccountPasswordUpdated   = "accountPasswordUpdated"
	MsgTOTPNotSupported         = "totpNotSupported"
	MsgMissingTOTP              = "missingTotp"
	MsgInvalidTOTP              = "invalidTotp"
	MsgSuccessTOTP              = "successTotp"
	MsgSuccessTOTPRemoved       = "successTotpRemoved"
)

// Dispatcher serves a single account console request. It is created by
// [Console.NewDispatcher], is not safe for concurrent use, and holds no
// resources of its own.
//
// Whether the request is authenticated is decided once, when the
// dispatcher is created: a nil auth context sends every page to the login
// redirector.
type Dispatcher struct {
	console *Console
	auth    *AuthContext
	info    RequestInfo

	builder PageBuilder
}

// Dispatch produces the response for kind.
//
// Unauthenticated requests get exactly what the login redirector returns.
// Authenticated principals without the console permission get a 403 error
// page. Errors returned by collaborators are passed through unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, kind PageKind) (*Response, error) {
	if !kind.Valid() {
		return nil, ErrUnknownPageKind
	}
	if d == nil || d.console == nil {
		return nil, ErrConsoleNotReady
	}
	c := d.console

	start := time.Now()
	defer func() {
		c.metrics.Observe(MetricDispatchLatency, time.Since(start))
	}()

	if d.auth == nil {
		c.metricInc(MetricLoginRedirect)
		return c.redirector.RedirectToLogin(ctx, kind)
	}

	if !c.hasPermission(d.auth, c.config.Console.RequiredPermission) {
		c.metricInc(MetricAccessDenied)
		c.emitAudit(ctx, auditEventAccessDenied, false, d.auth, ErrPermissionDenied, func() map[string]string {
			return map[string]string{"page": kind.String()}
		})
		return c.errorPages.CreateErrorPage(ctx, http.StatusForbidden, MsgNoAccess)
	}

	resp, err := d.serve(ctx, kind)
	if err != nil {
		c.metricInc(MetricCollaboratorFailure)
		c.logger.Error().
			Err(err).
			Str("page", kind.String()).
			Str("realm", d.auth.Realm.ID).
			Str("user_id", d.auth.User.ID).
			Msg("account page failed")
		return nil, err
	}

	c.metricInc(MetricPageRendered)
	return resp, nil
}

// Close releases nothing; it exists so dispatchers can be handled like
// other per-request providers.
func (d *Dispatcher) Close() {}

// Resource returns the dispatcher itself.
func (d *Dispatcher) Resource() *Dispatcher {
	return d
}

func (d *Dispatcher) serve(ctx context.Context, kind PageKind) (*Response, error) {
	switch kind {
	case KindAccount:
		return d.page(ctx).CreateResponse(PageAccount)
	case KindPassword:
		return d.renderPassword(ctx)
	case KindFederatedIdentity:
		return d.page(ctx).CreateResponse(PageFederatedIdentity)
	case KindSessions:
		return d.renderSessions(ctx)
	case KindApplications:
		return d.page(ctx).CreateResponse(PageApplications)
	case KindTOTP:
		return d.renderTOTP(ctx)
	case KindTOTPUpdate:
		return d.processTOTPUpdate(ctx)
	case KindPasswordUpdate:
		return d.processPasswordUpdate(ctx)
	default:
		return nil, ErrUnknownPageKind
	}
}

// page returns the request's page builder, creating and configuring it on
// first use.
func (d *Dispatcher) page(ctx context.Context) PageBuilder {
	if d.builder != nil {
		return d.builder
	}

	realm := d.info.Realm
	if realm.ID == "" && d.auth != nil {
		realm = d.auth.Realm
	}

	b := d.console.pages(ctx).
		SetRealm(realm).
		SetRequest(d.info).
		SetFeatures(d.console.config.Features)
	if d.auth != nil {
		b = b.SetAuthContext(d.auth).SetStateChecker(d.info.StateChecker)
	}
	d.builder = b
	return b
}

func (d *Dispatcher) renderPassword(ctx context.Context) (*Response, error) {
	user, err := d.console.users.GetUserByID(ctx, d.auth.Realm.ID, d.auth.User.ID)
	if err != nil {
		return nil, err
	}
	return d.page(ctx).SetPasswordSet(user.PasswordHash != "").CreateResponse(PagePassword)
}

func (d *Dispatcher) renderSessions(ctx context.Context) (*Response, error) {
	c := d.console
	sessions, err := c.sessions.GetSessionsFor(ctx, d.auth.Realm, d.auth.User)
	if err != nil {
		return nil, err
	}
	// The provider owns sessions; mark the current one on a copy.
	listed := make([]SessionInfo, len(sessions))
	copy(listed, sessions)
	for i := range listed {
		listed[i].Current = listed[i].ID == d.auth.SessionID
	}

	c.metricInc(MetricSessionsListed)
	return d.page(ctx).SetSessions(listed).CreateResponse(PageSessions)
}

func (d *Dispatcher) renderTOTP(ctx context.Context) (*Response, error) {
	user, err := d.console.users.GetUserByID(ctx, d.auth.Realm.ID, d.auth.User.ID)
	if err != nil {
		return nil, err
	}

	b := d.page(ctx)
	if err := d.setTOTPAttributes(b, user, ""); err != nil {
		return nil, err
	}
	return b.CreateResponse(PageTOTP)
}

// setTOTPAttributes marks an enrolled authenticator, or attaches an
// enrollment secret and its otpauth URI. An empty encoded secret generates
// a fresh one.
func (d *Dispatcher) setTOTPAttributes(b PageBuilder, user UserRecord, encoded string) error {
	c := d.console
	if user.TOTPEnabled {
		b.SetAttribute(AttrTOTPEnabled, "true")
		return nil
	}

	account := user.Username
	if account == "" {
		account = d.auth.User.Username
	}

	var uri string
	if encoded == "" {
		e, err := c.totp.Enroll(account)
		if err != nil {
			return err
		}
		encoded, uri = e.Encoded, e.URI
	} else {
		uri = c.totp.uri(encoded, account)
	}

	b.SetAttribute(AttrTOTPSecret, encoded).
		SetAttribute(AttrTOTPSecretEncoded, groupSecret(encoded)).
		SetAttribute(AttrTOTPURI, uri).
		SetAttribute(AttrTOTPDigits, strconv.Itoa(c.totp.digits)).
		SetAttribute(AttrTOTPPeriod, strconv.FormatInt(c.totp.period, 10)).
		SetAttribute(AttrTOTPAlgorithm, c.totp.hash.label)
	return nil
}

// stateCheckerValid reports whether the posted state checker matches the
// token bound to the browser. An empty expected token never matches.
func (d *Dispatcher) stateCheckerValid() bool {
	expected := d.info.StateChecker
	posted := d.info.Form.Get(FormStateChecker)
	if expected == "" || posted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(posted)) == 1
}

func (d *Dispatcher) rejectStateChecker(ctx context.Context, eventType string) (*Response, error) {
	c := d.console
	c.metricInc(MetricStateCheckerRejected)
	c.emitAudit(ctx, eventType, false, d.auth, ErrStateCheckerMismatch, nil)
	c.logger.Warn().
		Str("realm", d.auth.Realm.ID).
		Str("user_id", d.auth.User.ID).
		Msg("state checker mismatch")
	return c.errorPages.CreateErrorPage(ctx, http.StatusForbidden, MsgInvalidRequest)
}

// attemptsBlocked renders page with tooManyAttempts when err says the
// limiter tripped. Any other limiter error is a backend failure.
func (d *Dispatcher) attemptsBlocked(ctx context.Context, b PageBuilder, page PageID, eventType string, err error) (*Response, error) {
	if !errors.Is(err, limiters.ErrAttemptsExceeded) {
		return nil, err
	}

	c := d.console
	c.metricInc(MetricRateLimitHit)
	c.emitAudit(ctx, eventType, false, d.auth, err, nil)
	return b.SetError(http.StatusTooManyRequests, MsgTooManyAttempts).CreateResponse(page)
}
