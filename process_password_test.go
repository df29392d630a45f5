package goAccount

import (
	"context"
	"net/http"
	"testing"
)

const stateToken = "state-token-1"

func postPassword(t *testing.T, f *consoleFixture, values map[string]string) (*Response, *recordingPage) {
	t.Helper()
	values[FormStateChecker] = stateToken
	d := f.console.NewDispatcher(testAuth(), formRequest(stateToken, values))
	resp, err := d.Dispatch(context.Background(), KindPasswordUpdate)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	return resp, f.pages.last(t)
}

func TestPasswordUpdateStateCheckerMismatch(t *testing.T) {
	f := newConsoleFixture(t, accountTestConfig(), newMemUsers(aliceRecord()))

	for name, posted := range map[string]string{"missing": "", "stale": "other-token"} {
		t.Run(name, func(t *testing.T) {
			info := formRequest(stateToken, map[string]string{
				FormStateChecker:    posted,
				FormPasswordNew:     "brand-new-password",
				FormPasswordConfirm: "brand-new-password",
			})
			resp, err := f.console.NewDispatcher(testAuth(), info).Dispatch(context.Background(), KindPasswordUpdate)
			if err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			if resp.Status != http.StatusForbidden || f.errorPages.message != MsgInvalidRequest {
				t.Fatalf("expected 403 invalidRequest, got %d %q", resp.Status, f.errorPages.message)
			}
		})
	}

	if f.users.updateCalls != 0 {
		t.Fatal("password must not change on state checker mismatch")
	}
	ev := f.nextEvent(t, auditEventUpdatePasswordError)
	if ev.Error != string(auditErrInvalidState) {
		t.Fatalf("expected invalid_state event, got %+v", ev)
	}
	if got := f.console.MetricsSnapshot().Counters[MetricStateCheckerRejected]; got != 2 {
		t.Fatalf("expected 2 rejections counted, got %d", got)
	}
}

func TestPasswordUpdateEmptyExpectedStateNeverMatches(t *testing.T) {
	f := newConsoleFixture(t, accountTestConfig(), newMemUsers(aliceRecord()))
	info := formRequest("", map[string]string{FormStateChecker: ""})

	resp, err := f.console.NewDispatcher(testAuth(), info).Dispatch(context.Background(), KindPasswordUpdate)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Status)
	}
}

func TestPasswordUpdateSetsInitialPassword(t *testing.T) {
	f := newConsoleFixture(t, accountTestConfig(), newMemUsers(aliceRecord()))

	_, page := postPassword(t, f, map[string]string{
		FormPasswordNew:     "brand-new-password",
		FormPasswordConfirm: "brand-new-password",
	})
	if page.successKey != MsgAccountPasswordUpdated {
		t.Fatalf("expected success message, got error %q", page.errorKey)
	}

	stored := f.users.record("demo", "u-1").PasswordHash
	ok, err := f.console.passwordHash.Verify("brand-new-password", stored)
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}
	if page.passwordSet == nil || !*page.passwordSet {
		t.Fatal("page must report password set after update")
	}

	ev := f.nextEvent(t, auditEventUpdatePassword)
	if !ev.Success || ev.UserID != "u-1" || ev.RealmID != "demo" || ev.SessionID != "sid-current" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestPasswordUpdateValidation(t *testing.T) {
	tests := []struct {
		name    string
		form    map[string]string
		wantKey string
		status  int
	}{
		{
			name:    "current missing",
			form:    map[string]string{FormPasswordNew: "brand-new-password", FormPasswordConfirm: "brand-new-password"},
			wantKey: MsgMissingPassword,
			status:  http.StatusOK,
		},
		{
			name:    "current wrong",
			form:    map[string]string{FormPassword: "not-the-password", FormPasswordNew: "brand-new-password", FormPasswordConfirm: "brand-new-password"},
			wantKey: MsgInvalidPasswordExisting,
			status:  http.StatusOK,
		},
		{
			name:    "new missing",
			form:    map[string]string{FormPassword: "initial-password-1"},
			wantKey: MsgMissingPassword,
			status:  http.StatusOK,
		},
		{
			name:    "confirm mismatch",
			form:    map[string]string{FormPassword: "initial-password-1", FormPasswordNew: "brand-new-password", FormPasswordConfirm: "brand-new-passw0rd"},
			wantKey: MsgNotMatchPassword,
			status:  http.StatusOK,
		},
		{
			name:    "reuse",
			form:    map[string]string{FormPassword: "initial-password-1", FormPasswordNew: "initial-password-1", FormPasswordConfirm: "initial-password-1"},
			wantKey: MsgPasswordReuse,
			status:  http.StatusOK,
		},
		{
			name:    "too short",
			form:    map[string]string{FormPassword: "initial-password-1", FormPasswordNew: "short", FormPasswordConfirm: "short"},
			wantKey: MsgInvalidPasswordMinLength,
			status:  http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newConsoleFixture(t, accountTestConfig(), newMemUsers(aliceRecord()))
			f.seedPassword(t, "initial-password-1")
			before := f.users.record("demo", "u-1").PasswordHash

			resp, page := postPassword(t, f, tc.form)
			if page.errorKey != tc.wantKey {
				t.Fatalf("expected %q, got %q", tc.wantKey, page.errorKey)
			}
			if resp.Status != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.Status)
			}
			if page.successKey != "" {
				t.Fatalf("unexpected success %q", page.successKey)
			}
			if f.users.updateCalls != 0 || f.users.record("demo", "u-1").PasswordHash != before {
				t.Fatal("password must not change")
			}
		})
	}
}

func TestPasswordUpdateMinLengthCarriesLimit(t *testing.T) {
	f := newConsoleFixture(t, accountTestConfig(), newMemUsers(aliceRecord()))

	_, page := postPassword(t, f, map[string]string{FormPasswordNew: "short", FormPasswordConfirm: "short"})
	if page.errorKey != MsgInvalidPasswordMinLength {
		t.Fatalf("expected min length error, got %q", page.errorKey)
	}
	if len(page.errorArgs) != 1 || page.errorArgs[0] != 10 {
		t.Fatalf("expected configured minimum as argument, got %v", page.errorArgs)
	}
}

func TestPasswordUpdateLimiterTrips(t *testing.T) {
	cfg := accountTestConfig()
	cfg.Limits.PasswordMaxAttempts = 2
	f := newConsoleFixture(t, cfg, newMemUsers(aliceRecord()))
	f.seedPassword(t, "initial-password-1")

	wrong := func() map[string]string {
		return map[string]string{FormPassword: "wrong-password-1", FormPasswordNew: "brand-new-password", FormPasswordConfirm: "brand-new-password"}
	}

	for i := 0; i < 2; i++ {
		_, page := postPassword(t, f, wrong())
		if page.errorKey != MsgInvalidPasswordExisting {
			t.Fatalf("attempt %d: expected invalidPasswordExisting, got %q", i, page.errorKey)
		}
	}

	// Correct password is refused while the limiter is tripped.
	resp, page := postPassword(t, f, map[string]string{
		FormPassword:        "initial-password-1",
		FormPasswordNew:     "brand-new-password",
		FormPasswordConfirm: "brand-new-password",
	})
	if resp.Status != http.StatusTooManyRequests || page.errorKey != MsgTooManyAttempts {
		t.Fatalf("expected 429 tooManyAttempts, got %d %q", resp.Status, page.errorKey)
	}

	f.mr.FastForward(cfg.Limits.PasswordCooldown + 1)
	_, page = postPassword(t, f, map[string]string{
		FormPassword:        "initial-password-1",
		FormPasswordNew:     "brand-new-password",
		FormPasswordConfirm: "brand-new-password",
	})
	if page.successKey != MsgAccountPasswordUpdated {
		t.Fatalf("expected update after cooldown, got %q", page.errorKey)
	}

	snap := f.console.MetricsSnapshot()
	if snap.Counters[MetricPasswordUpdateInvalidCurrent] != 2 || snap.Counters[MetricRateLimitHit] != 1 {
		t.Fatalf("unexpected counters: %+v", snap.Counters)
	}
}

func TestPasswordUpdateFeatureDisabled(t *testing.T) {
	cfg := accountTestConfig()
	cfg.Features.PasswordUpdate = false
	f := newConsoleFixture(t, cfg, newMemUsers(aliceRecord()))

	resp, page := postPassword(t, f, map[string]string{FormPasswordNew: "brand-new-password", FormPasswordConfirm: "brand-new-password"})
	if resp.Status != http.StatusBadRequest || page.errorKey != MsgPasswordUpdateNotAllowed {
		t.Fatalf("expected 400 passwordUpdateNotAllowed, got %d %q", resp.Status, page.errorKey)
	}
	if f.users.getCalls != 0 || f.users.updateCalls != 0 {
		t.Fatal("disabled feature must not touch the user store")
	}
}

func TestPasswordUpdateLogsOutOtherSessions(t *testing.T) {
	f := newConsoleFixture(t, accountTestConfig(), newMemUsers(aliceRecord()))

	_, page := postPassword(t, f, map[string]string{
		FormPasswordNew:     "brand-new-password",
		FormPasswordConfirm: "brand-new-password",
		FormLogoutSessions:  "on",
	})
	if page.successKey != MsgAccountPasswordUpdated {
		t.Fatalf("expected success, got %q", page.errorKey)
	}
	if f.sessions.logouts != 1 || f.sessions.logoutKeep != "sid-current" {
		t.Fatalf("expected logout keeping current session, got %d keep=%q", f.sessions.logouts, f.sessions.logoutKeep)
	}
	if got := f.console.MetricsSnapshot().Counters[MetricSessionsLoggedOut]; got != 2 {
		t.Fatalf("expected 2 sessions logged out, got %d", got)
	}
	ev := f.nextEvent(t, auditEventLogoutOthers)
	if ev.Details["sessions"] != "2" {
		t.Fatalf("unexpected logout event details: %+v", ev.Details)
	}
}

func TestPasswordUpdateUserLookupErrorUnchanged(t *testing.T) {
	users := newMemUsers(aliceRecord())
	f := newConsoleFixture(t, accountTestConfig(), users)
	users.getErr = ErrUserNotFound

	info := formRequest(stateToken, map[string]string{FormStateChecker: stateToken})
	_, err := f.console.NewDispatcher(testAuth(), info).Dispatch(context.Background(), KindPasswordUpdate)
	if err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound unchanged, got %v", err)
	}
}

func TestPasswordUpdateVerifiedCurrentClearsAttempts(t *testing.T) {
	cfg := accountTestConfig()
	cfg.Limits.PasswordMaxAttempts = 1
	f := newConsoleFixture(t, cfg, newMemUsers(aliceRecord()))
	f.seedPassword(t, "initial-password-1")

	_, page := postPassword(t, f, map[string]string{
		FormPassword:        "initial-password-1",
		FormPasswordNew:     "brand-new-password",
		FormPasswordConfirm: "other-new-password",
	})
	if page.errorKey != MsgNotMatchPassword {
		t.Fatalf("expected notMatchPassword, got %q", page.errorKey)
	}

	wrong := map[string]string{FormPassword: "wrong-password-1", FormPasswordNew: "brand-new-password", FormPasswordConfirm: "brand-new-password"}
	if _, page := postPassword(t, f, wrong); page.errorKey != MsgInvalidPasswordExisting {
		t.Fatalf("verified attempt was still counted: %q", page.errorKey)
	}
	if resp, page := postPassword(t, f, wrong); resp.Status != http.StatusTooManyRequests || page.errorKey != MsgTooManyAttempts {
		t.Fatalf("expected 429 tooManyAttempts, got %d %q", resp.Status, page.errorKey)
	}
}
