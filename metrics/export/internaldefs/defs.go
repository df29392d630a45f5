package internaldefs

import (
	"strconv"
	"strings"

	goAccount "github.com/MrEthical07/goAccount"
)

// Def names one console metric for exporters.
type Def struct {
	ID   goAccount.MetricID
	Name string
	Help string
}

// Source is what exporters read from; *goAccount.Console implements it.
type Source interface {
	MetricsSnapshot() goAccount.MetricsSnapshot
	AuditDropped() uint64
}

// Counters lists every exported console counter in output order.
var Counters = []Def{
	{goAccount.MetricPageRendered, "goaccount_page_rendered_total", "Authenticated dispatches that produced a page."},
	{goAccount.MetricLoginRedirect, "goaccount_login_redirect_total", "Unauthenticated dispatches sent to the login flow."},
	{goAccount.MetricAccessDenied, "goaccount_access_denied_total", "Principals rejected for lacking the console permission."},
	{goAccount.MetricStateCheckerRejected, "goaccount_state_checker_rejected_total", "Form posts rejected for a mismatched state checker."},
	{goAccount.MetricSessionsListed, "goaccount_sessions_listed_total", "Sessions page renders."},
	{goAccount.MetricPasswordUpdateSuccess, "goaccount_password_update_success_total", "Successful password updates."},
	{goAccount.MetricPasswordUpdateInvalidCurrent, "goaccount_password_update_invalid_current_total", "Password updates with a wrong current password."},
	{goAccount.MetricPasswordUpdateRejected, "goaccount_password_update_rejected_total", "Password updates rejected by form validation or policy."},
	{goAccount.MetricTOTPUpdateSuccess, "goaccount_totp_update_success_total", "Authenticators enrolled."},
	{goAccount.MetricTOTPUpdateFailure, "goaccount_totp_update_failure_total", "Failed authenticator enrollments."},
	{goAccount.MetricTOTPRemoved, "goaccount_totp_removed_total", "Authenticators removed."},
	{goAccount.MetricSessionsLoggedOut, "goaccount_sessions_logged_out_total", "Sessions ended by password updates."},
	{goAccount.MetricRateLimitHit, "goaccount_rate_limit_hit_total", "Updates refused by the attempt limiter."},
	{goAccount.MetricCollaboratorFailure, "goaccount_collaborator_failure_total", "Dispatches failed by a collaborator error."},
}

// Histograms lists the exported latency histograms.
var Histograms = []Def{
	{goAccount.MetricDispatchLatency, "goaccount_dispatch_latency_seconds", "Dispatch latency histogram."},
}

// AuditDropped is the counter fed from Source.AuditDropped.
var AuditDropped = Def{Name: "goaccount_audit_dropped_total", Help: "Dropped audit events due to dispatcher backpressure."}

// Bounds are the finite bucket upper bounds in seconds. A final +Inf
// bucket follows them.
var Bounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NumBuckets counts the +Inf bucket.
const NumBuckets = 8

// Label is the le value of bucket i.
func Label(i int) string {
	if i >= len(Bounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(Bounds[i], 'f', -1, 64)
}

// Suffix is Label made safe for instrument names.
func Suffix(i int) string {
	if i >= len(Bounds) {
		return "inf"
	}
	return strings.ReplaceAll(Label(i), ".", "_")
}

// Cumulative turns per-bucket counts into running totals. Missing buckets
// count as zero; extra ones are ignored.
func Cumulative(raw []uint64) [NumBuckets]uint64 {
	var out [NumBuckets]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
