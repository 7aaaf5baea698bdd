// Package internaldefs holds the metric naming shared by the exporters.
package internaldefs

import (
	logauth "github.com/origbo/logware-auth"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   logauth.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name.
type HistogramDef struct {
	ID   logauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: logauth.MetricLoginSuccess, Name: "logauth_login_success_total", Help: "Successful login attempts."},
	{ID: logauth.MetricLoginFailure, Name: "logauth_login_failure_total", Help: "Failed login attempts."},
	{ID: logauth.MetricLoginLocked, Name: "logauth_login_locked_total", Help: "Logins refused by an active lockout."},
	{ID: logauth.MetricTwoFactorPending, Name: "logauth_twofactor_pending_total", Help: "Logins parked awaiting a second factor."},
	{ID: logauth.MetricTwoFactorSuccess, Name: "logauth_twofactor_success_total", Help: "Successful second-factor verifications."},
	{ID: logauth.MetricTwoFactorFailure, Name: "logauth_twofactor_failure_total", Help: "Failed second-factor verifications."},
	{ID: logauth.MetricRefreshSuccess, Name: "logauth_refresh_success_total", Help: "Completed refresh-token rotations."},
	{ID: logauth.MetricRefreshFailure, Name: "logauth_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: logauth.MetricRefreshReplayBlocked, Name: "logauth_refresh_replay_blocked_total", Help: "Revoked refresh tokens presented again."},
	{ID: logauth.MetricLogout, Name: "logauth_logout_total", Help: "Logout operations."},
	{ID: logauth.MetricRegisterSuccess, Name: "logauth_register_success_total", Help: "Created accounts."},
	{ID: logauth.MetricRegisterDuplicate, Name: "logauth_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: logauth.MetricPasswordChangeSuccess, Name: "logauth_password_change_success_total", Help: "Successful password changes."},
	{ID: logauth.MetricPasswordChangeRejected, Name: "logauth_password_change_rejected_total", Help: "Rejected password changes."},
	{ID: logauth.MetricResetRequested, Name: "logauth_reset_requested_total", Help: "Issued password-reset tokens."},
	{ID: logauth.MetricResetSuccess, Name: "logauth_reset_success_total", Help: "Consumed password-reset tokens."},
	{ID: logauth.MetricResetFailure, Name: "logauth_reset_failure_total", Help: "Rejected password-reset confirmations."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: logauth.MetricLoginLatency, Name: "logauth_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's fixed buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are bound labels safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed size.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
