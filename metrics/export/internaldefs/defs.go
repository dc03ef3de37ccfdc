package internaldefs

import (
	"github.com/MrEthical07/branchauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   branchauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   branchauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: branchauth.MetricLoginSuccess, Name: "branchauth_login_success_total", Help: "Successful login attempts."},
	{ID: branchauth.MetricLoginFailure, Name: "branchauth_login_failure_total", Help: "Failed login attempts."},
	{ID: branchauth.MetricLoginLocked, Name: "branchauth_login_locked_total", Help: "Login attempts rejected or ended by account lockout."},
	{ID: branchauth.MetricRefreshSuccess, Name: "branchauth_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: branchauth.MetricRefreshFailure, Name: "branchauth_refresh_failure_total", Help: "Failed refresh token rotations."},
	{ID: branchauth.MetricRefreshReuseDetected, Name: "branchauth_refresh_reuse_detected_total", Help: "Replayed refresh tokens."},
	{ID: branchauth.MetricRefreshExpired, Name: "branchauth_refresh_expired_total", Help: "Rotations rejected for an expired refresh token."},
	{ID: branchauth.MetricSessionCreated, Name: "branchauth_session_created_total", Help: "Created sessions."},
	{ID: branchauth.MetricSessionRevoked, Name: "branchauth_session_revoked_total", Help: "Sessions revoked by their owner."},
	{ID: branchauth.MetricLogout, Name: "branchauth_logout_total", Help: "Single-session logout operations."},
	{ID: branchauth.MetricLogoutAll, Name: "branchauth_logout_all_total", Help: "Revoke-all operations."},
	{ID: branchauth.MetricBlacklistHit, Name: "branchauth_blacklist_hit_total", Help: "Requests rejected for a blacklisted session."},
	{ID: branchauth.MetricAuditWriteFailure, Name: "branchauth_audit_write_failure_total", Help: "Login audit rows that failed to persist."},
	{ID: branchauth.MetricAccountUnlocked, Name: "branchauth_account_unlocked_total", Help: "Administrative account unlocks."},
	{ID: branchauth.MetricLockoutResetFailure, Name: "branchauth_lockout_reset_failure_total", Help: "Successful logins whose failure counter could not be cleared."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: branchauth.MetricLoginLatency, Name: "branchauth_login_latency_seconds", Help: "Login latency histogram."},
	{ID: branchauth.MetricAuthenticateLatency, Name: "branchauth_authenticate_latency_seconds", Help: "Per-request authentication latency histogram."},
}

// AuditDroppedName is the counter for events the audit dispatcher dropped.
const AuditDroppedName = "branchauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = len(branchauth.HistogramBounds) + 1

// HistogramBounds are the bucket upper bounds in Prometheus label form.
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

// HistogramBoundSuffix are HistogramBounds rendered for use in metric names.
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

// UpperBoundsSeconds returns the finite bucket bounds in seconds.
func UpperBoundsSeconds() []float64 {
	out := make([]float64, len(branchauth.HistogramBounds))
	for i, d := range branchauth.HistogramBounds {
		out[i] = d.Seconds()
	}
	return out
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// entry is the sample count.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
