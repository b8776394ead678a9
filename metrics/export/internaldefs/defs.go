package internaldefs

import (
	goAuthClient "github.com/MrEthical07/goAuthClient"
)

// CounterDef binds a client counter to its exported name.
type CounterDef struct {
	ID   goAuthClient.MetricID
	Name string
	Help string
}

// HistogramDef binds a client latency histogram to its exported name.
type HistogramDef struct {
	ID   goAuthClient.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goAuthClient.MetricLoginSuccess, Name: "goauth_client_login_success_total", Help: "Password logins that produced a session."},
	{ID: goAuthClient.MetricLoginFailure, Name: "goauth_client_login_failure_total", Help: "Password logins rejected or failed."},
	{ID: goAuthClient.MetricLoginMFARequired, Name: "goauth_client_login_mfa_required_total", Help: "Logins that opened an MFA challenge."},
	{ID: goAuthClient.MetricLoginOTPRequired, Name: "goauth_client_login_otp_required_total", Help: "Logins that opened an emailed-code challenge."},
	{ID: goAuthClient.MetricRegisterSuccess, Name: "goauth_client_register_success_total", Help: "Successful registrations."},
	{ID: goAuthClient.MetricRegisterFailure, Name: "goauth_client_register_failure_total", Help: "Failed registrations."},
	{ID: goAuthClient.MetricVerifySuccess, Name: "goauth_client_verify_success_total", Help: "Successful MFA, OTP, magic-link and one-tap exchanges."},
	{ID: goAuthClient.MetricVerifyFailure, Name: "goauth_client_verify_failure_total", Help: "Failed MFA, OTP, magic-link and one-tap exchanges."},
	{ID: goAuthClient.MetricRefreshSuccess, Name: "goauth_client_refresh_success_total", Help: "Renewals that stored a new pair."},
	{ID: goAuthClient.MetricRefreshFailure, Name: "goauth_client_refresh_failure_total", Help: "Renewals rejected by the backend."},
	{ID: goAuthClient.MetricRefreshCoalesced, Name: "goauth_client_refresh_coalesced_total", Help: "Callers that joined an in-flight renewal."},
	{ID: goAuthClient.MetricRefreshNoSession, Name: "goauth_client_refresh_no_session_total", Help: "Renewals requested without a refresh token."},
	{ID: goAuthClient.MetricRefreshExpiredSession, Name: "goauth_client_refresh_expired_session_total", Help: "Renewals skipped because the refresh token had expired."},
	{ID: goAuthClient.MetricRefreshStaleDiscarded, Name: "goauth_client_refresh_stale_discarded_total", Help: "Renewal results discarded because credentials changed in flight."},
	{ID: goAuthClient.MetricBackgroundRefreshFailure, Name: "goauth_client_background_refresh_failure_total", Help: "Scheduler renewals that ended the session."},
	{ID: goAuthClient.MetricLogout, Name: "goauth_client_logout_total", Help: "Logouts."},
	{ID: goAuthClient.MetricLogoutAll, Name: "goauth_client_logout_all_total", Help: "Logout-all requests."},
	{ID: goAuthClient.MetricLogoutBackendFailure, Name: "goauth_client_logout_backend_failure_total", Help: "Logouts whose backend revocation failed."},
	{ID: goAuthClient.MetricSessionRestored, Name: "goauth_client_session_restored_total", Help: "Sessions restored by Initialize."},
	{ID: goAuthClient.MetricSessionRestoreFailure, Name: "goauth_client_session_restore_failure_total", Help: "Initialize calls whose user fetch failed."},
	{ID: goAuthClient.MetricUserFetchCoalesced, Name: "goauth_client_user_fetch_coalesced_total", Help: "CurrentUser callers that joined an in-flight fetch."},
	{ID: goAuthClient.MetricSSOCacheHit, Name: "goauth_client_sso_cache_hit_total", Help: "SSO detections answered from cache."},
	{ID: goAuthClient.MetricSSOCacheMiss, Name: "goauth_client_sso_cache_miss_total", Help: "SSO detections that needed a lookup."},
	{ID: goAuthClient.MetricSSOLookupCoalesced, Name: "goauth_client_sso_lookup_coalesced_total", Help: "SSO detections that joined an in-flight lookup."},
	{ID: goAuthClient.MetricSSOLookupFailure, Name: "goauth_client_sso_lookup_failure_total", Help: "SSO lookups that fell back to the default."},
	{ID: goAuthClient.MetricSSOExcluded, Name: "goauth_client_sso_excluded_total", Help: "SSO detections short-circuited by an excluded domain."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goAuthClient.MetricRefreshLatency, Name: "goauth_client_refresh_latency_seconds", Help: "Backend renewal latency."},
}

// EventsDroppedName is the counter for AuthEvents lost to backpressure.
const EventsDroppedName = "goauth_client_events_dropped_total"

// EventsDroppedHelp describes EventsDroppedName.
const EventsDroppedHelp = "AuthEvents dropped because the dispatcher buffer was full."

// SessionStateName is the gauge reporting 1 for the client's current session state and 0
// for every other state.
const SessionStateName = "goauth_client_session_state"

// SessionStateHelp describes SessionStateName.
const SessionStateHelp = "Current session state of the client, one series per state."

// HistogramUpperBounds are the finite bucket bounds in seconds. The last bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBounds are the bucket labels in text exposition format.
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

// HistogramBoundSuffix are the bucket suffixes used for OTel instrument names.
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

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
