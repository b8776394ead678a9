package goAuthClient

import (
	internalmetrics "github.com/MrEthical07/goAuthClient/internal/metrics"
)

// MetricID identifies one client counter or histogram.
type MetricID = internalmetrics.ID

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricLoginSuccess             = internalmetrics.LoginSuccess
	MetricLoginFailure             = internalmetrics.LoginFailure
	MetricLoginMFARequired         = internalmetrics.LoginMFARequired
	MetricLoginOTPRequired         = internalmetrics.LoginOTPRequired
	MetricRegisterSuccess          = internalmetrics.RegisterSuccess
	MetricRegisterFailure          = internalmetrics.RegisterFailure
	MetricVerifySuccess            = internalmetrics.VerifySuccess
	MetricVerifyFailure            = internalmetrics.VerifyFailure
	MetricRefreshSuccess           = internalmetrics.RefreshSuccess
	MetricRefreshFailure           = internalmetrics.RefreshFailure
	MetricRefreshCoalesced         = internalmetrics.RefreshCoalesced
	MetricRefreshNoSession         = internalmetrics.RefreshNoSession
	MetricRefreshExpiredSession    = internalmetrics.RefreshExpiredSession
	MetricRefreshStaleDiscarded    = internalmetrics.RefreshStaleDiscarded
	MetricBackgroundRefreshFailure = internalmetrics.BackgroundRefreshFailure
	MetricLogout                   = internalmetrics.Logout
	MetricLogoutAll                = internalmetrics.LogoutAll
	MetricLogoutBackendFailure     = internalmetrics.LogoutBackendFailure
	MetricSessionRestored          = internalmetrics.SessionRestored
	MetricSessionRestoreFailure    = internalmetrics.SessionRestoreFailure
	MetricUserFetchCoalesced       = internalmetrics.UserFetchCoalesced
	MetricSSOCacheHit              = internalmetrics.SSOCacheHit
	MetricSSOCacheMiss             = internalmetrics.SSOCacheMiss
	MetricSSOLookupCoalesced       = internalmetrics.SSOLookupCoalesced
	MetricSSOLookupFailure         = internalmetrics.SSOLookupFailure
	MetricSSOExcluded              = internalmetrics.SSOExcluded
	MetricRefreshLatency           = internalmetrics.RefreshLatency
)

// MetricsSnapshot returns the client's counters. It is empty when metrics are disabled.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// MetricValue returns one counter.
func (c *Client) MetricValue(id MetricID) uint64 {
	return c.metrics.Value(id)
}

// Metrics holds the client's counters. A nil *Metrics records nothing.
type Metrics = internalmetrics.Metrics

// NewMetrics returns counters configured by cfg. Pass the same instance to
// tokens.Config.Metrics and [Builder.WithMetrics] so renewal outcomes and session
// outcomes share one set of counters.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(cfg.Enabled, cfg.EnableLatencyHistograms)
}
