// Package metrics counts session outcomes for goAuthClient: sign-ins, renewals and how
// many callers each renewal absorbed, logouts, user fetches, and SSO cache behavior.
//
// Every counter sits in its own cache-line-padded slot so parallel renewal callers do
// not contend. Renewal latency is the only histogram; its eight buckets run from 5ms to
// 500ms plus an overflow bucket. Recording never allocates, and a nil *Metrics records
// nothing, so components can take one optionally.
//
// The root package re-exports the IDs as MetricXxx constants. The token manager, the
// SSO detector and the Client share one instance. metrics/export/ reads [Snapshot]
// values and never touches the slots directly.
package metrics
