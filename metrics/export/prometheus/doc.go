// Package prometheus exposes goAuthClient counters to Prometheus.
//
// [PrometheusExporter] can be mounted directly through Handler, or registered with a
// prometheus.Registerer since it implements prometheus.Collector. Counter names are
// prefixed goauth_client_ and end in _total; the single histogram is
// goauth_client_refresh_latency_seconds.
package prometheus
