// Package otel publishes goAuthClient metrics through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter and each histogram bucket an
// Int64ObservableGauge. One callback reads [goAuthClient.Client.MetricsSnapshot] per
// collection cycle. Sources that also report State, such as the Client,
// get a goauth_client_session_state gauge with one series per session state. Callers own
// the MeterProvider.
package otel
