// Package internal contains helper utilities that are intentionally private to
// goAuthClient, including device identifier generation.
//
// # Sub-packages
//
//   - authtest: in-process fake auth backend and token minting for tests and tooling
//   - logging: slog setup with trace context and oops-aware error logging
//   - metrics: lock-free counters and latency histograms
//
// # What this package must NOT do
//
//   - Export types that appear in the public goAuthClient API.
//   - Be imported by any package outside the goAuthClient module.
package internal
