// Package goAuthClient is the client side of goAuth: it signs users in against a goAuth
// HTTP API, keeps the resulting credentials, renews them before they expire, and publishes
// authentication state to observers.
//
// A typical setup shares one token manager between the HTTP backend and the Client:
//
//	cfg := goAuthClient.DefaultConfig()
//	cfg.Backend.BaseURL = "https://auth.example.com"
//	m := goAuthClient.NewMetrics(cfg.Metrics)
//	tm := tokens.NewManager(storage.NewMemoryStore(), tokens.Config{Metrics: m})
//	api, _ := backend.New(cfg.Backend, tm)
//	client, _ := goAuthClient.New().
//		WithConfig(cfg).
//		WithTokenManager(tm).
//		WithBackend(api).
//		WithSSOLookup(api).
//		WithMetrics(m).
//		Build()
//	_ = client.Initialize(ctx)
//
// # Architecture boundaries
//
// goAuthClient is the public surface: [Client], [Builder], [Config], and value types.
// Credential storage lives in storage, renewal coordination in tokens, SSO detection in
// sso, and HTTP in backend and middleware.
//
// # What this package must NOT do
//
//   - Import backend or middleware (both import this package).
//   - Hold package-level session state; every Client owns its own.
//   - Return errors from background renewal; they are logged and counted.
package goAuthClient
