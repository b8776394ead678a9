// Command goauth-client-loadtest drives many goAuthClient sessions against an in-process
// fake auth backend and reports how well renewals and SSO lookups are coalesced.
//
// Credentials are persisted in Redis: REDIS_ADDR or --redis-addr selects a server,
// otherwise an embedded miniredis is started.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
