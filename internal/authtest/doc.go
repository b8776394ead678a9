// Package authtest provides an in-process fake of the goAuth HTTP API for tests and the
// refresh load test. Tokens are HS256-signed with a fixed key; the client never verifies
// signatures, only the exp claim matters.
package authtest
