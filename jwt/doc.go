// Package jwt decodes the payload of compact access and refresh tokens so the client can
// judge expiry locally.
//
// Signatures are never verified here: the backend that issued a token is the only party
// that can and must verify it. The client reads the exp claim to decide when to renew and
// treats anything it cannot read as already expired.
package jwt
