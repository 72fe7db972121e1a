// Package jwt issues and verifies HMAC-signed session tokens and derives the
// token identity used as the revocation key.
package jwt
