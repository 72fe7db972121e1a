// Package revocation implements the token blacklist.
//
// Entries are keyed by the token identity and carry a TTL equal to the
// token's remaining lifetime, so no sweep is needed: an entry disappears at
// the moment the token would have been rejected for expiry anyway.
package revocation
