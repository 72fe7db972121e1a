// Package strategy holds the login strategies and the registry that
// dispatches a login request to one of them by type tag.
//
// Strategies report credential problems as *autherr.AuthenticationError and
// provider failures as *autherr.ProviderAuthError; Dispatch propagates both
// unchanged. Counting failures against the principal is left to the caller.
package strategy
