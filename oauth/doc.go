// Package oauth implements the WeChat and Alipay authorization code flows
// and the linking of remote identities to local accounts.
//
// Providers talk to the remote HTTP APIs directly; every failure, local or
// remote, surfaces as *autherr.ProviderAuthError. Service.CreateOrLink is
// the only place accounts are created from a provider identity.
package oauth
