// Package account defines the user and social-link records and the Store
// interface the gateway persists them through.
//
// The SQL implementation lives in account/sqlstore.
package account
