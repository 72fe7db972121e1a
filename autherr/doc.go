// Package autherr defines the error taxonomy shared by strategies, providers,
// the token manager and the engine.
//
// Sentinels are matched with [errors.Is]; the typed errors carry the detail a
// caller needs to build a response (remaining attempts, provider code,
// remaining lock time).
package autherr
