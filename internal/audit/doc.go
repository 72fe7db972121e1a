// Package audit implements async dispatching of login events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, recorder, logger, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: one login attempt with type, user, IP, user agent and failure reason.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Block a login on a slow sink when DropIfFull is set.
package audit
