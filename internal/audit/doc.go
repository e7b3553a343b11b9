// Package audit implements async delivery of security audit events.
//
// # Components
//
//   - [Event] — the audit record: timestamp, event type, actor, target, session, client info, metadata.
//   - [Sink] — consumer interface, with channel, JSON line writer, and no-op implementations.
//   - [Dispatcher] — single-goroutine buffered relay; overflow either drops or blocks per configuration.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery only. Which events exist and
// when they fire is decided by the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authcore or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
