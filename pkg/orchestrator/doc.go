// Package orchestrator drives one completion turn end to end.
//
// Each turn moves through Validate, Reshape, Dispatch, Aggregate or
// Forward, and Finalize. Validation failures are returned before any
// upstream call. Dispatch runs inside a session scope, so the upstream
// conversation is closed on every exit path. Complete aggregates the
// fragments into a Result; Stream forwards them in upstream order and ends
// with a Done event, or an event carrying the error that ended the turn.
// Finalize hands the turn's text to the usage recorder without waiting.
package orchestrator
