// Package pipeline implements the stage machine that moves people through a
// tenant's ordered pipeline.
//
// A move may go backward or stay on the same stage freely, but a forward move
// must not pass over an active stage. Every successful move updates the
// person, appends one history row and records a pipeline event in the same
// transaction. Event recording runs inside a savepoint: when it fails the
// failure is logged and the move still commits. Registered handlers run after
// commit through an events.Dispatcher.
//
// Stage administration (add, reorder, deactivate, initialize) is reserved for
// System Administrators and always acts on the caller's own tenant.
package pipeline
