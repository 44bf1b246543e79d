// Package talkpoint defines talkpoints (breakpoints that speak or play a tone
// when hit) and the Store that keeps them keyed by breakpoint identity.
//
// Breakpoint identities are assigned by the debugging subsystem and change
// every session, so the durable identity of a talkpoint is its
// (file path, line) pair; see the reconcile package.
//
// Lines are 0-based throughout. Anything shown to a person adds one.
package talkpoint
