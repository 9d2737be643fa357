// Package panel keeps the single shared availability panel in sync with the
// store.
//
// A Reconciler owns the panel reference and runs one dispatcher goroutine
// (Run). Everything that touches the store or the panel goes through it:
// the periodic sweep tick and, via Do, each user action. An action runs to
// completion, including the reconcile it triggers, before the next queued
// event starts, so handlers never interleave inside a store mutation.
//
// Reconcile is sweep → render → push. A push that fails is logged and
// counted but never undoes a store mutation; the next action or tick tries
// again. If the panel message was deleted the reference is kept and pushes
// keep failing quietly until an operator runs setup again.
package panel
