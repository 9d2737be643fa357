// Package availability is the availability state engine.
//
// It owns three pieces:
//   - Store: the user → Entry map. Every mutation is validated, applied under
//     a mutex and written through a Persister before it returns. SweepExpired
//     is the only operation that removes entries because of expiry.
//   - FormatRemaining: turns a remaining-seconds count into the short human
//     string shown on the panel ("30 minutes", "2 hours 5m").
//   - Render: a pure function from the active entries to the panel content,
//     grouped by activity and sorted by time remaining.
//
// Times are Unix seconds. Callers supply "now" explicitly to SweepExpired and
// AllActive so rendering can be driven by any clock; the Store itself reads its
// clock only to compute new expiry timestamps.
package availability
