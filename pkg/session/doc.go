/*
Package session implements the Model Store: the session-scoped mapping from
model name to current geometry and edit history.

Mutations of one name are serialized through a per-name lock that is
reference counted and dropped when idle. Concurrent mutations of the same
name block in acquisition order; the wait is bounded by the caller's context
and the store's lock timeout, after which the call fails with Busy.

Every commit installs a new immutable snapshot. Readers load the current
snapshot without taking the mutation lock, so a render or measurement never
observes a geometry that is half replaced. A failed execution commits nothing.
*/
package session
