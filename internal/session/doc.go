// Package session runs the anchoring flow: repeated detection attempts
// against live frames until one yields a world position, followed by
// exactly one anchor placement.
//
// # States
//
//	idle -> detecting -> placed
//	            |  ^
//	            v  |
//	          retrying
//
// A session also ends in failed when its attempt or time bound is reached,
// or when a configuration error (missing model or asset) surfaces, and in
// cancelled after Cancel or when the start context is cancelled.
//
// # Attempts
//
// Each attempt borrows the current frame, runs one inference off the
// caller's goroutine, picks a candidate screen point, ray casts it, and
// plans a placement. The placement is committed on the render context
// under the session lock, so a commit arriving after Cancel is discarded.
// Transient misses (no frame, failed inference, no detection, no
// intersection) wait RetryInterval and try again with a fresh frame. The
// loop is iterative and never has more than one attempt in flight.
package session
