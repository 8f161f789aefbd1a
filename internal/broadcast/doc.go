// Package broadcast fans newly stored patient records out to every connected
// viewer session over WebSocket.
//
// Delivery is at-most-once: there is no replay for late subscribers, no
// acknowledgement and no retry. A session whose send buffer is full is
// disconnected and misses the event. Publish never blocks the caller.
//
// A single goroutine owns the session set and processes subscribe,
// unsubscribe and broadcast commands in arrival order, so two publishes
// reach every session present for both in the order they were made.
package broadcast
