// Package engine is the upload coordinator. One goroutine owns the job queue,
// the preprocessing coordinator and the upload worker supervisor, and reacts
// to typed inputs delivered through a single channel: submissions, control
// requests, connectivity and device-mode changes, worker events and
// preprocessing results.
//
// Only the head of the queue is driven. It is preprocessed when it has items
// without a local copy, then handed to an upload worker. Promotion over an
// uploading head stops that worker and moves the preempted job to the tail.
// Entering USB mass-storage mode stops all work until the mode clears.
package engine
