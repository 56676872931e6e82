// Package queue holds the in-memory ordered set of upload jobs the engine
// drives.
//
// Only the head job is actively worked on. A job's owner records which
// component may mutate its transfer state; the queue refuses to drop a job
// that the preprocessor or an upload worker still owns. Head changes are
// reported to a listener supplied by the engine so that it can react in its
// own event loop.
//
// The queue is not safe for concurrent use. The engine calls it from a
// single goroutine.
package queue
