// Package preprocess drives a job's unprocessed media items through a
// Preprocessor one item at a time.
//
// The Coordinator is not safe for concurrent use. Its methods are called on
// the engine goroutine; item work runs on a separate goroutine whose results
// are posted back through the Post callback and fed to Handle.
package preprocess
