// Package jobstore persists upload jobs in SQLite and writes the TOML job
// files handed to worker processes.
//
// A Descriptor is the persisted view of one job: its account, media items
// with their processed and sent flags, attempt counter and last failure. It
// implements queue.Descriptor so the engine can drive it without knowing how
// it is stored. Unfinished jobs (queued or failed) form the recovered-job
// feed replayed into the queue when the engine starts.
//
// Account option values reported by workers are cached in the same database.
//
// The database is transient storage for in-flight jobs; finished jobs are
// pruned after a retention window. Schema changes bump schemaVersion in
// schema.go and users delete the database to adopt them.
package jobstore
