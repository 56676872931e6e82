// Package daemon owns the lifecycle of the long-running upload engine.
//
// A Daemon builds the engine and its collaborators from configuration: the
// account resolver, the staging preprocessor, the connectivity and device-mode
// monitors, the account options runner and the optional HTTP status API. It
// holds a flock-based lock so only one engine runs per state directory, runs
// startup housekeeping (preflight checks, pruning of old finished jobs and
// orphaned staging directories) and exposes the operations the IPC layer
// serves.
//
// Keep orchestration here. Scheduling decisions belong to the engine package.
package daemon
