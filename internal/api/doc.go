// Package api defines transport types for the IPC and HTTP surfaces and the
// read-only HTTP status API.
//
// # Key Types
//
// JobItem: a live queue entry with ownership, pending reason, progress and the
// last failure.
//
// StoredJob: a persisted job row, including finished jobs that have left the
// queue.
//
// DaemonStatus: engine state, live jobs, per-status stored counts and the
// startup preflight results.
//
// AccountOption: a cached option value reported by a service worker.
//
// # HTTP routes
//
// NewRouter serves GET /api/health, /api/status, /api/jobs and /api/jobs/:id
// with gin. Callers pass middleware such as bearer-token checks; the health
// route is always open.
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
package api
