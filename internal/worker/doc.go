// Package worker supervises the per-service worker executables that perform
// the actual network transfers.
//
// A Supervisor owns at most one Active process at a time plus any processes
// that were asked to stop and have not exited yet. It writes wire frames to
// the Active process' stdin, decodes frames from every process' stdout on a
// dedicated goroutine, and turns them into Events on the channel supplied at
// construction. Each unit of work yields exactly one terminal event (Done,
// Stopped or Failed), including when the process crashes or has to be killed.
package worker
