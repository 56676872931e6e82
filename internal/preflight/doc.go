// Package preflight provides readiness checks for the directories, worker
// executables and network reachability webupload depends on.
//
// The daemon logs RunAll results at startup and the CLI "webupload status"
// command renders them. Checks never block the engine; a failing check only
// explains why jobs may stall.
package preflight
