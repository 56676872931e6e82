// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI and the recovery tool.
//
// The service is registered as "WebUpload". Every call gets a correlation ID
// that is attached to its context and log lines. Request and response DTOs
// live in types.go; job and option payloads reuse the api package types so
// the HTTP and socket surfaces render the same data.
package ipc
