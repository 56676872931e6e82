// Package main hosts the webupload CLI.
//
// Commands talk to a running webuploadd over its JSON-RPC socket. Status and
// configuration commands keep working when the engine is down by reading the
// job store and configuration directly.
package main
