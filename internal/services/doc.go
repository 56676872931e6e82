// Package services defines shared utilities consumed by the engine and its
// collaborators.
//
// Key responsibilities:
//   - The failure taxonomy (Kind) with one sentinel error per kind, plus the
//     Wrap helper that tags errors with component context.
//   - Conversion between Go errors and the wire ErrorRecord exchanged with
//     worker processes, preserving service codes and recovery hints.
//   - Context helpers that stamp job IDs, stages and correlation identifiers
//     for logging.
package services
