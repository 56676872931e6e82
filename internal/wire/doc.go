// Package wire implements the framed binary protocol spoken between the
// upload engine and its worker processes.
//
// Every frame is a 4-byte big-endian length followed by a payload whose first
// byte is the opcode. The Decoder is a stateful stream reassembler: it accepts
// arbitrary chunks read from a worker's stdout and emits complete messages in
// stream order. Corrupt length prefixes are treated as a desynchronisation and
// recovered locally by discarding the partial frame.
package wire
