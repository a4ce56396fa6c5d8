// Package cli connects standard input, output and error to byte streams.
//
// SetStdout and SetStderr hand a stream to an execution context that
// copies it to the host writer. Setting a new stream for the same target
// cancels the previous one. Stdin exposes the host input as a stream; it
// can be taken once.
package cli
