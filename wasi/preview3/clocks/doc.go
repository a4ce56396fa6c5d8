// Package clocks provides monotonic and wall clocks, plus timers that
// resolve single-value futures.
//
// Instants are nanoseconds since the clock was created. Timers never
// block the caller; race a timer future against another future to build
// a timeout.
package clocks
