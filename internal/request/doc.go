// Package request holds the value types that describe an image request:
// request identifiers, size options, delivery modes, per-request options
// and results.
//
// Nothing in this package performs I/O. Every type is a plain value that
// can be copied freely between goroutines.
//
// # Size Options
//
//   - FullResolution: native pixel size
//   - FitSize(t): scaled by min(tw/sw, th/sh), never exceeds t
//   - FillSize(t): scaled by max(tw/sw, th/sh), covers t on both axes
//
// # Request Identifiers
//
// RequestID values come from a Generator, a mutex-guarded monotonic
// counter. The package-level NextID draws from one process-wide generator
// so ids are unique across every image source in the process.
package request
