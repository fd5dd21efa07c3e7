// Package util contains small building blocks shared by the lock manager, the stores and the
// membership layer:
//
//   - HashString: a stable FNV-1a hash used for partition assignment and member ids
//   - Queue: an unbounded multi-producer single-consumer work queue used to hand
//     cleanup sweeps from event callbacks to a background worker without blocking
package util
