//go:build debug

// This file provides the gate for spec.md §7 "Debug-only" checks, behind
// the `debug` build tag the same way aistore gates its own
// deep-diagnostic paths. No engine check calls the gate; the ID echo in
// each Result is not compared anywhere.
package debug

// Expensive reports whether debug-only checks should run. In a
// `debug`-tagged build this is always true.
func Expensive() bool { return true }
