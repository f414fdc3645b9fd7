//go:build !debug

package debug

// Expensive reports whether debug-only checks should run. Outside a
// `debug`-tagged build this is always false, and the compiler inlines
// every `if debug.Expensive() { ... }` guard away.
func Expensive() bool { return false }
