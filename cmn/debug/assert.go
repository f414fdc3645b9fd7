// Package debug provides the engine's fatal-error mechanism. spec.md §7
// classes Configuration and Protocol violations as fatal ("process abort
// with diagnostic"); Assert/AssertNoErr are that abort path, built the way
// xact/xs/tcb.go and xact/xs/tcobjs.go use debug.Assert/debug.AssertNoErr
// pervasively in aistore: a panic carrying a pkg/errors stack, not a bare
// os.Exit, so a crashed rank's log still shows where the invariant broke.
package debug

import (
	"fmt"

	"github.com/pkg/errors"
)

// Assert panics with msg if cond is false. Always compiled in: per
// spec.md, Configuration/Protocol errors are fatal in every build, not
// just debug builds.
func Assert(cond bool, msg string) {
	if !cond {
		panic(errors.WithStack(errors.New(msg)))
	}
}

// Assertf is Assert with a formatted message.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(errors.WithStack(errors.New(fmt.Sprintf(format, args...))))
	}
}

// AssertNoErr panics (wrapping err) if err != nil.
func AssertNoErr(err error) {
	if err != nil {
		panic(errors.WithStack(err))
	}
}
