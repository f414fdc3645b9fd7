// Package nlog is the engine's leveled-logging front door. It wraps glog
// exactly the way aistore's own cmn/nlog does (see ais/prxs3.go's
// nlog.Infoln / cmn.Rom.FastV(5, ...) call sites) so log call sites read
// identically to the teacher's.
package nlog

import (
	"fmt"

	"github.com/golang/glog"
)

// V reports whether verbosity level lvl is enabled for module-gated
// logging, mirroring cmn.Rom.FastV(lvl, module) without the module
// dimension (the engine has one log stream, not per-subsystem modules).
func V(lvl glog.Level) bool { return bool(glog.V(lvl)) }

func Infoln(args ...any)    { glog.Infoln(args...) }
func Infof(f string, a ...any)    { glog.Infof(f, a...) }
func Warningln(args ...any) { glog.Warningln(args...) }
func Warningf(f string, a ...any) { glog.Warningf(f, a...) }
func Errorln(args ...any)   { glog.Errorln(args...) }
func Errorf(f string, a ...any)   { glog.Errorf(f, a...) }

// Fatalln logs and aborts the process. Reserved for spec.md §7
// Configuration/Protocol/Convergence fatal errors surfaced through
// cmn/debug; call sites should prefer debug.Assert where possible so the
// diagnostic carries a stack.
func Fatalln(args ...any) { glog.Fatalln(args...) }

// Sprintf is a tiny convenience used by a few call sites building a
// diagnostic string before logging it, avoiding a bare fmt import at
// those sites for stylistic consistency with the rest of the package.
func Sprintf(f string, a ...any) string { return fmt.Sprintf(f, a...) }
