// Package cos holds small constants and periodic-geometry helpers shared
// across the engine. Named after aistore's own cmn/cos ("common os/const")
// package, which plays the same no-dependencies-allowed role.
package cos

import "golang.org/x/exp/constraints"

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB

	// MPISafeTransferCeiling bounds a single send/recv transfer so it never
	// approaches the ~4GiB wraparound hazard of 32-bit transfer counts in
	// common MPI implementations.
	MPISafeTransferCeiling = 3 * GiB

	// MinExportRecords is the usual floor on export records per thread's
	// bunch. The engine does not read this constant: Walk.Begin enforces
	// the floor from Config.MinExportRecords.
	MinExportRecords = 100

	// NodeListLength is fixed by spec: every export/query carries exactly
	// two remote entry-node slots, the second possibly a sentinel.
	NodeListLength = 2

	// NoEntry is the sentinel filling an unused NodeList slot.
	NoEntry = -1
)

// Wrap1D returns x shifted into [-boxSize/2, boxSize/2] under a periodic box of
// side boxSize, i.e. the shortest signed displacement representing x modulo
// boxSize. Used for every per-axis periodic distance computation in the
// node culler and visitor dispatcher; short-circuits to x when boxSize<=0
// (non-periodic).
func Wrap1D[F constraints.Float](x, boxSize F) F {
	if boxSize <= 0 {
		return x
	}
	half := boxSize / 2
	for x > half {
		x -= boxSize
	}
	for x < -half {
		x += boxSize
	}
	return x
}

// Sq returns x*x; a named helper for call sites that want r2 accumulation
// spelled as Sq(dx)+Sq(dy)+Sq(dz) rather than repeating the multiplication.
func Sq[F constraints.Float](x F) F { return x * x }
