// Package cmn holds the engine's process-wide configuration, following
// aistore's "global config owner" idiom: cmn.GCO.Get() returns an
// immutable snapshot, swapped atomically on reload. See ais/prxs3.go and
// xact/xs/tcb.go for the teacher's own `config := cmn.GCO.Get()` call
// sites this package reproduces.
package cmn

import (
	"os"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/cosmowalk/treewalk/cmn/cos"
)

// Config is the engine's tunable surface: spec.md §6 "Configuration
// knobs" plus the ambient parameters an outer driver needs (box
// geometry, capacity ceilings, iteration limits).
type Config struct {
	// BunchSize is the per-thread export-record cap (spec.md §4.5/§4.6).
	BunchSize int `json:"bunch_size"`

	// ImportBufferBoost is a non-negative extra budget factor for the
	// import buffer when import pressure is expected to exceed export
	// pressure (spec.md §6).
	ImportBufferBoost int `json:"import_buffer_boost"`

	// BoxSize is the periodic box side length; <=0 means non-periodic.
	BoxSize float64 `json:"box_size"`

	// MPITransferCeiling bounds any single send/recv transfer.
	MPITransferCeiling int64 `json:"mpi_transfer_ceiling"`

	// MinExportRecords is the floor below which `begin` refuses to run.
	MinExportRecords int `json:"min_export_records"`

	// HsmlMaxIterations bounds the adaptive hsml convergence loop
	// (spec.md §4.9 "Enforce an iteration ceiling (fatal on exceed)").
	HsmlMaxIterations int `json:"hsml_max_iterations"`

	// UseSpinLocks toggles the optional spin-lock build knob described
	// in spec.md §5: when true, Walk.forkJoin joins its goroutines with a
	// spin.Wait busy-wait; when false, with a sync.WaitGroup.
	UseSpinLocks bool `json:"use_spin_locks"`

	// CompressThreshold, in bytes, above which the Exchange layer
	// compresses an outgoing per-destination query block with s2.
	// 0 disables compression.
	CompressThreshold int `json:"compress_threshold"`
}

// DefaultConfig returns sane defaults, mirroring the values spec.md
// documents inline (NODELISTLENGTH fixed at 2 lives in cos, not here —
// it's a compile-time invariant, not a tunable).
func DefaultConfig() *Config {
	return &Config{
		BunchSize:          1 << 16,
		ImportBufferBoost:  0,
		BoxSize:            0,
		MPITransferCeiling: 3 << 30,
		MinExportRecords:   100,
		HsmlMaxIterations:  200,
		UseSpinLocks:       true,
		CompressThreshold:  0,
	}
}

// gco is the process-wide config holder ("global config owner").
var gco atomic.Pointer[Config]

func init() { gco.Store(DefaultConfig()) }

// GCOGet returns the current config snapshot. Safe to call concurrently
// with GCOLoadFile/GCOSet from any goroutine.
func GCOGet() *Config { return gco.Load() }

// GCOSet atomically installs a new config snapshot, e.g. after
// GCOLoadFile re-reads a file on SIGHUP in a long-running host process.
func GCOSet(c *Config) { gco.Store(c) }

// GCOLoadFile loads a JSON config from path using json-iterator (the
// teacher's JSON library, named in its go.mod and imported throughout
// cmd/cli/cli/object.go and xact/xs/tcobjs.go) and installs it.
func GCOLoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "cmn: read config %s", path)
	}
	c := DefaultConfig()
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "cmn: parse config %s", path)
	}
	gco.Store(c)
	return nil
}

// SafetyMarginBytes is held back from observed free memory before
// DeriveBunchSize divides the remainder into records (spec.md §4.6
// "free memory minus a safety margin").
const SafetyMarginBytes = 64 * cos.MiB

// FreeMemoryBytes reads the host's currently-available memory via
// unix.Sysinfo, the same golang.org/x/sys/unix package memsys.Arena
// already uses for its Mmap/Munmap pair.
func FreeMemoryBytes() (int64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, errors.Wrap(err, "cmn: sysinfo")
	}
	return int64(info.Freeram) * int64(info.Unit), nil
}

// bytesPerRecord is the per-record footprint CeilingBunchSize and
// DeriveBunchSize both divide by: the raw record plus ImportBufferBoost
// extra query+result slots for callers that expect import pressure to
// outrun export pressure (spec.md §6).
func bytesPerRecord(recordSize, querySize, resultSize int, cfg *Config) int {
	return recordSize + cfg.ImportBufferBoost*(querySize+resultSize)
}

// CeilingBunchSize is the largest per-thread bunch size whose transfer
// never exceeds cfg.MPITransferCeiling (clamped to the hardcoded
// cos.MPISafeTransferCeiling, which bounds a single send/recv transfer
// regardless of configuration).
func CeilingBunchSize(recordSize, querySize, resultSize int, cfg *Config) int {
	bpr := bytesPerRecord(recordSize, querySize, resultSize, cfg)
	if bpr <= 0 {
		return 0
	}
	ceiling := cfg.MPITransferCeiling
	if ceiling <= 0 || ceiling > cos.MPISafeTransferCeiling {
		ceiling = cos.MPISafeTransferCeiling
	}
	return int(ceiling / int64(bpr))
}

// DeriveBunchSize implements spec.md §4.6's automatic buffer-sizing
// algorithm for callers that leave Config.BunchSize unset (<=0): free
// memory (freeBytes) minus SafetyMarginBytes, divided by bytes per
// record across every thread's own bunch, clamped to CeilingBunchSize
// so no single transfer can exceed the MPI-safe ceiling.
func DeriveBunchSize(freeBytes int64, threads, recordSize, querySize, resultSize int, cfg *Config) int {
	if threads <= 0 {
		threads = 1
	}
	bpr := bytesPerRecord(recordSize, querySize, resultSize, cfg)
	if bpr <= 0 {
		return 0
	}
	usable := freeBytes - SafetyMarginBytes
	if usable < 0 {
		return 0
	}
	byMemory := int(usable / int64(threads*bpr))
	if ceil := CeilingBunchSize(recordSize, querySize, resultSize, cfg); ceil < byMemory {
		return ceil
	}
	return byMemory
}
