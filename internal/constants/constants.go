// Package constants holds default tuning values shared across the engine.
package constants

import "time"

// Default configuration constants for a dispatcher run.
const (
	// DefaultTimeout is the per-test wall-clock budget when neither the
	// test nor the caller supplies an override via meta(Timeout, ms).
	DefaultTimeout = 1000 * time.Millisecond

	// DefaultIterations is the iteration count used when a test does not
	// call meta(Iterations, n).
	DefaultIterations = 1

	// KillGracePeriod is how long the parent waits after SIGTERM before
	// escalating to SIGKILL, once a timeout has been declared (spec §4.G
	// step 5: "extend the deadline by 100 ms to give the child a chance
	// to produce a result").
	KillGracePeriod = 100 * time.Millisecond

	// SegmentDefaultSize is the default shared-memory segment size
	// allocated for a single message when the caller does not size it
	// explicitly.
	SegmentDefaultSize = 4096

	// MaxLogLevel bounds the Trace/Debug/Verbose/Info/Warning enumeration;
	// used to validate configured ceilings.
	MaxLogLevel = 4
)
