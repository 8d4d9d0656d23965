package runner

import "errors"

// Sentinel errors for the runner package.
var (
	// ErrNoSource is returned when Run is called without a source.
	ErrNoSource = errors.New("runner: no source")

	// ErrAdvisoryWarning is returned in strict mode when inference raises a
	// warning.
	ErrAdvisoryWarning = errors.New("runner: inference raised a warning")

	// Test errors for use in unit tests.
	errTestLoad = errors.New("test: load failed")
	errTestStop = errors.New("test: stop")
)
