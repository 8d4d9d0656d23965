package relgraph

import "errors"

// Sentinel errors.
var (
	// ErrConfigNotFound is returned when no .relgraph.yaml is found.
	ErrConfigNotFound = errors.New("relgraph: no .relgraph.yaml found")

	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("relgraph: invalid config")

	// ErrUnknownSource is returned when an unregistered source type is requested.
	ErrUnknownSource = errors.New("relgraph: unknown source")

	// ErrUnknownTarget is returned when an unregistered target is requested.
	ErrUnknownTarget = errors.New("relgraph: unknown target")

	// ErrNoSource is returned when neither a URI nor a path identifies the source.
	ErrNoSource = errors.New("relgraph: no source configured")
)
