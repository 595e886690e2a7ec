package config

import "errors"

var (
	// ErrParsingConfig is returned when the environment cannot be parsed
	// into the configuration record.
	ErrParsingConfig = errors.New("config: failed to parse environment")
	// ErrReadingFile is returned when a YAML file cannot be read or decoded.
	ErrReadingFile = errors.New("config: failed to read file")
	// ErrInvalidConfig wraps the cache's own validation error.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)
