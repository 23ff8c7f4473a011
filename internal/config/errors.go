package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and Config.Normalize() and
// provide specific information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoHostnames is returned when the hostname list is empty after
	// defaults have been applied.
	ErrNoHostnames = errors.New("no hostnames to resolve")

	// ErrInvalidHostname is returned when a hostname cannot be converted to
	// its ASCII form. It is wrapped with the offending name.
	ErrInvalidHostname = errors.New("invalid hostname")

	// ErrNoTargetHost is returned when the traced host is empty.
	ErrNoTargetHost = errors.New("no target host specified: use --target")

	// ErrWildcardTarget is returned when the traced host is a wildcard.
	// Only concrete names can be traced.
	ErrWildcardTarget = errors.New("target host must not be a wildcard")

	// ErrInvalidTimeout is returned when the command timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidTraceTimeout is returned when the trace timeout is not positive.
	ErrInvalidTraceTimeout = errors.New("invalid trace timeout: must be positive")

	// ErrInvalidMaxHops is returned when the hop limit is outside 1..MaxHopsLimit.
	ErrInvalidMaxHops = errors.New("invalid max hops: must be between 1 and 64")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
