package types

import "errors"

// The error values below classify every fatal condition the compilation pipeline can surface. Callers are expected to
// match them with errors.Is, as most call sites wrap them with additional context (platform name, target, exit codes).
var (
	// ErrInvalidTarget indicates the caller provided a target which is neither an existing path, an importable
	// archive, nor a recognizable on-chain address.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrNoPlatformDetected indicates no registered platform claimed the target and the direct compiler fallback
	// could not apply either.
	ErrNoPlatformDetected = errors.New("no platform detected")

	// ErrCompilerNotFound indicates the compiler locator exhausted every lookup strategy without finding a binary.
	ErrCompilerNotFound = errors.New("compiler not found")

	// ErrCompilationFailed indicates the compiler ran and reported diagnostics classified as errors.
	ErrCompilationFailed = errors.New("compilation failed")

	// ErrCompilerCrashed indicates the compiler exited abnormally without parseable diagnostics. The raw output is
	// preserved in the wrapping error.
	ErrCompilerCrashed = errors.New("compiler crashed")

	// ErrUnresolvedLibrary indicates bytecode linking was requested but a placeholder had no matching address.
	ErrUnresolvedLibrary = errors.New("unresolved library")

	// ErrSourceNotVerified indicates a verification service responded without source code for the requested address.
	ErrSourceNotVerified = errors.New("source code not verified")

	// ErrNetworkError indicates an HTTP failure which persisted after the retry policy was exhausted.
	ErrNetworkError = errors.New("network error")

	// ErrContractAmbiguous indicates a monorepo merge encountered two incompatible definitions of the same contract
	// in the same file.
	ErrContractAmbiguous = errors.New("contract ambiguous")

	// ErrInvalidArchive indicates a previously exported archive could not be parsed back into a project.
	ErrInvalidArchive = errors.New("invalid archive")
)
