package exitcodes

const (
	// ================================
	// Platform-universal exit codes
	// ================================

	// ExitCodeSuccess indicates no errors or failures had occurred.
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates some type of general error occurred.
	ExitCodeGeneralError = 1

	// ================================
	// Application-specific exit codes
	// ================================
	// Note: Despite not being standardized, exit codes 2-5 are often used for common use cases, so we avoid them.

	// ExitCodeHandledError indicates an error occurred but was already logged through the application logger, so the
	// top-level error printer should not repeat it.
	ExitCodeHandledError = 6

	// ExitCodeCompilationFailure indicates that compiling or fetching a target failed. Scripts built around this tool
	// historically treat 255 as the generic compilation failure sentinel, so it is retained here.
	ExitCodeCompilationFailure = 255
)
