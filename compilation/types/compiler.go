package types

// CompilerConfig describes the compiler which produced a compilation unit, along with the settings that shaped its
// output. Platforms fill in whatever their artifacts expose; zero values mean "not reported".
type CompilerConfig struct {
	// Compiler is the compiler family identifier, e.g. "solc", "solc-js", or "vyper".
	Compiler string `json:"compiler"`

	// Version is the dotted compiler version, without commit metadata.
	Version string `json:"version"`

	// Optimized indicates whether the optimizer was enabled for this unit.
	Optimized bool `json:"optimized"`

	// OptimizeRuns is the optimizer runs setting, when reported.
	OptimizeRuns int `json:"optimize_runs,omitempty"`

	// EVMVersion is the EVM target the unit was compiled for, when reported.
	EVMVersion string `json:"evm_version,omitempty"`

	// ViaIR indicates whether compilation went through the IR pipeline.
	ViaIR bool `json:"via_ir,omitempty"`

	// Remappings lists the import remappings in effect, in prefix=target form.
	Remappings []string `json:"remappings,omitempty"`

	// IncludePaths lists additional source lookup roots passed to the compiler.
	IncludePaths []string `json:"include_paths,omitempty"`
}
