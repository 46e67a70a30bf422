package platforms

import (
	"github.com/crytic/crytic-compile-go/compilation/types"
)

// Platform detection priorities. Detection walks the registry in ascending priority order and selects the first
// adapter whose IsSupported accepts the target, so more specific project layouts must sort before generic ones.
// The direct compiler adapters sit last as the fallback tier.
const (
	PriorityArchive   = 50
	PriorityFoundry   = 100
	PriorityHardhatV3 = 150
	PriorityHardhat   = 200
	PriorityTruffle   = 300
	PriorityDapp      = 400
	PriorityBrownie   = 500
	PriorityWaffle    = 600
	PriorityEmbark    = 700
	PriorityEtherlime = 800
	PriorityBuidler   = 900
	PrioritySourcify  = 925
	PriorityEtherscan = 950
	PriorityFallback  = 1000
)

// PlatformConfig describes the interface all platform adapter configs must implement. A config is a
// JSON-serializable struct carrying the target and the adapter's own settings; Compile populates the provided
// project's filename index and returns the compilation units it produced, along with any captured compiler
// warnings. Units are treated as read-only once returned.
type PlatformConfig interface {
	// Platform returns the registry identifier of the adapter, lowercase.
	Platform() string

	// Priority returns the detection priority of the adapter. Lower values are tried first.
	Priority() int

	// GetTarget returns the target for compilation.
	GetTarget() string

	// SetTarget sets the new target for compilation.
	SetTarget(newTarget string)

	// IsSupported reports whether the target looks like a project of this platform. It inspects the filesystem
	// but never mutates it.
	IsSupported(target string) bool

	// Compile compiles the target and returns the resulting compilation units along with captured compiler
	// warnings. Filenames are interned through the project index as they are resolved.
	Compile(project *types.Project) ([]*types.CompilationUnit, string, error)

	// IsDependency reports whether a path belongs to a vendor directory of this platform.
	IsDependency(path string) bool

	// GuessedTests returns the test commands a developer would likely run for this platform.
	GuessedTests() []string

	// Clean removes the platform's build artifacts for the target.
	Clean(project *types.Project) error
}

// PlatformOptions carries the caller-provided knobs consulted when constructing adapter configs. Adapters copy the
// fields they honor into their own config structs; the zero value leaves every adapter on its defaults.
type PlatformOptions struct {
	// IgnoreCompile skips the framework build command and parses existing artifacts.
	IgnoreCompile bool

	// CompileAll asks frameworks that skip tests and scripts by default to compile everything.
	CompileAll bool

	// NpxDisable invokes node-based frameworks directly instead of through npx.
	NpxDisable bool

	// BuildDirectory overrides the artifact directory of artifact-parsing adapters.
	BuildDirectory string

	// SolcPath is an explicit solc binary to run instead of resolving one.
	SolcPath string

	// SolcVersion pins the solc version through the version manager.
	SolcVersion string

	// SolcArgs are extra arguments appended to direct solc invocations.
	SolcArgs []string

	// SolcRemappings are import remappings passed to direct solc invocations.
	SolcRemappings []string

	// SolcUseStandardJSON drives direct solc targets through the standard-JSON interface instead of combined-JSON.
	SolcUseStandardJSON bool

	// SolcDisableWarnings suppresses compiler warning logging for direct solc targets.
	SolcDisableWarnings bool

	// VyperPath is an explicit vyper binary to run instead of "vyper".
	VyperPath string

	// TruffleVersion pins the truffle version invoked through npx, e.g. "truffle@5.11.5".
	TruffleVersion string

	// EtherlimeCompileArguments are extra space-separated arguments appended to etherlime compile.
	EtherlimeCompileArguments string

	// EmbarkOverwriteConfig lets the embark adapter install its reporting plugin into embark.json.
	EmbarkOverwriteConfig bool

	// EtherscanAPIKey authenticates Etherscan API requests. The ETHERSCAN_API_KEY environment variable is the
	// fallback.
	EtherscanAPIKey string

	// ExportDirectory is where verification fetchers materialize sources and the fetch cache lives. Defaults to
	// "crytic-export".
	ExportDirectory string
}

// exportDirectoryOrDefault returns the configured export directory, or the conventional default.
func (o *PlatformOptions) exportDirectoryOrDefault() string {
	if o != nil && o.ExportDirectory != "" {
		return o.ExportDirectory
	}
	return "crytic-export"
}
