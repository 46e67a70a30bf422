package platforms

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"github.com/crytic/crytic-compile-go/utils"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// SolcCompilationConfig represents the direct solc adapter: a single solidity file compiled without any framework.
// It doubles as the driver the verification fetchers re-dispatch through once sources are materialized.
type SolcCompilationConfig struct {
	// Target is the solidity file to compile.
	Target string `json:"target"`

	// SolcPath is an explicit solc binary to run. When empty the binary is resolved through the locator.
	SolcPath string `json:"solc_path,omitempty"`

	// SolcVersion pins the solc version through the version manager.
	SolcVersion string `json:"solc_version,omitempty"`

	// SolcArgs are extra arguments appended to the invocation, e.g. optimizer settings.
	SolcArgs []string `json:"solc_args,omitempty"`

	// Remappings are import remappings passed to solc, in prefix=target form.
	Remappings []string `json:"remappings,omitempty"`

	// UseStandardJSON compiles through the standard-JSON interface instead of combined-JSON.
	UseStandardJSON bool `json:"use_standard_json,omitempty"`

	// DisableWarnings suppresses logging of compiler warnings.
	DisableWarnings bool `json:"disable_warnings,omitempty"`

	// WorkingDirectory anchors the invocation and path resolution. Empty means the process working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`
}

// NewSolcCompilationConfig returns a solc adapter config for the provided target, on defaults.
func NewSolcCompilationConfig(target string) *SolcCompilationConfig {
	return &SolcCompilationConfig{
		Target: target,
	}
}

// NewSolcCompilationConfigWithOptions returns a solc adapter config for the provided target, honoring the shared
// platform options.
func NewSolcCompilationConfigWithOptions(target string, options *PlatformOptions) *SolcCompilationConfig {
	config := NewSolcCompilationConfig(target)
	if options != nil {
		config.SolcPath = options.SolcPath
		config.SolcVersion = options.SolcVersion
		config.SolcArgs = options.SolcArgs
		config.Remappings = options.SolcRemappings
		config.UseStandardJSON = options.SolcUseStandardJSON
		config.DisableWarnings = options.SolcDisableWarnings
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (s *SolcCompilationConfig) Platform() string {
	return "solc"
}

// Priority returns the detection priority for the configuration.
func (s *SolcCompilationConfig) Priority() int {
	return PriorityFallback
}

// GetTarget returns the target for compilation.
func (s *SolcCompilationConfig) GetTarget() string {
	return s.Target
}

// SetTarget sets the new target for compilation.
func (s *SolcCompilationConfig) SetTarget(newTarget string) {
	s.Target = newTarget
}

// IsSupported reports whether the target is a solidity file on disk.
func (s *SolcCompilationConfig) IsSupported(target string) bool {
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return false
	}
	return strings.HasSuffix(target, ".sol")
}

// IsDependency reports whether the path is a vendored dependency. Direct solc targets have none.
func (s *SolcCompilationConfig) IsDependency(_ string) bool {
	return false
}

// GuessedTests returns the test commands a developer would likely run. Direct solc targets have none.
func (s *SolcCompilationConfig) GuessedTests() []string {
	return nil
}

// Clean removes build artifacts. Direct solc compilation leaves none behind.
func (s *SolcCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// Compile compiles the target with solc and returns the resulting compilation unit.
func (s *SolcCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	// The standard-JSON interface handles remappings and multi-file settings more faithfully; route there when
	// asked to.
	if s.UseStandardJSON {
		standardConfig := &SolcStandardJSONConfig{
			Targets:          []string{s.Target},
			SolcPath:         s.SolcPath,
			SolcVersion:      s.SolcVersion,
			SolcArgs:         s.SolcArgs,
			Remappings:       s.Remappings,
			DisableWarnings:  s.DisableWarnings,
			WorkingDirectory: s.WorkingDirectory,
		}
		return standardConfig.Compile(project)
	}

	// Resolve which solc to run and which version it reports.
	binary, err := LocateSolc(s.SolcPath, s.SolcVersion, s.Target)
	if err != nil {
		return nil, "", err
	}

	// Determine which output options that version can produce.
	outputOptions := SolcOutputOptions(binary.Version)

	// Newer compilers take the target relative to the working directory, with the working directory allowed for
	// imports. Older ones only understand the plain path.
	workingDir := s.WorkingDirectory
	target := s.Target
	args := make([]string, 0, len(s.SolcArgs)+len(s.Remappings)+5)
	if solcSupportsAllowPaths(binary.Version) {
		if relative, ok := pathRelativeTo(target, workingDir); ok {
			target = relative
		}
		args = append(args, target, "--combined-json", outputOptions, "--allow-paths", ".")
	} else {
		args = append(args, target, "--combined-json", outputOptions)
	}
	args = append(args, s.Remappings...)
	args = append(args, s.SolcArgs...)

	// Create our command
	cmd := exec.Command(binary.Path, args...)
	cmd.Dir = workingDir
	cmd.Env = binary.Env
	cmdStdout, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
	if err != nil {
		return nil, "", classifyToolError(binary.Path, err, cmdCombined)
	}
	warnings := string(cmdStderr)
	if warnings != "" && !s.DisableWarnings {
		logging.GlobalLogger.Warn("solc reported warnings:\n", warnings)
	}

	// Our compilation succeeded, load the combined output.
	var output combinedJSONOutput
	if err := json.Unmarshal(cmdStdout, &output); err != nil {
		return nil, warnings, fmt.Errorf("could not parse solc combined output: %v", err)
	}

	compiler := types.CompilerConfig{
		Compiler:   "solc",
		Version:    binary.Version.String(),
		Optimized:  argsEnableOptimizer(s.SolcArgs),
		Remappings: s.Remappings,
	}
	unit := ingestCombinedJSON(project, &output, types.NewUnitID(s.Target), compiler, &types.PathContext{
		WorkingDirectory: workingDir,
		Remappings:       types.ParseRemappings(s.Remappings),
	})
	return []*types.CompilationUnit{unit}, warnings, nil
}

// combinedJSONOutput mirrors the document emitted by solc --combined-json.
type combinedJSONOutput struct {
	// Contracts maps "path:ContractName" keys to per-contract output.
	Contracts map[string]combinedJSONContract `json:"contracts"`

	// Sources maps source paths to per-file output.
	Sources map[string]combinedJSONSource `json:"sources"`

	// SourceList preserves the compiler's source ordering. Older compilers emit it, newer ones may not.
	SourceList []string `json:"sourceList"`

	// Version is the long version string of the producing compiler.
	Version string `json:"version"`
}

// combinedJSONContract is the per-contract slice of a combined-json document.
type combinedJSONContract struct {
	Abi           json.RawMessage   `json:"abi"`
	Bin           string            `json:"bin"`
	BinRuntime    string            `json:"bin-runtime"`
	SrcMap        string            `json:"srcmap"`
	SrcMapRuntime string            `json:"srcmap-runtime"`
	Userdoc       json.RawMessage   `json:"userdoc"`
	Devdoc        json.RawMessage   `json:"devdoc"`
	Hashes        map[string]string `json:"hashes"`
	Metadata      string            `json:"metadata"`
}

// combinedJSONSource is the per-file slice of a combined-json document.
type combinedJSONSource struct {
	AST json.RawMessage `json:"AST"`
}

// ingestCombinedJSON converts a combined-json document into a compilation unit, interning every path through the
// project index. Source units are installed in the compiler's order when it reported one.
func ingestCombinedJSON(project *types.Project, output *combinedJSONOutput, unitID string, compiler types.CompilerConfig, pathContext *types.PathContext) *types.CompilationUnit {
	unit := types.NewCompilationUnit(unitID, compiler)

	// Establish a deterministic source order: the compiler's own list when present, sorted paths otherwise.
	sourceOrder := output.SourceList
	if len(sourceOrder) == 0 {
		sourceOrder = maps.Keys(output.Sources)
		slices.Sort(sourceOrder)
	}

	for _, sourcePath := range sourceOrder {
		source, ok := output.Sources[sourcePath]
		if !ok {
			continue
		}
		filename := project.InternFilename(pathContext.Resolve(sourcePath))
		unit.AddSourceUnit(types.NewSourceUnit(filename, source.AST))
	}

	// Attach contracts to the files that declare them. The key carries the declaring path, so files missing from
	// the sources section still get a source unit.
	contractKeys := maps.Keys(output.Contracts)
	slices.Sort(contractKeys)
	for _, key := range contractKeys {
		info := output.Contracts[key]
		sourcePath := extractContractFilename(key)
		name := extractContractName(key)

		filename := project.InternFilename(pathContext.Resolve(sourcePath))
		sourceUnit := unit.AddSourceUnit(types.NewSourceUnit(filename, nil))

		contract := &types.CompiledContract{
			Name:            name,
			Abi:             normalizeRawJSON(info.Abi),
			InitBytecode:    types.NormalizeBytecodeString(info.Bin),
			RuntimeBytecode: types.NormalizeBytecodeString(info.BinRuntime),
			SrcMapsInit:     info.SrcMap,
			SrcMapsRuntime:  info.SrcMapRuntime,
			Natspec:         types.NewNatspec(normalizeRawJSON(info.Userdoc), normalizeRawJSON(info.Devdoc)),
		}

		// The syntax tree knows whether this is a contract, library, or interface.
		if parsed, err := sourceUnit.ParsedAst(); err == nil {
			contract.ClassifyKind(parsed.ContractNamed(name))
		} else {
			contract.ClassifyKind(nil)
		}
		sourceUnit.AddContract(contract)
	}
	return unit
}

// extractContractName converts a "path:Contract" key to the contract name.
func extractContractName(key string) string {
	if idx := strings.LastIndex(key, ":"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// extractContractFilename converts a "path:Contract" key to the declaring path. Paths may themselves contain
// colons, so only the last separator counts.
func extractContractFilename(key string) string {
	if idx := strings.LastIndex(key, ":"); idx >= 0 {
		return key[:idx]
	}
	return key
}

// normalizeRawJSON unwraps documents older compilers emit as JSON-encoded strings, leaving plain documents alone.
func normalizeRawJSON(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "\"") {
		return raw
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return raw
	}
	return json.RawMessage(inner)
}

// argsEnableOptimizer reports whether a solc argument list switches the optimizer on.
func argsEnableOptimizer(args []string) bool {
	for _, arg := range args {
		if arg == "--optimize" {
			return true
		}
	}
	return false
}

// pathRelativeTo rewrites a path relative to a base directory when that yields a usable relative path. The base
// defaults to the process working directory.
func pathRelativeTo(path string, base string) (string, bool) {
	if base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", false
		}
		base = cwd
	}
	absolute := path
	if !filepath.IsAbs(absolute) {
		absolute = filepath.Join(base, path)
	}
	relative, err := filepath.Rel(base, absolute)
	if err != nil || strings.HasPrefix(relative, "..") {
		return "", false
	}
	return relative, true
}
