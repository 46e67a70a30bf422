package platforms

import (
	"bytes"
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

// StandardJSONInput mirrors the input document of solc --standard-json.
type StandardJSONInput struct {
	// Language is the source language, "Solidity" here.
	Language string `json:"language"`

	// Sources maps source paths to their location or inline content.
	Sources map[string]StandardJSONSource `json:"sources"`

	// Settings carries compiler settings and the output selection.
	Settings StandardJSONSettings `json:"settings"`
}

// StandardJSONSource locates one input source, either by path for the compiler to read or by inline content.
type StandardJSONSource struct {
	URLs    []string `json:"urls,omitempty"`
	Content string   `json:"content,omitempty"`
}

// StandardJSONSettings is the settings section of a standard-JSON input.
type StandardJSONSettings struct {
	Remappings      []string                       `json:"remappings,omitempty"`
	Optimizer       *StandardJSONOptimizer         `json:"optimizer,omitempty"`
	EVMVersion      string                         `json:"evmVersion,omitempty"`
	ViaIR           bool                           `json:"viaIR,omitempty"`
	Libraries       map[string]map[string]string   `json:"libraries,omitempty"`
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

// StandardJSONOptimizer is the optimizer subsection of standard-JSON settings.
type StandardJSONOptimizer struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs,omitempty"`
}

// NewStandardJSONInput returns an input document requesting the outputs the canonical model is built from: ABI,
// metadata, documentation, both bytecodes, and per-file syntax trees.
func NewStandardJSONInput() *StandardJSONInput {
	return &StandardJSONInput{
		Language: "Solidity",
		Sources:  make(map[string]StandardJSONSource),
		Settings: StandardJSONSettings{
			Optimizer: &StandardJSONOptimizer{Enabled: false},
			OutputSelection: map[string]map[string][]string{
				"*": {
					"*": {"abi", "metadata", "devdoc", "userdoc", "evm.bytecode", "evm.deployedBytecode"},
					"":  {"ast"},
				},
			},
		},
	}
}

// AddSourceFile adds a source by path, for the compiler to read from disk.
func (i *StandardJSONInput) AddSourceFile(path string) {
	i.Sources[path] = StandardJSONSource{URLs: []string{path}}
}

// AddSourceContent adds a source with inline content.
func (i *StandardJSONInput) AddSourceContent(path string, content string) {
	i.Sources[path] = StandardJSONSource{Content: content}
}

// AddRemapping appends an import remapping in prefix=target form.
func (i *StandardJSONInput) AddRemapping(remapping string) {
	i.Settings.Remappings = append(i.Settings.Remappings, remapping)
}

// StandardJSONOutput mirrors the output document of solc --standard-json. The same shape appears inside hardhat
// and buidler build artifacts, so their adapters ingest through it as well.
type StandardJSONOutput struct {
	// Errors lists diagnostics of every severity.
	Errors []StandardJSONError `json:"errors,omitempty"`

	// Sources maps source paths to per-file output.
	Sources map[string]StandardJSONOutputSource `json:"sources"`

	// Contracts maps source paths to the contracts each declares.
	Contracts map[string]map[string]StandardJSONOutputContract `json:"contracts"`
}

// StandardJSONError is one compiler diagnostic.
type StandardJSONError struct {
	Type             string `json:"type"`
	Severity         string `json:"severity"`
	Message          string `json:"message"`
	FormattedMessage string `json:"formattedMessage"`
}

// StandardJSONOutputSource is the per-file slice of a standard-JSON output.
type StandardJSONOutputSource struct {
	// ID is the compiler-assigned numeric file identifier referenced by source maps.
	ID *int `json:"id"`

	// AST is the syntax tree of the file, verbatim.
	AST json.RawMessage `json:"ast"`
}

// StandardJSONOutputContract is the per-contract slice of a standard-JSON output.
type StandardJSONOutputContract struct {
	Abi      json.RawMessage `json:"abi"`
	Userdoc  json.RawMessage `json:"userdoc"`
	Devdoc   json.RawMessage `json:"devdoc"`
	Metadata string          `json:"metadata"`
	EVM      struct {
		Bytecode         StandardJSONBytecode `json:"bytecode"`
		DeployedBytecode StandardJSONBytecode `json:"deployedBytecode"`
	} `json:"evm"`
}

// StandardJSONBytecode is one bytecode object of a standard-JSON output.
type StandardJSONBytecode struct {
	Object    string `json:"object"`
	SourceMap string `json:"sourceMap"`
}

// CheckErrors splits the diagnostics: error-severity entries become a compilation failure, everything else is
// joined into the returned warnings text.
func (o *StandardJSONOutput) CheckErrors() (string, error) {
	var errorMessages []string
	var warningMessages []string
	for _, diagnostic := range o.Errors {
		message := diagnostic.FormattedMessage
		if message == "" {
			message = diagnostic.Message
		}
		if diagnostic.Severity == "error" {
			errorMessages = append(errorMessages, message)
		} else {
			warningMessages = append(warningMessages, message)
		}
	}
	warnings := strings.Join(warningMessages, "\n")
	if len(errorMessages) > 0 {
		return warnings, fmt.Errorf("%w: %s", types.ErrCompilationFailed, strings.Join(errorMessages, " "))
	}
	return warnings, nil
}

// RunSolcStandardJSON feeds an input document to solc --standard-json and returns the decoded output along with
// any warning text. Error-severity diagnostics fail the run.
func RunSolcStandardJSON(binary *SolcBinary, input *StandardJSONInput, workingDir string, extraArgs []string) (*StandardJSONOutput, string, error) {
	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, "", err
	}

	args := append([]string{"--standard-json", "--allow-paths", "."}, extraArgs...)
	cmd := exec.Command(binary.Path, args...)
	cmd.Dir = workingDir
	cmd.Env = binary.Env
	cmd.Stdin = bytes.NewReader(encoded)
	cmdStdout, _, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
	if err != nil {
		return nil, "", classifyToolError(binary.Path, err, cmdCombined)
	}

	var output StandardJSONOutput
	if err := json.Unmarshal(cmdStdout, &output); err != nil {
		return nil, "", fmt.Errorf("could not parse solc standard-json output: %v", err)
	}

	// Standard-JSON reports source errors in-band with a zero exit code.
	warnings, err := output.CheckErrors()
	if err != nil {
		return nil, warnings, err
	}
	return &output, warnings, nil
}

// ingestStandardJSON converts a standard-JSON output document into a compilation unit, interning every path
// through the project index.
func ingestStandardJSON(project *types.Project, output *StandardJSONOutput, unitID string, compiler types.CompilerConfig, pathContext *types.PathContext) *types.CompilationUnit {
	unit := types.NewCompilationUnit(unitID, compiler)

	sourcePaths := maps.Keys(output.Sources)
	slices.Sort(sourcePaths)
	for _, sourcePath := range sourcePaths {
		source := output.Sources[sourcePath]
		filename := project.InternFilename(pathContext.Resolve(sourcePath))
		sourceUnit := unit.AddSourceUnit(types.NewSourceUnit(filename, source.AST))
		// The explicit identifier wins over whatever the syntax tree revealed.
		if source.ID != nil {
			sourceUnit.ID = *source.ID
		}
	}

	contractPaths := maps.Keys(output.Contracts)
	slices.Sort(contractPaths)
	for _, contractPath := range contractPaths {
		declared := output.Contracts[contractPath]
		filename := project.InternFilename(pathContext.Resolve(contractPath))
		sourceUnit := unit.AddSourceUnit(types.NewSourceUnit(filename, nil))

		names := maps.Keys(declared)
		slices.Sort(names)
		for _, rawName := range names {
			info := declared[rawName]
			// Some producers key contracts as "path:Name" even inside the per-file map.
			name := extractContractName(rawName)

			contract := &types.CompiledContract{
				Name:            name,
				Abi:             info.Abi,
				InitBytecode:    types.NormalizeBytecodeString(info.EVM.Bytecode.Object),
				RuntimeBytecode: types.NormalizeBytecodeString(info.EVM.DeployedBytecode.Object),
				SrcMapsInit:     info.EVM.Bytecode.SourceMap,
				SrcMapsRuntime:  info.EVM.DeployedBytecode.SourceMap,
				Natspec:         types.NewNatspec(info.Userdoc, info.Devdoc),
			}
			if parsed, err := sourceUnit.ParsedAst(); err == nil {
				contract.ClassifyKind(parsed.ContractNamed(name))
			} else {
				contract.ClassifyKind(nil)
			}
			sourceUnit.AddContract(contract)
		}
	}
	return unit
}

// SolcStandardJSONConfig represents the solc adapter driven through the standard-JSON interface. Multiple targets
// aggregate into a single compilation unit, which is how directories of loose solidity files compile.
type SolcStandardJSONConfig struct {
	// Targets are the solidity files to compile together.
	Targets []string `json:"targets"`

	// SolcPath is an explicit solc binary to run. When empty the binary is resolved through the locator.
	SolcPath string `json:"solc_path,omitempty"`

	// SolcVersion pins the solc version through the version manager.
	SolcVersion string `json:"solc_version,omitempty"`

	// SolcArgs are extra arguments appended to the invocation. Optimizer flags are translated into settings.
	SolcArgs []string `json:"solc_args,omitempty"`

	// Remappings are import remappings, in prefix=target form.
	Remappings []string `json:"remappings,omitempty"`

	// EVMVersion selects the EVM target, when recovered settings carry one.
	EVMVersion string `json:"evm_version,omitempty"`

	// ViaIR compiles through the IR pipeline.
	ViaIR bool `json:"via_ir,omitempty"`

	// Optimize enables the optimizer, with OptimizeRuns when non-zero.
	Optimize     bool `json:"optimize,omitempty"`
	OptimizeRuns int  `json:"optimize_runs,omitempty"`

	// DisableWarnings suppresses logging of compiler warnings.
	DisableWarnings bool `json:"disable_warnings,omitempty"`

	// WorkingDirectory anchors the invocation and path resolution. Empty means the process working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`
}

// NewSolcStandardJSONConfig returns a standard-JSON adapter config for the provided targets, honoring the shared
// platform options.
func NewSolcStandardJSONConfig(targets []string, options *PlatformOptions) *SolcStandardJSONConfig {
	config := &SolcStandardJSONConfig{
		Targets: targets,
	}
	if options != nil {
		config.SolcPath = options.SolcPath
		config.SolcVersion = options.SolcVersion
		config.SolcArgs = options.SolcArgs
		config.Remappings = options.SolcRemappings
		config.DisableWarnings = options.SolcDisableWarnings
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (s *SolcStandardJSONConfig) Platform() string {
	return "solc-json"
}

// Priority returns the detection priority for the configuration.
func (s *SolcStandardJSONConfig) Priority() int {
	return PriorityFallback
}

// GetTarget returns the target for compilation. Aggregated targets are joined with commas.
func (s *SolcStandardJSONConfig) GetTarget() string {
	return strings.Join(s.Targets, ",")
}

// SetTarget sets the new target for compilation, replacing any aggregated targets.
func (s *SolcStandardJSONConfig) SetTarget(newTarget string) {
	s.Targets = []string{newTarget}
}

// IsSupported reports whether the target is a solidity file, or a directory containing any.
func (s *SolcStandardJSONConfig) IsSupported(target string) bool {
	info, err := os.Stat(target)
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return strings.HasSuffix(target, ".sol")
	}
	return len(FindSolidityFiles(target)) > 0
}

// IsDependency reports whether the path is a vendored dependency. Loose solidity targets have none.
func (s *SolcStandardJSONConfig) IsDependency(_ string) bool {
	return false
}

// GuessedTests returns the test commands a developer would likely run. Loose solidity targets have none.
func (s *SolcStandardJSONConfig) GuessedTests() []string {
	return nil
}

// Clean removes build artifacts. Standard-JSON compilation leaves none behind.
func (s *SolcStandardJSONConfig) Clean(_ *types.Project) error {
	return nil
}

// Compile compiles the aggregated targets in one solc standard-JSON invocation and returns the single resulting
// compilation unit.
func (s *SolcStandardJSONConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	// Directory targets expand into every solidity file beneath them.
	targets := make([]string, 0, len(s.Targets))
	for _, target := range s.Targets {
		info, err := os.Stat(target)
		if err == nil && info.IsDir() {
			targets = append(targets, FindSolidityFiles(target)...)
			continue
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return nil, "", fmt.Errorf("%w: no solidity files to compile", types.ErrInvalidTarget)
	}

	locatorTarget := targets[0]
	binary, err := LocateSolc(s.SolcPath, s.SolcVersion, locatorTarget)
	if err != nil {
		return nil, "", err
	}

	input := NewStandardJSONInput()
	for _, target := range targets {
		// Hand solc paths relative to the invocation directory so --allow-paths . covers them.
		if relative, ok := pathRelativeTo(target, s.WorkingDirectory); ok {
			input.AddSourceFile(relative)
		} else {
			input.AddSourceFile(target)
		}
	}
	input.Settings.Remappings = s.Remappings
	input.Settings.EVMVersion = s.EVMVersion
	input.Settings.ViaIR = s.ViaIR
	optimize := s.Optimize || argsEnableOptimizer(s.SolcArgs)
	input.Settings.Optimizer = &StandardJSONOptimizer{Enabled: optimize, Runs: s.OptimizeRuns}

	output, warnings, err := RunSolcStandardJSON(binary, input, s.WorkingDirectory, nil)
	if err != nil {
		return nil, warnings, err
	}
	if warnings != "" && !s.DisableWarnings {
		logging.GlobalLogger.Warn("solc reported warnings:\n", warnings)
	}

	compiler := types.CompilerConfig{
		Compiler:     "solc",
		Version:      binary.Version.String(),
		Optimized:    optimize,
		OptimizeRuns: s.OptimizeRuns,
		EVMVersion:   s.EVMVersion,
		ViaIR:        s.ViaIR,
		Remappings:   s.Remappings,
	}
	unit := ingestStandardJSON(project, output, types.NewUnitID(s.GetTarget()), compiler, &types.PathContext{
		WorkingDirectory: s.WorkingDirectory,
		Remappings:       types.ParseRemappings(s.Remappings),
	})
	return []*types.CompilationUnit{unit}, warnings, nil
}

// FindSolidityFiles returns every solidity file beneath a directory, sorted. Hidden directories and node vendor
// trees are skipped the way a developer would expect.
func FindSolidityFiles(directory string) []string {
	return findSourceFiles(directory, ".sol")
}

// FindVyperFiles returns every vyper file beneath a directory, sorted.
func FindVyperFiles(directory string) []string {
	return findSourceFiles(directory, ".vy")
}

// findSourceFiles walks a directory for files with the extension, skipping hidden directories and node vendor
// trees below the root. The root itself is always walked, even when its own name is hidden.
func findSourceFiles(directory string, extension string) []string {
	var found []string
	_ = filepath.WalkDir(directory, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			name := entry.Name()
			if path != directory && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(entry.Name(), extension) {
			found = append(found, path)
		}
		return nil
	})
	slices.Sort(found)
	return found
}
