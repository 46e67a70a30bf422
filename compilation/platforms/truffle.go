package platforms

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"github.com/crytic/crytic-compile-go/utils"
)

var (
	// truffleConfigVersionPattern matches a pinned compiler version inside truffle-config.js.
	truffleConfigVersionPattern = regexp.MustCompile(`solc: \{[ ]*\n[ ]*version: "([0-9.]*)`)

	// truffleCompilerNamePattern matches the compiler name reported by truffle version.
	truffleCompilerNamePattern = regexp.MustCompile(`(solc[a-z\-]*)`)
)

// TruffleCompilationConfig represents the truffle framework adapter. It drives truffle compile and ingests the
// per-contract artifacts truffle writes.
type TruffleCompilationConfig struct {
	// Target is the project directory containing a truffle config file.
	Target string `json:"target"`

	// IgnoreCompile skips truffle compile and parses existing artifacts.
	IgnoreCompile bool `json:"ignore_compile,omitempty"`

	// NpxDisable invokes a globally installed truffle instead of going through npx.
	NpxDisable bool `json:"npx_disable,omitempty"`

	// Version pins the truffle version invoked through npx, either "X.Y.Z" or a full "truffle@X.Y.Z" spec.
	Version string `json:"version,omitempty"`

	// BuildDirectory overrides the artifact directory, build/contracts by convention.
	BuildDirectory string `json:"build_directory,omitempty"`
}

// NewTruffleCompilationConfig returns a truffle adapter config for the provided project directory.
func NewTruffleCompilationConfig(target string) *TruffleCompilationConfig {
	return &TruffleCompilationConfig{Target: target}
}

// NewTruffleCompilationConfigWithOptions returns a truffle adapter config honoring the shared platform options.
func NewTruffleCompilationConfigWithOptions(target string, options *PlatformOptions) *TruffleCompilationConfig {
	config := NewTruffleCompilationConfig(target)
	if options != nil {
		config.IgnoreCompile = options.IgnoreCompile
		config.NpxDisable = options.NpxDisable
		config.Version = options.TruffleVersion
		config.BuildDirectory = options.BuildDirectory
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (t *TruffleCompilationConfig) Platform() string {
	return "truffle"
}

// Priority returns the detection priority for the configuration.
func (t *TruffleCompilationConfig) Priority() int {
	return PriorityTruffle
}

// GetTarget returns the target for compilation.
func (t *TruffleCompilationConfig) GetTarget() string {
	return t.Target
}

// SetTarget sets the new target for compilation.
func (t *TruffleCompilationConfig) SetTarget(newTarget string) {
	t.Target = newTarget
}

// IsSupported reports whether the target directory holds a truffle project. Hardhat projects keep a compatible
// truffle config around, so those defer to the hardhat adapters.
func (t *TruffleCompilationConfig) IsSupported(target string) bool {
	hasConfig := utils.FileExists(filepath.Join(target, "truffle.js")) ||
		utils.FileExists(filepath.Join(target, "truffle-config.js"))
	return hasConfig && !hasHardhatConfig(target)
}

// IsDependency reports whether the path lives in a vendored dependency tree.
func (t *TruffleCompilationConfig) IsDependency(path string) bool {
	return pathHasComponent(path, "node_modules")
}

// GuessedTests returns the test commands a developer would likely run.
func (t *TruffleCompilationConfig) GuessedTests() []string {
	return []string{"truffle test"}
}

// Clean removes build artifacts. Truffle has no clean task of its own, so artifacts are left in place.
func (t *TruffleCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// truffleArtifact mirrors the per-contract JSON files truffle writes under build/contracts.
type truffleArtifact struct {
	ContractName      string          `json:"contractName"`
	Abi               json.RawMessage `json:"abi"`
	Bytecode          string          `json:"bytecode"`
	DeployedBytecode  string          `json:"deployedBytecode"`
	SourceMap         string          `json:"sourceMap"`
	DeployedSourceMap string          `json:"deployedSourceMap"`
	Userdoc           json.RawMessage `json:"userdoc"`
	Devdoc            json.RawMessage `json:"devdoc"`
	Metadata          string          `json:"metadata"`
	Ast               json.RawMessage `json:"ast"`
	Compiler          struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"compiler"`
}

// Compile runs truffle compile and ingests every artifact it wrote into a single compilation unit.
func (t *TruffleCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	buildDirectory := t.BuildDirectory
	if buildDirectory == "" {
		buildDirectory = filepath.Join("build", "contracts")
	}

	warnings := ""
	if t.IgnoreCompile {
		logging.GlobalLogger.Info("Skipping truffle compile, if something goes wrong consider removing the ", buildDirectory, " directory")
	} else {
		cmd := t.compileCommand()
		cmd.Dir = t.Target
		_, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
		if err != nil {
			return nil, "", classifyToolError("truffle", err, cmdCombined)
		}
		warnings = strings.TrimSpace(string(cmdStderr))
	}

	matches, err := filepath.Glob(filepath.Join(t.Target, buildDirectory, "*.json"))
	if err != nil {
		return nil, warnings, err
	}
	if len(matches) == 0 {
		return nil, warnings, fmt.Errorf("%w: no truffle artifacts found in %s", types.ErrCompilationFailed, buildDirectory)
	}

	pathContext := &types.PathContext{
		WorkingDirectory:  t.Target,
		VendorDirectories: []string{"node_modules"},
		Shortener: func(short string) string {
			return types.StripPathPrefixes(short, "contracts", "node_modules")
		},
	}

	compiler := types.CompilerConfig{Compiler: "solc-js"}
	unit := types.NewCompilationUnit(types.NewUnitID(t.Target), compiler)
	optimizedKnown := false
	for _, match := range matches {
		encoded, err := os.ReadFile(match)
		if err != nil {
			return nil, warnings, err
		}
		var artifact truffleArtifact
		if err := json.Unmarshal(encoded, &artifact); err != nil {
			return nil, warnings, fmt.Errorf("could not parse truffle artifact %s: %v", match, err)
		}

		// Artifacts without a syntax tree carry no source identity to anchor the contract to.
		parsed, err := types.ParseAST(artifact.Ast)
		if err != nil || parsed.AbsolutePath == "" {
			continue
		}

		filename := project.InternFilename(pathContext.Resolve(parsed.AbsolutePath))
		sourceUnit := unit.AddSourceUnit(types.NewSourceUnit(filename, artifact.Ast))

		contract := &types.CompiledContract{
			Name:            artifact.ContractName,
			Abi:             artifact.Abi,
			InitBytecode:    types.NormalizeBytecodeString(artifact.Bytecode),
			RuntimeBytecode: types.NormalizeBytecodeString(artifact.DeployedBytecode),
			SrcMapsInit:     artifact.SourceMap,
			SrcMapsRuntime:  artifact.DeployedSourceMap,
			Natspec:         types.NewNatspec(artifact.Userdoc, artifact.Devdoc),
		}
		contract.ClassifyKind(parsed.ContractNamed(artifact.ContractName))
		sourceUnit.AddContract(contract)

		if unit.Compiler.Version == "" && artifact.Compiler.Version != "" {
			version, _, _ := strings.Cut(artifact.Compiler.Version, "+")
			unit.Compiler.Version = strings.TrimPrefix(version, "v")
		}
		if !optimizedKnown {
			if optimized, ok := metadataOptimizerEnabled(artifact.Metadata); ok {
				unit.Compiler.Optimized = optimized
				optimizedKnown = true
			}
		}
	}

	// Projects compiled before artifacts recorded compiler versions need the config or the tool itself to say.
	if unit.Compiler.Version == "" {
		name, version := t.guessCompilerVersion()
		if name != "" {
			unit.Compiler.Compiler = name
		}
		unit.Compiler.Version = version
	}
	return []*types.CompilationUnit{unit}, warnings, nil
}

// compileCommand builds the truffle compile invocation, pinning the npx package version when one was requested
// or declared in package.json.
func (t *TruffleCompilationConfig) compileCommand() *exec.Cmd {
	tool := "truffle"
	if t.Version != "" {
		if strings.HasPrefix(t.Version, "truffle") {
			tool = t.Version
		} else {
			tool = "truffle@" + t.Version
		}
	} else if declared, ok := readPackageJSON(t.Target).dependencyVersion("truffle"); ok {
		tool = "truffle@" + strings.TrimPrefix(declared, "^")
	}
	if t.NpxDisable {
		tool = "truffle"
	}
	return nodeCommand(t.NpxDisable, tool, "compile", "--all")
}

// guessCompilerVersion recovers the compiler name and version from truffle-config.js, falling back to asking
// truffle version directly.
func (t *TruffleCompilationConfig) guessCompilerVersion() (string, string) {
	if encoded, err := os.ReadFile(filepath.Join(t.Target, "truffle-config.js")); err == nil {
		if match := truffleConfigVersionPattern.FindSubmatch(encoded); match != nil {
			return "solc-js", string(match[1])
		}
	}

	cmd := nodeCommand(t.NpxDisable, "truffle", "version")
	cmd.Dir = t.Target
	cmdStdout, _, _, err := utils.RunCommandWithOutputAndError(cmd)
	if err != nil {
		logging.GlobalLogger.Warn("Could not guess the truffle compiler version: ", err)
		return "", ""
	}
	for _, line := range strings.Split(string(cmdStdout), "\n") {
		if !strings.Contains(line, "Solidity") {
			continue
		}
		if strings.Contains(line, "native") {
			// Native mode hands compilation to whatever solc the system provides.
			if version, err := GetSystemSolcVersion(); err == nil {
				return "solc-native", version.String()
			}
			return "solc-native", ""
		}
		name := truffleCompilerNamePattern.FindString(line)
		return name, versionPattern.FindString(line)
	}
	return "", ""
}

// metadataOptimizerEnabled digs the optimizer switch out of a metadata document, which artifacts embed as a
// JSON-encoded string.
func metadataOptimizerEnabled(metadata string) (bool, bool) {
	if metadata == "" {
		return false, false
	}
	var decoded struct {
		Settings struct {
			Optimizer *struct {
				Enabled bool `json:"enabled"`
			} `json:"optimizer"`
		} `json:"settings"`
	}
	if err := json.Unmarshal([]byte(metadata), &decoded); err != nil || decoded.Settings.Optimizer == nil {
		return false, false
	}
	return decoded.Settings.Optimizer.Enabled, true
}
