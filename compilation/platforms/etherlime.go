package platforms

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"github.com/crytic/crytic-compile-go/utils"
)

// EtherlimeCompilationConfig represents the etherlime framework adapter. It drives etherlime compile and ingests
// the truffle-shaped artifacts etherlime writes.
type EtherlimeCompilationConfig struct {
	// Target is the project directory declaring an etherlime dependency.
	Target string `json:"target"`

	// IgnoreCompile skips etherlime compile and parses existing artifacts.
	IgnoreCompile bool `json:"ignore_compile,omitempty"`

	// NpxDisable invokes a globally installed etherlime instead of going through npx.
	NpxDisable bool `json:"npx_disable,omitempty"`

	// CompileArguments are extra space-separated arguments appended to etherlime compile.
	CompileArguments string `json:"compile_arguments,omitempty"`

	// BuildDirectory overrides the artifact directory, "build" by convention.
	BuildDirectory string `json:"build_directory,omitempty"`
}

// NewEtherlimeCompilationConfig returns an etherlime adapter config for the provided project directory.
func NewEtherlimeCompilationConfig(target string) *EtherlimeCompilationConfig {
	return &EtherlimeCompilationConfig{Target: target}
}

// NewEtherlimeCompilationConfigWithOptions returns an etherlime adapter config honoring the shared platform
// options.
func NewEtherlimeCompilationConfigWithOptions(target string, options *PlatformOptions) *EtherlimeCompilationConfig {
	config := NewEtherlimeCompilationConfig(target)
	if options != nil {
		config.IgnoreCompile = options.IgnoreCompile
		config.NpxDisable = options.NpxDisable
		config.CompileArguments = options.EtherlimeCompileArguments
		config.BuildDirectory = options.BuildDirectory
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (e *EtherlimeCompilationConfig) Platform() string {
	return "etherlime"
}

// Priority returns the detection priority for the configuration.
func (e *EtherlimeCompilationConfig) Priority() int {
	return PriorityEtherlime
}

// GetTarget returns the target for compilation.
func (e *EtherlimeCompilationConfig) GetTarget() string {
	return e.Target
}

// SetTarget sets the new target for compilation.
func (e *EtherlimeCompilationConfig) SetTarget(newTarget string) {
	e.Target = newTarget
}

// IsSupported reports whether the target directory declares an etherlime dependency.
func (e *EtherlimeCompilationConfig) IsSupported(target string) bool {
	manifest := readPackageJSON(target)
	return manifest.hasDependency("etherlime-lib") || manifest.hasDependency("etherlime")
}

// IsDependency reports whether the path lives in a vendored dependency tree.
func (e *EtherlimeCompilationConfig) IsDependency(path string) bool {
	return pathHasComponent(path, "node_modules")
}

// GuessedTests returns the test commands a developer would likely run.
func (e *EtherlimeCompilationConfig) GuessedTests() []string {
	return []string{"etherlime test"}
}

// Clean removes build artifacts. Etherlime deletes stale artifacts itself on the next compile.
func (e *EtherlimeCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// Compile runs etherlime compile and ingests every artifact it wrote into a single compilation unit.
func (e *EtherlimeCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	buildDirectory := e.BuildDirectory
	if buildDirectory == "" {
		buildDirectory = "build"
	}

	warnings := ""
	if e.IgnoreCompile {
		logging.GlobalLogger.Info("Skipping etherlime compile, if something goes wrong consider removing the ", buildDirectory, " directory")
	} else {
		args := []string{"compile", e.Target, "deleteCompiledFiles=true"}
		if e.CompileArguments != "" {
			args = append(args, strings.Fields(e.CompileArguments)...)
		}
		cmd := nodeCommand(e.NpxDisable, "etherlime", args...)
		cmd.Dir = e.Target
		_, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
		if err != nil {
			return nil, "", classifyToolError("etherlime", err, cmdCombined)
		}
		warnings = strings.TrimSpace(string(cmdStderr))
	}

	matches, err := filepath.Glob(filepath.Join(e.Target, buildDirectory, "*.json"))
	if err != nil {
		return nil, warnings, err
	}
	if len(matches) == 0 {
		return nil, warnings, fmt.Errorf("%w: no etherlime artifacts found in %s", types.ErrCompilationFailed, buildDirectory)
	}

	pathContext := &types.PathContext{
		WorkingDirectory:  e.Target,
		VendorDirectories: []string{"node_modules"},
	}
	unit := types.NewCompilationUnit(types.NewUnitID(e.Target), types.CompilerConfig{
		Compiler: "solc-js",
		// Optimizer runs only surface through explicit compile arguments.
		Optimized: strings.Contains(e.CompileArguments, "--run"),
	})
	for _, match := range matches {
		encoded, err := os.ReadFile(match)
		if err != nil {
			return nil, warnings, err
		}
		var artifact truffleArtifact
		if err := json.Unmarshal(encoded, &artifact); err != nil {
			return nil, warnings, fmt.Errorf("could not parse etherlime artifact %s: %v", match, err)
		}

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
			unit.Compiler.Version = versionPattern.FindString(artifact.Compiler.Version)
		}
	}
	return []*types.CompilationUnit{unit}, warnings, nil
}
