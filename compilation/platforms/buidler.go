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

// BuidlerCompilationConfig represents the adapter for buidler, the framework hardhat grew out of. It drives
// buidler compile and ingests the cached standard-JSON output buidler keeps.
type BuidlerCompilationConfig struct {
	// Target is the project directory containing a buidler config file.
	Target string `json:"target"`

	// IgnoreCompile skips buidler compile and parses existing artifacts.
	IgnoreCompile bool `json:"ignore_compile,omitempty"`

	// NpxDisable invokes a globally installed buidler instead of going through npx.
	NpxDisable bool `json:"npx_disable,omitempty"`

	// BuildDirectory overrides the cache directory, "cache" by convention.
	BuildDirectory string `json:"build_directory,omitempty"`

	// WorkingDirectory resolves artifact paths when the buidler project is nested below the analyzed directory.
	// Empty means the target itself.
	WorkingDirectory string `json:"working_directory,omitempty"`
}

// NewBuidlerCompilationConfig returns a buidler adapter config for the provided project directory.
func NewBuidlerCompilationConfig(target string) *BuidlerCompilationConfig {
	return &BuidlerCompilationConfig{Target: target}
}

// NewBuidlerCompilationConfigWithOptions returns a buidler adapter config honoring the shared platform options.
func NewBuidlerCompilationConfigWithOptions(target string, options *PlatformOptions) *BuidlerCompilationConfig {
	config := NewBuidlerCompilationConfig(target)
	if options != nil {
		config.IgnoreCompile = options.IgnoreCompile
		config.NpxDisable = options.NpxDisable
		config.BuildDirectory = options.BuildDirectory
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (b *BuidlerCompilationConfig) Platform() string {
	return "buidler"
}

// Priority returns the detection priority for the configuration.
func (b *BuidlerCompilationConfig) Priority() int {
	return PriorityBuidler
}

// GetTarget returns the target for compilation.
func (b *BuidlerCompilationConfig) GetTarget() string {
	return b.Target
}

// SetTarget sets the new target for compilation.
func (b *BuidlerCompilationConfig) SetTarget(newTarget string) {
	b.Target = newTarget
}

// IsSupported reports whether the target directory holds a buidler project.
func (b *BuidlerCompilationConfig) IsSupported(target string) bool {
	return utils.FileExists(filepath.Join(target, "buidler.config.js")) ||
		utils.FileExists(filepath.Join(target, "buidler.config.ts"))
}

// IsDependency reports whether the path lives in a vendored dependency tree.
func (b *BuidlerCompilationConfig) IsDependency(path string) bool {
	return pathHasComponent(path, "node_modules")
}

// GuessedTests returns the test commands a developer would likely run.
func (b *BuidlerCompilationConfig) GuessedTests() []string {
	return []string{"buidler test"}
}

// Clean removes build artifacts. Buidler refreshes its cache on the next compile, so nothing is removed here.
func (b *BuidlerCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// Compile runs buidler compile and ingests the cached compiler output into a single compilation unit.
func (b *BuidlerCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	cacheDirectory := b.BuildDirectory
	if cacheDirectory == "" {
		cacheDirectory = "cache"
	}

	warnings := ""
	if b.IgnoreCompile {
		logging.GlobalLogger.Info("Skipping buidler compile, if something goes wrong consider removing the ", cacheDirectory, " directory")
	} else {
		cmd := nodeCommand(b.NpxDisable, "buidler", "compile")
		cmd.Dir = b.Target
		_, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
		if err != nil {
			return nil, "", classifyToolError("buidler", err, cmdCombined)
		}
		warnings = strings.TrimSpace(string(cmdStderr))
	}

	artifactPath := filepath.Join(b.Target, cacheDirectory, "solc-output.json")
	encoded, err := os.ReadFile(artifactPath)
	if err != nil {
		// A vyper marker means buidler compiled through its vyper docker flow, which leaves no usable output.
		if utils.FileExists(filepath.Join(b.Target, cacheDirectory, "vyper-docker-updates.json")) {
			return nil, warnings, fmt.Errorf("%w: vyper is not supported through buidler", types.ErrCompilationFailed)
		}
		return nil, warnings, fmt.Errorf("%w: could not read %s, can you run buidler compile?",
			types.ErrCompilationFailed, artifactPath)
	}
	var output StandardJSONOutput
	if err := json.Unmarshal(encoded, &output); err != nil {
		return nil, warnings, fmt.Errorf("could not parse buidler artifact %s: %v", artifactPath, err)
	}
	fixBuidlerPaths(&output)

	version, optimized := b.cachedSolcConfig(filepath.Join(b.Target, cacheDirectory))
	workingDirectory := b.WorkingDirectory
	if workingDirectory == "" {
		workingDirectory = b.Target
	}
	pathContext := &types.PathContext{
		WorkingDirectory:  workingDirectory,
		VendorDirectories: []string{"node_modules"},
	}
	compiler := types.CompilerConfig{
		Compiler:  "solc",
		Version:   version,
		Optimized: optimized,
	}
	unit := ingestStandardJSON(project, &output, artifactPath, compiler, pathContext)
	return []*types.CompilationUnit{unit}, warnings, nil
}

// cachedSolcConfig reads the compiler settings buidler recorded alongside its output cache.
func (b *BuidlerCompilationConfig) cachedSolcConfig(cacheDirectory string) (string, bool) {
	encoded, err := os.ReadFile(filepath.Join(cacheDirectory, "last-solc-config.json"))
	if err != nil {
		logging.GlobalLogger.Warn("Could not read the buidler solc config: ", err)
		return "", false
	}
	var config struct {
		Solc struct {
			Version   string                 `json:"version"`
			Optimizer *StandardJSONOptimizer `json:"optimizer"`
		} `json:"solc"`
	}
	if err := json.Unmarshal(encoded, &config); err != nil {
		logging.GlobalLogger.Warn("Could not parse the buidler solc config: ", err)
		return "", false
	}
	optimized := config.Solc.Optimizer != nil && config.Solc.Optimizer.Enabled
	return config.Solc.Version, optimized
}

// fixBuidlerPaths repairs the truncated "ontracts/" source paths some buidler releases emit, which lost the
// leading character of "contracts/".
func fixBuidlerPaths(output *StandardJSONOutput) {
	var brokenSources []string
	for path := range output.Sources {
		if strings.HasPrefix(path, "ontracts/") {
			brokenSources = append(brokenSources, path)
		}
	}
	for _, path := range brokenSources {
		output.Sources["c"+path] = output.Sources[path]
		delete(output.Sources, path)
	}

	var brokenContracts []string
	for path := range output.Contracts {
		if strings.HasPrefix(path, "ontracts/") {
			brokenContracts = append(brokenContracts, path)
		}
	}
	for _, path := range brokenContracts {
		output.Contracts["c"+path] = output.Contracts[path]
		delete(output.Contracts, path)
	}
}
