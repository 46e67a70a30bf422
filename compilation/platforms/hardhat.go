package platforms

import (
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"github.com/crytic/crytic-compile-go/utils"
)

// HardhatCompilationConfig represents the hardhat framework adapter. It drives the framework's compile task and
// ingests the build-info artifacts hardhat writes.
type HardhatCompilationConfig struct {
	// Target is the project directory containing a hardhat config file.
	Target string `json:"target"`

	// IgnoreCompile skips the compile task and parses existing artifacts.
	IgnoreCompile bool `json:"ignore_compile,omitempty"`

	// NpxDisable invokes a globally installed hardhat instead of going through npx.
	NpxDisable bool `json:"npx_disable,omitempty"`

	// BuildDirectory overrides the artifact directory, "artifacts" by convention.
	BuildDirectory string `json:"build_directory,omitempty"`

	// WorkingDirectory resolves artifact paths when the hardhat project is nested below the analyzed directory.
	// Empty means the target itself.
	WorkingDirectory string `json:"working_directory,omitempty"`
}

// NewHardhatCompilationConfig returns a hardhat adapter config for the provided project directory.
func NewHardhatCompilationConfig(target string) *HardhatCompilationConfig {
	return &HardhatCompilationConfig{Target: target}
}

// NewHardhatCompilationConfigWithOptions returns a hardhat adapter config honoring the shared platform options.
func NewHardhatCompilationConfigWithOptions(target string, options *PlatformOptions) *HardhatCompilationConfig {
	config := NewHardhatCompilationConfig(target)
	if options != nil {
		config.IgnoreCompile = options.IgnoreCompile
		config.NpxDisable = options.NpxDisable
		config.BuildDirectory = options.BuildDirectory
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (h *HardhatCompilationConfig) Platform() string {
	return "hardhat"
}

// Priority returns the detection priority for the configuration.
func (h *HardhatCompilationConfig) Priority() int {
	return PriorityHardhat
}

// GetTarget returns the target for compilation.
func (h *HardhatCompilationConfig) GetTarget() string {
	return h.Target
}

// SetTarget sets the new target for compilation.
func (h *HardhatCompilationConfig) SetTarget(newTarget string) {
	h.Target = newTarget
}

// IsSupported reports whether the target directory holds a hardhat project, leaving version 3 projects to the
// dedicated adapter.
func (h *HardhatCompilationConfig) IsSupported(target string) bool {
	return hasHardhatConfig(target) && hardhatMajorVersion(target) != 3
}

// IsDependency reports whether the path lives in a vendored dependency tree.
func (h *HardhatCompilationConfig) IsDependency(path string) bool {
	return pathHasComponent(path, "node_modules")
}

// GuessedTests returns the test commands a developer would likely run.
func (h *HardhatCompilationConfig) GuessedTests() []string {
	return []string{"hardhat test"}
}

// Clean removes the artifacts the compile task produced.
func (h *HardhatCompilationConfig) Clean(_ *types.Project) error {
	if h.IgnoreCompile {
		return nil
	}
	cmd := nodeCommand(h.NpxDisable, "hardhat", "clean")
	cmd.Dir = h.Target
	_, _, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
	if err != nil {
		return classifyToolError("hardhat", err, cmdCombined)
	}
	return nil
}

// Compile runs the hardhat compile task and ingests every build-info file it wrote.
func (h *HardhatCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	return h.compileBuildInfo(project)
}

// compileBuildInfo is the shared body of the version 2 and version 3 adapters. The build-info layout differs
// between the two, which the build-info loader absorbs.
func (h *HardhatCompilationConfig) compileBuildInfo(project *types.Project) ([]*types.CompilationUnit, string, error) {
	buildDirectory := h.BuildDirectory
	if buildDirectory == "" {
		buildDirectory = "artifacts"
	}

	warnings := ""
	if h.IgnoreCompile {
		logging.GlobalLogger.Info("Skipping hardhat compile, if something goes wrong consider removing the ", buildDirectory, " directory")
	} else {
		// --force recompiles everything so stale build-info files cannot shadow edited sources.
		cmd := nodeCommand(h.NpxDisable, "hardhat", "compile", "--force")
		cmd.Dir = h.Target
		_, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
		if err != nil {
			return nil, "", classifyToolError("hardhat", err, cmdCombined)
		}
		warnings = strings.TrimSpace(string(cmdStderr))
	}

	workingDirectory := h.WorkingDirectory
	if workingDirectory == "" {
		workingDirectory = h.Target
	}
	pathContext := &types.PathContext{
		WorkingDirectory:  workingDirectory,
		VendorDirectories: []string{"node_modules"},
	}
	units, err := loadBuildInfoDirectory(project, filepath.Join(h.Target, buildDirectory, "build-info"), pathContext)
	if err != nil {
		return nil, warnings, err
	}
	return units, warnings, nil
}

// HardhatV3CompilationConfig represents the adapter for hardhat version 3 projects, whose build-info artifacts
// split the compiler input and output into separate files.
type HardhatV3CompilationConfig struct {
	HardhatCompilationConfig
}

// NewHardhatV3CompilationConfig returns a hardhat version 3 adapter config for the provided project directory.
func NewHardhatV3CompilationConfig(target string) *HardhatV3CompilationConfig {
	return &HardhatV3CompilationConfig{HardhatCompilationConfig{Target: target}}
}

// NewHardhatV3CompilationConfigWithOptions returns a hardhat version 3 adapter config honoring the shared
// platform options.
func NewHardhatV3CompilationConfigWithOptions(target string, options *PlatformOptions) *HardhatV3CompilationConfig {
	return &HardhatV3CompilationConfig{*NewHardhatCompilationConfigWithOptions(target, options)}
}

// Platform returns the platform identifier for the configuration.
func (h *HardhatV3CompilationConfig) Platform() string {
	return "hardhat-v3"
}

// Priority returns the detection priority for the configuration.
func (h *HardhatV3CompilationConfig) Priority() int {
	return PriorityHardhatV3
}

// IsSupported reports whether the target directory holds a hardhat project declaring a version 3 dependency.
func (h *HardhatV3CompilationConfig) IsSupported(target string) bool {
	return hasHardhatConfig(target) && hardhatMajorVersion(target) == 3
}

// hasHardhatConfig reports whether a directory carries a hardhat config file.
func hasHardhatConfig(target string) bool {
	return utils.FileExists(filepath.Join(target, "hardhat.config.js")) ||
		utils.FileExists(filepath.Join(target, "hardhat.config.ts"))
}

// hardhatMajorVersion returns the major version of the declared hardhat dependency, or zero when the manifest
// does not pin one.
func hardhatMajorVersion(target string) int {
	declared, ok := readPackageJSON(target).dependencyVersion("hardhat")
	if !ok {
		return 0
	}
	// Manifests carry range operators that the version parser does not accept.
	declared = strings.TrimLeft(declared, "^~<>= v")
	parsed, err := semver.NewVersion(declared)
	if err != nil {
		return 0
	}
	return int(parsed.Major())
}
