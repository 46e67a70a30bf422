package platforms

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"github.com/crytic/crytic-compile-go/utils"
)

// foundryConfig is the slice of foundry.toml the adapter cares about: where sources, tests, scripts, and build
// artifacts live under the default profile.
type foundryConfig struct {
	Profile map[string]foundryProfile `toml:"profile"`
}

// foundryProfile is one [profile.<name>] section of foundry.toml.
type foundryProfile struct {
	Src    string `toml:"src"`
	Test   string `toml:"test"`
	Script string `toml:"script"`
	Out    string `toml:"out"`
}

// defaultProfile returns the default profile with conventional values filled in for missing keys.
func (c *foundryConfig) defaultProfile() foundryProfile {
	profile := c.Profile["default"]
	if profile.Src == "" {
		profile.Src = "src"
	}
	if profile.Test == "" {
		profile.Test = "test"
	}
	if profile.Script == "" {
		profile.Script = "script"
	}
	if profile.Out == "" {
		profile.Out = "out"
	}
	return profile
}

// readFoundryConfig parses foundry.toml from the project directory. A missing or malformed file yields the
// conventional defaults.
func readFoundryConfig(directory string) foundryConfig {
	var config foundryConfig
	if _, err := toml.DecodeFile(filepath.Join(directory, "foundry.toml"), &config); err != nil {
		logging.GlobalLogger.Warn("Could not parse foundry.toml: ", err)
		return foundryConfig{}
	}
	return config
}

// FoundryCompilationConfig represents the foundry framework adapter. It drives forge build and ingests the
// build-info artifacts forge writes.
type FoundryCompilationConfig struct {
	// Target is the project directory containing foundry.toml.
	Target string `json:"target"`

	// IgnoreCompile skips forge build and parses existing artifacts.
	IgnoreCompile bool `json:"ignore_compile,omitempty"`

	// CompileAll compiles tests and scripts too instead of skipping them.
	CompileAll bool `json:"compile_all,omitempty"`

	// BuildDirectory overrides the artifact directory, normally the out key of foundry.toml.
	BuildDirectory string `json:"build_directory,omitempty"`
}

// NewFoundryCompilationConfig returns a foundry adapter config for the provided project directory.
func NewFoundryCompilationConfig(target string) *FoundryCompilationConfig {
	return &FoundryCompilationConfig{Target: target}
}

// NewFoundryCompilationConfigWithOptions returns a foundry adapter config honoring the shared platform options.
func NewFoundryCompilationConfigWithOptions(target string, options *PlatformOptions) *FoundryCompilationConfig {
	config := NewFoundryCompilationConfig(target)
	if options != nil {
		config.IgnoreCompile = options.IgnoreCompile
		config.CompileAll = options.CompileAll
		config.BuildDirectory = options.BuildDirectory
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (f *FoundryCompilationConfig) Platform() string {
	return "foundry"
}

// Priority returns the detection priority for the configuration.
func (f *FoundryCompilationConfig) Priority() int {
	return PriorityFoundry
}

// GetTarget returns the target for compilation.
func (f *FoundryCompilationConfig) GetTarget() string {
	return f.Target
}

// SetTarget sets the new target for compilation.
func (f *FoundryCompilationConfig) SetTarget(newTarget string) {
	f.Target = newTarget
}

// IsSupported reports whether the target directory holds a foundry project.
func (f *FoundryCompilationConfig) IsSupported(target string) bool {
	return utils.FileExists(filepath.Join(target, "foundry.toml"))
}

// IsDependency reports whether the path lives in a vendored dependency tree.
func (f *FoundryCompilationConfig) IsDependency(path string) bool {
	return pathHasComponent(path, "lib") || pathHasComponent(path, "node_modules")
}

// GuessedTests returns the test commands a developer would likely run.
func (f *FoundryCompilationConfig) GuessedTests() []string {
	return []string{"forge test"}
}

// Clean removes the artifacts forge build produced.
func (f *FoundryCompilationConfig) Clean(_ *types.Project) error {
	if f.IgnoreCompile {
		return nil
	}
	cmd := exec.Command("forge", "clean")
	cmd.Dir = f.Target
	_, _, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
	if err != nil {
		return classifyToolError("forge", err, cmdCombined)
	}
	return nil
}

// Compile runs forge build with build-info output enabled and ingests every build-info file it wrote.
func (f *FoundryCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	config := readFoundryConfig(f.Target)
	profile := config.defaultProfile()
	buildDirectory := f.BuildDirectory
	if buildDirectory == "" {
		buildDirectory = profile.Out
	}

	warnings := ""
	if f.IgnoreCompile {
		logging.GlobalLogger.Info("Skipping forge build, if something goes wrong consider removing the ", buildDirectory, " directory")
	} else {
		args := []string{"build", "--build-info"}
		if !f.CompileAll {
			// Tests and scripts rarely matter to downstream analysis, and --force keeps the artifact set in
			// sync with the skip list.
			args = append(args,
				"--skip", fmt.Sprintf("*/%s/**", profile.Test),
				"--skip", fmt.Sprintf("*/%s/**", profile.Script),
				"--force")
		}
		cmd := exec.Command("forge", args...)
		cmd.Dir = f.Target
		_, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
		if err != nil {
			return nil, "", classifyToolError("forge", err, cmdCombined)
		}
		warnings = strings.TrimSpace(string(cmdStderr))
	}

	pathContext := &types.PathContext{
		WorkingDirectory:  f.Target,
		VendorDirectories: []string{"lib", "node_modules"},
	}
	units, err := loadBuildInfoDirectory(project, filepath.Join(f.Target, buildDirectory, "build-info"), pathContext)
	if err != nil {
		return nil, warnings, err
	}
	return units, warnings, nil
}

// pathHasComponent reports whether any path component equals the provided name.
func pathHasComponent(path string, name string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == name {
			return true
		}
	}
	return false
}
