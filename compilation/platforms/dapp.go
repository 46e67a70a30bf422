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
)

// DappCompilationConfig represents the dapptools framework adapter. It drives dapp build and ingests the merged
// out/dapp.sol.json artifact.
type DappCompilationConfig struct {
	// Target is the project directory containing a dapp Makefile.
	Target string `json:"target"`

	// IgnoreCompile skips dapp build and parses existing artifacts.
	IgnoreCompile bool `json:"ignore_compile,omitempty"`

	// BuildDirectory overrides the artifact directory, "out" by convention.
	BuildDirectory string `json:"build_directory,omitempty"`
}

// NewDappCompilationConfig returns a dapp adapter config for the provided project directory.
func NewDappCompilationConfig(target string) *DappCompilationConfig {
	return &DappCompilationConfig{Target: target}
}

// NewDappCompilationConfigWithOptions returns a dapp adapter config honoring the shared platform options.
func NewDappCompilationConfigWithOptions(target string, options *PlatformOptions) *DappCompilationConfig {
	config := NewDappCompilationConfig(target)
	if options != nil {
		config.IgnoreCompile = options.IgnoreCompile
		config.BuildDirectory = options.BuildDirectory
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (d *DappCompilationConfig) Platform() string {
	return "dapp"
}

// Priority returns the detection priority for the configuration.
func (d *DappCompilationConfig) Priority() int {
	return PriorityDapp
}

// GetTarget returns the target for compilation.
func (d *DappCompilationConfig) GetTarget() string {
	return d.Target
}

// SetTarget sets the new target for compilation.
func (d *DappCompilationConfig) SetTarget(newTarget string) {
	d.Target = newTarget
}

// IsSupported reports whether the target directory holds a dapp project, recognized by a Makefile invoking the
// dapp tool.
func (d *DappCompilationConfig) IsSupported(target string) bool {
	makefile := filepath.Join(target, "Makefile")
	content, err := os.ReadFile(makefile)
	if err != nil {
		return false
	}
	return strings.Contains(string(content), "dapp ")
}

// IsDependency reports whether the path lives in a vendored dependency tree.
func (d *DappCompilationConfig) IsDependency(path string) bool {
	return pathHasComponent(path, "lib")
}

// GuessedTests returns the test commands a developer would likely run.
func (d *DappCompilationConfig) GuessedTests() []string {
	return []string{"dapp test"}
}

// Clean removes build artifacts. The dapp Makefile owns its artifact lifecycle, so nothing is removed here.
func (d *DappCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// dappArtifact mirrors out/dapp.sol.json, which wraps a standard-JSON output document with the compiler version
// dapp recorded.
type dappArtifact struct {
	StandardJSONOutput
	Version string `json:"version"`
}

// Compile runs dapp build and ingests the merged artifact into a single compilation unit.
func (d *DappCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	buildDirectory := d.BuildDirectory
	if buildDirectory == "" {
		buildDirectory = "out"
	}

	warnings := ""
	if d.IgnoreCompile {
		logging.GlobalLogger.Info("Skipping dapp build, if something goes wrong consider removing the ", buildDirectory, " directory")
	} else {
		cmd := exec.Command("dapp", "build")
		cmd.Dir = d.Target
		_, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
		if err != nil {
			return nil, "", classifyToolError("dapp", err, cmdCombined)
		}
		warnings = strings.TrimSpace(string(cmdStderr))
	}

	artifactPath := filepath.Join(d.Target, buildDirectory, "dapp.sol.json")
	encoded, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, warnings, fmt.Errorf("%w: could not read %s: %v", types.ErrCompilationFailed, artifactPath, err)
	}
	var artifact dappArtifact
	if err := json.Unmarshal(encoded, &artifact); err != nil {
		return nil, warnings, fmt.Errorf("could not parse dapp artifact %s: %v", artifactPath, err)
	}

	version := versionPattern.FindString(artifact.Version)
	optimized := false
	for _, declared := range artifact.Contracts {
		for _, info := range declared {
			if version == "" {
				version = dappMetadataVersion(info.Metadata)
			}
			if enabled, ok := metadataOptimizerEnabled(info.Metadata); ok && enabled {
				optimized = true
			}
		}
	}

	pathContext := &types.PathContext{
		WorkingDirectory:  d.Target,
		VendorDirectories: []string{"lib"},
		Shortener: func(short string) string {
			return types.StripPathPrefixes(short, "src", "lib")
		},
	}
	compiler := types.CompilerConfig{
		Compiler:  "solc",
		Version:   version,
		Optimized: optimized,
	}
	unit := ingestStandardJSON(project, &artifact.StandardJSONOutput, types.ContentUnitID(encoded), compiler, pathContext)
	return []*types.CompilationUnit{unit}, warnings, nil
}

// dappMetadataVersion extracts the compiler version recorded in a contract metadata document.
func dappMetadataVersion(metadata string) string {
	if metadata == "" {
		return ""
	}
	var decoded struct {
		Compiler struct {
			Version string `json:"version"`
		} `json:"compiler"`
	}
	if err := json.Unmarshal([]byte(metadata), &decoded); err != nil {
		return ""
	}
	return versionPattern.FindString(decoded.Compiler.Version)
}
