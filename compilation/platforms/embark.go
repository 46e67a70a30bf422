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
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// embarkPluginName is the embark plugin that dumps the artifact this adapter ingests.
const embarkPluginName = "@trailofbits/embark-contract-info"

// EmbarkCompilationConfig represents the embark framework adapter. Embark itself does not persist syntax trees,
// so compilation goes through a reporting plugin whose output this adapter ingests.
type EmbarkCompilationConfig struct {
	// Target is the project directory containing embark.json.
	Target string `json:"target"`

	// IgnoreCompile skips embark build and parses existing artifacts.
	IgnoreCompile bool `json:"ignore_compile,omitempty"`

	// NpxDisable invokes a globally installed embark instead of going through npx.
	NpxDisable bool `json:"npx_disable,omitempty"`

	// OverwriteConfig lets the adapter install the reporting plugin into embark.json when it is missing.
	OverwriteConfig bool `json:"overwrite_config,omitempty"`

	// RetryCleanOnFailure resets the embark project and retries once when the build fails.
	RetryCleanOnFailure bool `json:"retry_clean_on_failure,omitempty"`
}

// NewEmbarkCompilationConfig returns an embark adapter config for the provided project directory.
func NewEmbarkCompilationConfig(target string) *EmbarkCompilationConfig {
	return &EmbarkCompilationConfig{Target: target}
}

// NewEmbarkCompilationConfigWithOptions returns an embark adapter config honoring the shared platform options.
func NewEmbarkCompilationConfigWithOptions(target string, options *PlatformOptions) *EmbarkCompilationConfig {
	config := NewEmbarkCompilationConfig(target)
	if options != nil {
		config.IgnoreCompile = options.IgnoreCompile
		config.NpxDisable = options.NpxDisable
		config.OverwriteConfig = options.EmbarkOverwriteConfig
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (e *EmbarkCompilationConfig) Platform() string {
	return "embark"
}

// Priority returns the detection priority for the configuration.
func (e *EmbarkCompilationConfig) Priority() int {
	return PriorityEmbark
}

// GetTarget returns the target for compilation.
func (e *EmbarkCompilationConfig) GetTarget() string {
	return e.Target
}

// SetTarget sets the new target for compilation.
func (e *EmbarkCompilationConfig) SetTarget(newTarget string) {
	e.Target = newTarget
}

// IsSupported reports whether the target directory holds an embark project.
func (e *EmbarkCompilationConfig) IsSupported(target string) bool {
	return utils.FileExists(filepath.Join(target, "embark.json"))
}

// IsDependency reports whether the path lives in a vendored dependency tree.
func (e *EmbarkCompilationConfig) IsDependency(path string) bool {
	return pathHasComponent(path, "node_modules")
}

// GuessedTests returns the test commands a developer would likely run.
func (e *EmbarkCompilationConfig) GuessedTests() []string {
	return []string{"embark test"}
}

// Clean removes build artifacts by resetting the embark project.
func (e *EmbarkCompilationConfig) Clean(_ *types.Project) error {
	if e.IgnoreCompile {
		return nil
	}
	cmd := nodeCommand(e.NpxDisable, "embark", "reset")
	cmd.Dir = e.Target
	_, _, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
	if err != nil {
		return classifyToolError("embark", err, cmdCombined)
	}
	return nil
}

// embarkArtifact mirrors crytic-export/contracts-embark.json, the document the reporting plugin writes.
type embarkArtifact struct {
	Asts      map[string]json.RawMessage        `json:"asts"`
	Contracts map[string]embarkArtifactContract `json:"contracts"`
}

// embarkArtifactContract is the per-contract slice of the plugin artifact, keyed path:Name.
type embarkArtifactContract struct {
	Abi           json.RawMessage `json:"abi"`
	Bin           string          `json:"bin"`
	BinRuntime    string          `json:"bin-runtime"`
	SrcMap        string          `json:"srcmap"`
	SrcMapRuntime string          `json:"srcmap-runtime"`
	Userdoc       json.RawMessage `json:"userdoc"`
	Devdoc        json.RawMessage `json:"devdoc"`
}

// Compile runs embark build with the reporting plugin enabled and ingests its artifact into a single
// compilation unit.
func (e *EmbarkCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	embarkConfig, err := e.ensurePlugin()
	if err != nil {
		return nil, "", err
	}

	warnings := ""
	if e.IgnoreCompile {
		logging.GlobalLogger.Info("Skipping embark build, if something goes wrong consider resetting the project")
	} else {
		warnings, err = e.runBuild()
		if err != nil && e.RetryCleanOnFailure {
			// Stale embark state is a known build breaker, so one reset-and-retry is allowed when asked for.
			logging.GlobalLogger.Warn("embark build failed, resetting and retrying: ", err)
			if cleanErr := e.Clean(project); cleanErr != nil {
				return nil, warnings, err
			}
			warnings, err = e.runBuild()
		}
		if err != nil {
			return nil, warnings, err
		}
	}

	artifactPath := filepath.Join(e.Target, "crytic-export", "contracts-embark.json")
	encoded, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, warnings, fmt.Errorf("%w: embark did not generate %s, is the %s plugin installed?",
			types.ErrCompilationFailed, artifactPath, embarkPluginName)
	}
	var artifact embarkArtifact
	if err := json.Unmarshal(encoded, &artifact); err != nil {
		return nil, warnings, fmt.Errorf("could not parse embark artifact %s: %v", artifactPath, err)
	}
	if artifact.Contracts == nil {
		return nil, warnings, fmt.Errorf("%w: embark artifact %s carries no contracts section",
			types.ErrCompilationFailed, artifactPath)
	}

	version := "0.5.0"
	if declared, ok := embarkConfig["versions"].(map[string]any); ok {
		if solcVersion, ok := declared["solc"].(string); ok && solcVersion != "" {
			version = solcVersion
		}
	}

	pathContext := &types.PathContext{
		WorkingDirectory:  e.Target,
		VendorDirectories: []string{"node_modules"},
	}
	unit := types.NewCompilationUnit(types.NewUnitID(e.Target), types.CompilerConfig{
		Compiler: "solc-js",
		Version:  version,
	})

	astPaths := maps.Keys(artifact.Asts)
	slices.Sort(astPaths)
	for _, astPath := range astPaths {
		filename := project.InternFilename(pathContext.Resolve(astPath))
		unit.AddSourceUnit(types.NewSourceUnit(filename, artifact.Asts[astPath]))
	}

	declared := maps.Keys(artifact.Contracts)
	slices.Sort(declared)
	for _, qualified := range declared {
		info := artifact.Contracts[qualified]
		name := extractContractName(qualified)
		filename := project.InternFilename(pathContext.Resolve(extractContractFilename(qualified)))
		sourceUnit := unit.AddSourceUnit(types.NewSourceUnit(filename, nil))

		contract := &types.CompiledContract{
			Name:            name,
			Abi:             info.Abi,
			InitBytecode:    types.NormalizeBytecodeString(info.Bin),
			RuntimeBytecode: types.NormalizeBytecodeString(info.BinRuntime),
			SrcMapsInit:     info.SrcMap,
			SrcMapsRuntime:  info.SrcMapRuntime,
			Natspec:         types.NewNatspec(info.Userdoc, info.Devdoc),
		}
		if parsed, err := sourceUnit.ParsedAst(); err == nil {
			contract.ClassifyKind(parsed.ContractNamed(name))
		} else {
			contract.ClassifyKind(nil)
		}
		sourceUnit.AddContract(contract)
	}
	return []*types.CompilationUnit{unit}, warnings, nil
}

// runBuild invokes embark build restricted to contracts.
func (e *EmbarkCompilationConfig) runBuild() (string, error) {
	cmd := nodeCommand(e.NpxDisable, "embark", "build", "--contracts")
	cmd.Dir = e.Target
	_, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
	if err != nil {
		return "", classifyToolError("embark", err, cmdCombined)
	}
	return strings.TrimSpace(string(cmdStderr)), nil
}

// ensurePlugin verifies the reporting plugin is configured, installing it into embark.json when overwriting was
// requested. The parsed embark.json is returned for version lookup.
func (e *EmbarkCompilationConfig) ensurePlugin() (map[string]any, error) {
	configPath := filepath.Join(e.Target, "embark.json")
	encoded, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read embark.json: %v", types.ErrInvalidTarget, err)
	}
	var config map[string]any
	if err := json.Unmarshal(encoded, &config); err != nil {
		return nil, fmt.Errorf("could not parse embark.json: %v", err)
	}

	plugins, _ := config["plugins"].(map[string]any)
	if _, ok := plugins[embarkPluginName]; ok {
		return config, nil
	}
	if !e.OverwriteConfig {
		return nil, fmt.Errorf("%w: the %s plugin was not found in embark.json, install it or allow the config to be overwritten",
			types.ErrInvalidTarget, embarkPluginName)
	}

	if plugins == nil {
		plugins = make(map[string]any)
	}
	plugins[embarkPluginName] = map[string]any{"flags": ""}
	config["plugins"] = plugins
	rewritten, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(configPath, rewritten, 0644); err != nil {
		return nil, err
	}

	if !e.IgnoreCompile {
		installCmd := nodeCommand(true, "npm", "install", embarkPluginName)
		installCmd.Dir = e.Target
		if _, _, cmdCombined, err := utils.RunCommandWithOutputAndError(installCmd); err != nil {
			return nil, classifyToolError("npm", err, cmdCombined)
		}
	}
	return config, nil
}
