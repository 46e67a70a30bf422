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

// WaffleCompilationConfig represents the waffle framework adapter. It rewrites the project's waffle config to
// request full compiler output, drives waffle, and ingests the combined artifact.
type WaffleCompilationConfig struct {
	// Target is the project directory declaring an ethereum-waffle dependency.
	Target string `json:"target"`

	// IgnoreCompile skips waffle and parses existing artifacts.
	IgnoreCompile bool `json:"ignore_compile,omitempty"`

	// NpxDisable invokes a globally installed waffle instead of going through npx.
	NpxDisable bool `json:"npx_disable,omitempty"`

	// ConfigFile overrides the waffle config file. When empty the project is searched for one.
	ConfigFile string `json:"config_file,omitempty"`

	// BuildDirectory overrides the artifact directory, normally the targetPath key of the config.
	BuildDirectory string `json:"build_directory,omitempty"`
}

// NewWaffleCompilationConfig returns a waffle adapter config for the provided project directory.
func NewWaffleCompilationConfig(target string) *WaffleCompilationConfig {
	return &WaffleCompilationConfig{Target: target}
}

// NewWaffleCompilationConfigWithOptions returns a waffle adapter config honoring the shared platform options.
func NewWaffleCompilationConfigWithOptions(target string, options *PlatformOptions) *WaffleCompilationConfig {
	config := NewWaffleCompilationConfig(target)
	if options != nil {
		config.IgnoreCompile = options.IgnoreCompile
		config.NpxDisable = options.NpxDisable
		config.BuildDirectory = options.BuildDirectory
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (w *WaffleCompilationConfig) Platform() string {
	return "waffle"
}

// Priority returns the detection priority for the configuration.
func (w *WaffleCompilationConfig) Priority() int {
	return PriorityWaffle
}

// GetTarget returns the target for compilation.
func (w *WaffleCompilationConfig) GetTarget() string {
	return w.Target
}

// SetTarget sets the new target for compilation.
func (w *WaffleCompilationConfig) SetTarget(newTarget string) {
	w.Target = newTarget
}

// IsSupported reports whether the target directory declares an ethereum-waffle dependency.
func (w *WaffleCompilationConfig) IsSupported(target string) bool {
	return readPackageJSON(target).hasDependency("ethereum-waffle")
}

// IsDependency reports whether the path lives in a vendored dependency tree.
func (w *WaffleCompilationConfig) IsDependency(path string) bool {
	return pathHasComponent(path, "node_modules")
}

// GuessedTests returns the test commands a developer would likely run.
func (w *WaffleCompilationConfig) GuessedTests() []string {
	return []string{"npx mocha"}
}

// Clean removes build artifacts. Waffle rebuilds from scratch each run, so artifacts are left in place.
func (w *WaffleCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// waffleCombinedArtifact mirrors Combined-Json.json, keyed by path:Name pairs at the top level and carrying the
// syntax trees under a capitalized AST key.
type waffleCombinedArtifact struct {
	Contracts map[string]StandardJSONOutputContract `json:"contracts"`
	Sources   map[string]struct {
		AST json.RawMessage `json:"AST"`
	} `json:"sources"`
}

// Compile rewrites the waffle config to request full output, runs waffle, and ingests the combined artifact into
// a single compilation unit.
func (w *WaffleCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	config, err := w.loadConfig()
	if err != nil {
		return nil, "", err
	}

	compilerName := "native"
	if name, ok := config["compiler"].(string); ok && name != "" {
		compilerName = name
	}
	if name, ok := config["compilerType"].(string); ok && name != "" {
		compilerName = name
	}
	buildDirectory := w.BuildDirectory
	if buildDirectory == "" {
		buildDirectory = "build"
		if configured, ok := config["targetPath"].(string); ok && configured != "" {
			buildDirectory = configured
		}
	}

	warnings := ""
	if w.IgnoreCompile {
		logging.GlobalLogger.Info("Skipping waffle, if something goes wrong consider removing the ", buildDirectory, " directory")
	} else {
		// Waffle only emits what the config selects, so the full selection is forced through a temporary copy.
		injectWaffleOutputSelection(config)
		encoded, err := json.Marshal(config)
		if err != nil {
			return nil, "", err
		}
		configFile, err := os.CreateTemp(w.Target, "waffle-*.json")
		if err != nil {
			return nil, "", err
		}
		configName := filepath.Base(configFile.Name())
		_, writeErr := configFile.Write(encoded)
		closeErr := configFile.Close()
		defer os.Remove(configFile.Name())
		if writeErr != nil {
			return nil, "", writeErr
		}
		if closeErr != nil {
			return nil, "", closeErr
		}

		cmd := nodeCommand(w.NpxDisable, "waffle", configName)
		cmd.Dir = w.Target
		_, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
		if err != nil {
			return nil, "", classifyToolError("waffle", err, cmdCombined)
		}
		warnings = strings.TrimSpace(string(cmdStderr))
	}

	artifactPath := filepath.Join(w.Target, buildDirectory, "Combined-Json.json")
	encoded, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, warnings, fmt.Errorf("%w: could not read %s: %v", types.ErrCompilationFailed, artifactPath, err)
	}
	var artifact waffleCombinedArtifact
	if err := json.Unmarshal(encoded, &artifact); err != nil {
		return nil, warnings, fmt.Errorf("could not parse waffle artifact %s: %v", artifactPath, err)
	}

	pathContext := &types.PathContext{
		WorkingDirectory:  w.Target,
		VendorDirectories: []string{"node_modules"},
	}
	unit := types.NewCompilationUnit(types.NewUnitID(w.Target), types.CompilerConfig{
		Compiler: compilerName,
		Version:  w.compilerVersion(compilerName, config),
	})

	sourcePaths := maps.Keys(artifact.Sources)
	slices.Sort(sourcePaths)
	for _, sourcePath := range sourcePaths {
		filename := project.InternFilename(pathContext.Resolve(sourcePath))
		unit.AddSourceUnit(types.NewSourceUnit(filename, artifact.Sources[sourcePath].AST))
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
	return []*types.CompilationUnit{unit}, warnings, nil
}

// loadConfig finds and parses the project's waffle config. Projects without one compile with waffle defaults.
func (w *WaffleCompilationConfig) loadConfig() (map[string]any, error) {
	configFile := w.ConfigFile
	if configFile == "" {
		var candidates []string
		_ = filepath.WalkDir(w.Target, func(path string, entry os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if entry.IsDir() {
				if entry.Name() == "node_modules" {
					return filepath.SkipDir
				}
				return nil
			}
			name := entry.Name()
			if strings.Contains(name, "waffle") && strings.HasSuffix(name, ".json") {
				candidates = append(candidates, path)
			}
			return nil
		})
		// A single match is unambiguous, anything else falls back to defaults.
		if len(candidates) == 1 {
			configFile = candidates[0]
		}
	}

	config := make(map[string]any)
	if configFile == "" {
		return config, nil
	}
	encoded, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(encoded), "module.exports") {
		return nil, fmt.Errorf("%w: waffle javascript configs are not supported, use a JSON config", types.ErrInvalidTarget)
	}
	if err := json.Unmarshal(encoded, &config); err != nil {
		return nil, fmt.Errorf("could not parse waffle config %s: %v", configFile, err)
	}
	return config, nil
}

// compilerVersion recovers the compiler version from the config, falling back to asking the selected compiler.
func (w *WaffleCompilationConfig) compilerVersion(compilerName string, config map[string]any) string {
	if declared, ok := config["solcVersion"].(string); ok {
		return versionPattern.FindString(declared)
	}
	switch compilerName {
	case "dockerized-solc":
		if tag, ok := config["docker-tag"].(string); ok {
			return tag
		}
		return "latest"
	case "native":
		if version, err := GetSystemSolcVersion(); err == nil {
			return version.String()
		}
	case "solc-js":
		if version, err := GetSolcVersion("solcjs", nil); err == nil {
			return version.String()
		}
	}
	logging.GlobalLogger.Warn("Could not determine the waffle compiler version")
	return ""
}

// injectWaffleOutputSelection forces the output selection the ingestion needs into a waffle config document.
func injectWaffleOutputSelection(config map[string]any) {
	config["outputType"] = "all"
	selection := map[string]any{
		"*": map[string]any{
			"*": []any{
				"evm.bytecode.object",
				"evm.deployedBytecode.object",
				"abi",
				"evm.bytecode.sourceMap",
				"evm.deployedBytecode.sourceMap",
			},
			"": []any{"ast"},
		},
	}
	options, ok := config["compilerOptions"].(map[string]any)
	if !ok {
		options = make(map[string]any)
		config["compilerOptions"] = options
	}
	options["outputSelection"] = selection
}
