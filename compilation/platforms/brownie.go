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
	"gopkg.in/yaml.v3"
)

// brownieConfigFiles lists the config names that mark a brownie project, in detection order.
var brownieConfigFiles = []string{"brownie-config.yaml", "brownie-config.yml", "brownie-config.json"}

// brownieProjectConfig is the slice of brownie-config.yaml the adapter cares about: the project structure
// overrides brownie honors.
type brownieProjectConfig struct {
	ProjectStructure struct {
		Build     string `yaml:"build"`
		Contracts string `yaml:"contracts"`
	} `yaml:"project_structure"`
}

// readBrownieConfig parses the first brownie config file present in the directory. Brownie accepts YAML and
// JSON configs, and YAML decoding covers both.
func readBrownieConfig(directory string) brownieProjectConfig {
	var config brownieProjectConfig
	for _, name := range brownieConfigFiles {
		encoded, err := os.ReadFile(filepath.Join(directory, name))
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(encoded, &config); err != nil {
			logging.GlobalLogger.Warn("Could not parse ", name, ": ", err)
		}
		break
	}
	return config
}

// BrownieCompilationConfig represents the brownie framework adapter. It drives brownie compile and ingests the
// per-contract artifacts brownie writes.
type BrownieCompilationConfig struct {
	// Target is the project directory containing a brownie config file.
	Target string `json:"target"`

	// IgnoreCompile skips brownie compile and parses existing artifacts.
	IgnoreCompile bool `json:"ignore_compile,omitempty"`

	// BuildDirectory overrides the artifact directory, normally the project_structure build key joined with
	// "contracts".
	BuildDirectory string `json:"build_directory,omitempty"`
}

// NewBrownieCompilationConfig returns a brownie adapter config for the provided project directory.
func NewBrownieCompilationConfig(target string) *BrownieCompilationConfig {
	return &BrownieCompilationConfig{Target: target}
}

// NewBrownieCompilationConfigWithOptions returns a brownie adapter config honoring the shared platform options.
func NewBrownieCompilationConfigWithOptions(target string, options *PlatformOptions) *BrownieCompilationConfig {
	config := NewBrownieCompilationConfig(target)
	if options != nil {
		config.IgnoreCompile = options.IgnoreCompile
		config.BuildDirectory = options.BuildDirectory
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (b *BrownieCompilationConfig) Platform() string {
	return "brownie"
}

// Priority returns the detection priority for the configuration.
func (b *BrownieCompilationConfig) Priority() int {
	return PriorityBrownie
}

// GetTarget returns the target for compilation.
func (b *BrownieCompilationConfig) GetTarget() string {
	return b.Target
}

// SetTarget sets the new target for compilation.
func (b *BrownieCompilationConfig) SetTarget(newTarget string) {
	b.Target = newTarget
}

// IsSupported reports whether the target directory holds a brownie project. Foundry projects may keep a brownie
// config around, so those defer to the foundry adapter.
func (b *BrownieCompilationConfig) IsSupported(target string) bool {
	if utils.FileExists(filepath.Join(target, "foundry.toml")) {
		return false
	}
	for _, name := range brownieConfigFiles {
		if utils.FileExists(filepath.Join(target, name)) {
			return true
		}
	}
	return false
}

// IsDependency reports whether the path lives in a vendored dependency tree. Brownie vendors packages outside
// the project, so nothing qualifies.
func (b *BrownieCompilationConfig) IsDependency(_ string) bool {
	return false
}

// GuessedTests returns the test commands a developer would likely run.
func (b *BrownieCompilationConfig) GuessedTests() []string {
	return []string{"brownie test"}
}

// Clean removes build artifacts. Brownie tracks its own artifact freshness, so artifacts are left in place.
func (b *BrownieCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// brownieArtifact mirrors the per-contract JSON files brownie writes under build/contracts. The layout follows
// the truffle artifact shape with a compiler section of its own.
type brownieArtifact struct {
	ContractName      string          `json:"contractName"`
	Abi               json.RawMessage `json:"abi"`
	Bytecode          string          `json:"bytecode"`
	DeployedBytecode  string          `json:"deployedBytecode"`
	SourceMap         string          `json:"sourceMap"`
	DeployedSourceMap string          `json:"deployedSourceMap"`
	Userdoc           json.RawMessage `json:"userdoc"`
	Devdoc            json.RawMessage `json:"devdoc"`
	Ast               json.RawMessage `json:"ast"`
	Compiler          struct {
		Version  string `json:"version"`
		Optimize bool   `json:"optimize"`
	} `json:"compiler"`
}

// Compile runs brownie compile and ingests every artifact it wrote into a single compilation unit.
func (b *BrownieCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	buildDirectory := b.BuildDirectory
	if buildDirectory == "" {
		buildDirectory = readBrownieConfig(b.Target).ProjectStructure.Build
		if buildDirectory == "" {
			buildDirectory = "build"
		}
		buildDirectory = filepath.Join(buildDirectory, "contracts")
	}

	warnings := ""
	if b.IgnoreCompile {
		logging.GlobalLogger.Info("Skipping brownie compile, if something goes wrong consider removing the ", buildDirectory, " directory")
	} else {
		cmd := exec.Command("brownie", "compile")
		cmd.Dir = b.Target
		_, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
		if err != nil {
			return nil, "", classifyToolError("brownie", err, cmdCombined)
		}
		warnings = strings.TrimSpace(string(cmdStderr))
	}

	// Brownie nests artifacts by source layout, so the whole build tree is walked.
	var matches []string
	_ = filepath.WalkDir(filepath.Join(b.Target, buildDirectory), func(path string, entry os.DirEntry, err error) error {
		if err == nil && !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			matches = append(matches, path)
		}
		return nil
	})
	if len(matches) == 0 {
		return nil, warnings, fmt.Errorf("%w: no brownie artifacts found in %s", types.ErrCompilationFailed, buildDirectory)
	}

	pathContext := &types.PathContext{WorkingDirectory: b.Target}
	unit := types.NewCompilationUnit(types.NewUnitID(b.Target), types.CompilerConfig{Compiler: "solc"})
	for _, match := range matches {
		encoded, err := os.ReadFile(match)
		if err != nil {
			return nil, warnings, err
		}
		var artifact brownieArtifact
		if err := json.Unmarshal(encoded, &artifact); err != nil {
			return nil, warnings, fmt.Errorf("could not parse brownie artifact %s: %v", match, err)
		}

		// Vyper artifacts carry a different tree without a source path, and stay out of the solidity unit.
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

		if unit.Compiler.Version == "" {
			unit.Compiler.Version = versionPattern.FindString(artifact.Compiler.Version)
			unit.Compiler.Optimized = artifact.Compiler.Optimize
		}
	}
	return []*types.CompilationUnit{unit}, warnings, nil
}
