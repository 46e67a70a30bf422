package platforms

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/utils"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// VyperCompilationConfig represents the vyper compiler adapter, compiling one vyper source file per invocation.
type VyperCompilationConfig struct {
	// Target is the vyper file to compile.
	Target string `json:"target"`

	// VyperPath is an explicit vyper binary to run. When empty the binary is resolved from PATH.
	VyperPath string `json:"vyper_path,omitempty"`

	// WorkingDirectory anchors the invocation. Empty means the process working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`
}

// NewVyperCompilationConfig returns a vyper adapter config for the provided target.
func NewVyperCompilationConfig(target string) *VyperCompilationConfig {
	return &VyperCompilationConfig{Target: target}
}

// NewVyperCompilationConfigWithOptions returns a vyper adapter config honoring the shared platform options.
func NewVyperCompilationConfigWithOptions(target string, options *PlatformOptions) *VyperCompilationConfig {
	config := NewVyperCompilationConfig(target)
	if options != nil {
		config.VyperPath = options.VyperPath
	}
	return config
}

// Platform returns the platform identifier for the configuration.
func (v *VyperCompilationConfig) Platform() string {
	return "vyper"
}

// Priority returns the detection priority for the configuration.
func (v *VyperCompilationConfig) Priority() int {
	return PriorityFallback
}

// GetTarget returns the target for compilation.
func (v *VyperCompilationConfig) GetTarget() string {
	return v.Target
}

// SetTarget sets the new target for compilation.
func (v *VyperCompilationConfig) SetTarget(newTarget string) {
	v.Target = newTarget
}

// IsSupported reports whether the target is a vyper source file.
func (v *VyperCompilationConfig) IsSupported(target string) bool {
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return false
	}
	return strings.HasSuffix(target, ".vy")
}

// IsDependency reports whether the path is a vendored dependency. Single vyper files have none.
func (v *VyperCompilationConfig) IsDependency(_ string) bool {
	return false
}

// GuessedTests returns the test commands a developer would likely run. Single vyper files have none.
func (v *VyperCompilationConfig) GuessedTests() []string {
	return nil
}

// Clean removes build artifacts. Vyper compilation leaves none behind.
func (v *VyperCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// vyperContractOutput is the per-contract slice of vyper's combined_json output.
type vyperContractOutput struct {
	ABI             json.RawMessage `json:"abi"`
	Bytecode        string          `json:"bytecode"`
	BytecodeRuntime string          `json:"bytecode_runtime"`
	SourceMap       struct {
		PcPosMapCompressed string `json:"pc_pos_map_compressed"`
	} `json:"source_map"`
}

// Compile runs vyper over the target and returns the single resulting compilation unit.
func (v *VyperCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	vyperPath := v.VyperPath
	if vyperPath == "" {
		vyperPath = "vyper"
	}

	// First run produces the combined artifact, second run produces the syntax tree.
	cmd := exec.Command(vyperPath, v.Target, "-f", "combined_json")
	cmd.Dir = v.WorkingDirectory
	cmdStdout, cmdStderr, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
	if err != nil {
		return nil, "", classifyToolError(vyperPath, err, cmdCombined)
	}
	warnings := strings.TrimSpace(string(cmdStderr))

	// Vyper may print informational lines before the artifact, so only the last line is the document.
	var combined map[string]json.RawMessage
	if err := json.Unmarshal(lastOutputLine(cmdStdout), &combined); err != nil {
		return nil, warnings, fmt.Errorf("could not parse vyper output: %v", err)
	}

	version := ""
	if raw, ok := combined["version"]; ok {
		_ = json.Unmarshal(raw, &version)
	}
	if version == "" {
		version, err = GetVyperVersion(vyperPath)
		if err != nil {
			return nil, warnings, err
		}
	}

	astCmd := exec.Command(vyperPath, v.Target, "-f", "ast")
	astCmd.Dir = v.WorkingDirectory
	astStdout, _, _, astErr := utils.RunCommandWithOutputAndError(astCmd)
	var ast json.RawMessage
	if astErr == nil {
		ast = json.RawMessage(lastOutputLine(astStdout))
	}

	pathContext := &types.PathContext{WorkingDirectory: v.WorkingDirectory}
	unit := types.NewCompilationUnit(types.NewUnitID(v.Target), types.CompilerConfig{
		Compiler: "vyper",
		Version:  version,
	})

	sourcePaths := maps.Keys(combined)
	slices.Sort(sourcePaths)
	for _, sourcePath := range sourcePaths {
		if sourcePath == "version" {
			continue
		}
		var info vyperContractOutput
		if err := json.Unmarshal(combined[sourcePath], &info); err != nil {
			return nil, warnings, fmt.Errorf("could not parse vyper output for %s: %v", sourcePath, err)
		}

		filename := project.InternFilename(pathContext.Resolve(sourcePath))
		sourceUnit := unit.AddSourceUnit(types.NewSourceUnit(filename, ast))

		// Vyper has no contract naming of its own, so the base filename stands in for the contract name.
		contract := &types.CompiledContract{
			Name:            filepath.Base(sourcePath),
			Abi:             info.ABI,
			InitBytecode:    types.NormalizeBytecodeString(info.Bytecode),
			RuntimeBytecode: types.NormalizeBytecodeString(info.BytecodeRuntime),
			SrcMapsRuntime:  info.SourceMap.PcPosMapCompressed,
			Natspec:         types.NewNatspec(nil, nil),
		}
		contract.ClassifyKind(nil)
		sourceUnit.AddContract(contract)
	}
	return []*types.CompilationUnit{unit}, warnings, nil
}

// GetVyperVersion runs vyper --version and parses the reported version.
func GetVyperVersion(vyperPath string) (string, error) {
	cmd := exec.Command(vyperPath, "--version")
	cmdStdout, _, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
	if err != nil {
		return "", classifyToolError(vyperPath, err, cmdCombined)
	}
	match := versionPattern.FindString(string(cmdStdout))
	if match == "" {
		return "", fmt.Errorf("could not parse vyper version from %q", strings.TrimSpace(string(cmdStdout)))
	}
	return match, nil
}

// lastOutputLine returns the last non-empty line of command output, which is where single-document tools place
// their artifact when informational lines precede it.
func lastOutputLine(output []byte) []byte {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return []byte(line)
		}
	}
	return output
}
