package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// sourcifyAPIBase is the contract endpoint of the sourcify server, parametrized by chain id and address.
const sourcifyAPIBase = "https://sourcify.dev/server/v2/contract/%s/%s?fields=sources,compilation.compilerVersion,compilation.compilerSettings,compilation.name"

// sourcifyExportSubdir holds materialized sources under the export directory.
const sourcifyExportSubdir = "sourcify-contracts"

// sourcifyTargetPattern matches sourcify targets: a chain id in decimal or hex, then a contract address.
var sourcifyTargetPattern = regexp.MustCompile(`^sourcify-(0x[a-fA-F0-9]+|[0-9]+):(0x[a-fA-F0-9]{40})$`)

// SourcifyCompilationConfig represents the Sourcify fetcher. It downloads a verified source bundle from the
// sourcify server, materializes it under the export directory, and re-dispatches compilation with the recovered
// compiler settings.
type SourcifyCompilationConfig struct {
	// Target selects the contract, in sourcify-<chainid>:<address> form.
	Target string `json:"target"`

	// ExportDirectory is where fetched sources are materialized, "crytic-export" by default.
	ExportDirectory string `json:"export_directory,omitempty"`
}

// NewSourcifyCompilationConfig returns a Sourcify fetcher config for the provided target.
func NewSourcifyCompilationConfig(target string) *SourcifyCompilationConfig {
	return &SourcifyCompilationConfig{Target: target}
}

// NewSourcifyCompilationConfigWithOptions returns a Sourcify fetcher config honoring the shared platform
// options.
func NewSourcifyCompilationConfigWithOptions(target string, options *PlatformOptions) *SourcifyCompilationConfig {
	config := NewSourcifyCompilationConfig(target)
	config.ExportDirectory = options.exportDirectoryOrDefault()
	return config
}

// Platform returns the platform identifier for the configuration.
func (s *SourcifyCompilationConfig) Platform() string {
	return "sourcify"
}

// Priority returns the detection priority for the configuration.
func (s *SourcifyCompilationConfig) Priority() int {
	return PrioritySourcify
}

// GetTarget returns the target for compilation.
func (s *SourcifyCompilationConfig) GetTarget() string {
	return s.Target
}

// SetTarget sets the new target for compilation.
func (s *SourcifyCompilationConfig) SetTarget(newTarget string) {
	s.Target = newTarget
}

// IsSupported reports whether the target names a sourcify contract.
func (s *SourcifyCompilationConfig) IsSupported(target string) bool {
	return sourcifyTargetPattern.MatchString(strings.TrimSpace(target))
}

// IsDependency reports whether the path is a vendored dependency. Fetched bundles have none.
func (s *SourcifyCompilationConfig) IsDependency(_ string) bool {
	return false
}

// GuessedTests returns the test commands a developer would likely run. Fetched bundles have none.
func (s *SourcifyCompilationConfig) GuessedTests() []string {
	return nil
}

// Clean removes build artifacts. Materialized sources are kept for inspection.
func (s *SourcifyCompilationConfig) Clean(_ *types.Project) error {
	return nil
}

// sourcifyResponse is the slice of the sourcify contract document the fetcher consumes.
type sourcifyResponse struct {
	Sources map[string]struct {
		Content string `json:"content"`
	} `json:"sources"`
	Compilation struct {
		CompilerVersion  string `json:"compilerVersion"`
		Name             string `json:"name"`
		CompilerSettings struct {
			Remappings []string               `json:"remappings"`
			Optimizer  *StandardJSONOptimizer `json:"optimizer"`
			EVMVersion string                 `json:"evmVersion"`
			ViaIR      bool                   `json:"viaIR"`
		} `json:"compilerSettings"`
	} `json:"compilation"`
}

// Compile fetches the verified source bundle, materializes it, and compiles it with the recovered settings.
func (s *SourcifyCompilationConfig) Compile(project *types.Project) ([]*types.CompilationUnit, string, error) {
	chainID, address, err := parseSourcifyTarget(s.Target)
	if err != nil {
		return nil, "", err
	}
	directory := filepath.Join(s.exportDirectory(), sourcifyExportSubdir,
		fmt.Sprintf("sourcify-%s-%s", chainID, address))

	// A bundle materialized by a previous run is complete once the recovered config sits next to it, so the
	// fetch is skipped.
	if delegate, ok := s.materializedBundle(directory); ok {
		return delegate.Compile(project)
	}

	client := newFetchClient(s.exportDirectory())
	defer client.Close()
	body, status, err := client.Get(context.Background(), fmt.Sprintf(sourcifyAPIBase, chainID, address))
	if err != nil {
		return nil, "", err
	}
	if status == http.StatusNotFound {
		return nil, "", fmt.Errorf("%w: %s is not verified on sourcify", types.ErrSourceNotVerified, s.Target)
	}
	if status != http.StatusOK {
		return nil, "", fmt.Errorf("%w: sourcify returned status %d", types.ErrNetworkError, status)
	}

	var response sourcifyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, "", fmt.Errorf("could not parse the sourcify response: %v", err)
	}
	if len(response.Sources) == 0 {
		return nil, "", fmt.Errorf("%w: sourcify returned no sources for %s", types.ErrSourceNotVerified, s.Target)
	}

	version := versionPattern.FindString(response.Compilation.CompilerVersion)
	if version == "" {
		return nil, "", fmt.Errorf("%w: could not parse the sourcify compiler version %q",
			types.ErrCompilationFailed, response.Compilation.CompilerVersion)
	}

	solidityFiles, vyperFiles, err := s.materialize(directory, &response)
	if err != nil {
		return nil, "", err
	}

	settings := response.Compilation.CompilerSettings
	remappings := SanitizeRemappings(settings.Remappings)
	optimized := settings.Optimizer != nil && settings.Optimizer.Enabled
	optimizeRuns := 0
	if settings.Optimizer != nil {
		optimizeRuns = settings.Optimizer.Runs
	}
	if err := writeRecoveredConfig(directory, version, remappings, optimized, optimizeRuns, settings.EVMVersion, settings.ViaIR); err != nil {
		return nil, "", err
	}

	var delegate PlatformConfig
	switch {
	case len(solidityFiles) > 0:
		delegate = &SolcStandardJSONConfig{
			Targets:          solidityFiles,
			SolcVersion:      version,
			Remappings:       remappings,
			EVMVersion:       settings.EVMVersion,
			ViaIR:            settings.ViaIR,
			Optimize:         optimized,
			OptimizeRuns:     optimizeRuns,
			WorkingDirectory: directory,
		}
	case len(vyperFiles) > 0:
		delegate = &VyperCompilationConfig{
			Target:           vyperFiles[0],
			WorkingDirectory: directory,
		}
	default:
		return nil, "", fmt.Errorf("%w: the sourcify bundle for %s carries no compilable sources",
			types.ErrSourceNotVerified, s.Target)
	}

	units, warnings, err := delegate.Compile(project)
	if err != nil {
		return nil, warnings, err
	}
	unitName := response.Compilation.Name
	if unitName == "" {
		unitName = "Contract"
	}
	if len(units) == 1 {
		units[0].ID = unitName
	}
	return units, warnings, nil
}

// materialize writes the fetched sources below the directory, returning solidity and vyper file paths relative
// to it. Files of other types ride along in the bundle and are skipped.
func (s *SourcifyCompilationConfig) materialize(directory string, response *sourcifyResponse) ([]string, []string, error) {
	paths := maps.Keys(response.Sources)
	slices.Sort(paths)

	var solidityFiles []string
	var vyperFiles []string
	for _, original := range paths {
		if !strings.HasSuffix(original, ".sol") && !strings.HasSuffix(original, ".vy") {
			continue
		}
		path, err := safeJoin(directory, original)
		if err != nil {
			return nil, nil, err
		}
		if err := writeSourceFile(path, response.Sources[original].Content); err != nil {
			return nil, nil, err
		}
		relative, err := filepath.Rel(directory, path)
		if err != nil {
			relative = original
		}
		if strings.HasSuffix(original, ".sol") {
			solidityFiles = append(solidityFiles, relative)
		} else {
			vyperFiles = append(vyperFiles, relative)
		}
	}
	return solidityFiles, vyperFiles, nil
}

// materializedBundle reuses the bundle of a previous fetch when the directory already carries the recovered
// config file.
func (s *SourcifyCompilationConfig) materializedBundle(directory string) (PlatformConfig, bool) {
	recovered, err := readRecoveredConfig(filepath.Join(directory, recoveredConfigFileName))
	if err != nil {
		return nil, false
	}
	if len(FindSolidityFiles(directory)) > 0 {
		config := &SolcStandardJSONConfig{
			Targets:          []string{directory},
			SolcVersion:      recovered.Version,
			Remappings:       strings.Fields(recovered.Remaps),
			WorkingDirectory: directory,
		}
		applyRecoveredArgs(config, recovered.Args)
		logging.GlobalLogger.Info("Reusing the materialized sourcify bundle at ", directory)
		return config, true
	}
	if vyperFiles := FindVyperFiles(directory); len(vyperFiles) > 0 {
		target := vyperFiles[0]
		if relative, err := filepath.Rel(directory, target); err == nil {
			target = relative
		}
		logging.GlobalLogger.Info("Reusing the materialized sourcify bundle at ", directory)
		return &VyperCompilationConfig{Target: target, WorkingDirectory: directory}, true
	}
	return nil, false
}

// exportDirectory returns the configured export directory or the conventional default.
func (s *SourcifyCompilationConfig) exportDirectory() string {
	if s.ExportDirectory != "" {
		return s.ExportDirectory
	}
	return "crytic-export"
}

// parseSourcifyTarget splits a sourcify target into its decimal chain id and address.
func parseSourcifyTarget(target string) (string, string, error) {
	match := sourcifyTargetPattern.FindStringSubmatch(strings.TrimSpace(target))
	if match == nil {
		return "", "", fmt.Errorf("%w: %q is not a sourcify target", types.ErrInvalidTarget, target)
	}
	chainID := match[1]
	if strings.HasPrefix(chainID, "0x") {
		decoded, err := strconv.ParseUint(chainID[2:], 16, 64)
		if err != nil {
			return "", "", fmt.Errorf("%w: could not parse the chain id %q", types.ErrInvalidTarget, chainID)
		}
		chainID = strconv.FormatUint(decoded, 10)
	}
	return chainID, match[2], nil
}
