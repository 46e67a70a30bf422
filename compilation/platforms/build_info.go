package platforms

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/crytic/crytic-compile-go/compilation/types"
)

// buildInfoFile mirrors the build-info artifacts written by hardhat and foundry. Each file pairs the exact
// standard-JSON input the framework fed to solc with the output it got back.
type buildInfoFile struct {
	Format      string `json:"_format"`
	ID          string `json:"id"`
	SolcVersion string `json:"solcVersion"`
	Input       struct {
		Language string `json:"language"`
		Settings struct {
			Remappings []string               `json:"remappings"`
			Optimizer  *StandardJSONOptimizer `json:"optimizer"`
			EVMVersion string                 `json:"evmVersion"`
			ViaIR      bool                   `json:"viaIR"`
		} `json:"settings"`
	} `json:"input"`
	Output *StandardJSONOutput `json:"output"`
}

// loadBuildInfoUnit ingests a single build-info file into a compilation unit. Newer hardhat releases split the
// compiler output into a sibling <name>.output.json file, which is picked up transparently.
func loadBuildInfoUnit(project *types.Project, path string, pathContext *types.PathContext) (*types.CompilationUnit, error) {
	encoded, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info buildInfoFile
	if err := json.Unmarshal(encoded, &info); err != nil {
		return nil, fmt.Errorf("could not parse build-info file %s: %v", path, err)
	}

	if info.Output == nil {
		outputPath := strings.TrimSuffix(path, ".json") + ".output.json"
		outputEncoded, err := os.ReadFile(outputPath)
		if err != nil {
			return nil, fmt.Errorf("build-info file %s has no output and no %s companion", path, filepath.Base(outputPath))
		}
		var split struct {
			Output *StandardJSONOutput `json:"output"`
		}
		if err := json.Unmarshal(outputEncoded, &split); err != nil {
			return nil, fmt.Errorf("could not parse build-info output file %s: %v", outputPath, err)
		}
		if split.Output == nil {
			// Some writers place the output document at the top level instead of nesting it.
			split.Output = &StandardJSONOutput{}
			if err := json.Unmarshal(outputEncoded, split.Output); err != nil {
				return nil, fmt.Errorf("could not parse build-info output file %s: %v", outputPath, err)
			}
		}
		info.Output = split.Output
	}

	compilerName := "solc"
	if strings.EqualFold(info.Input.Language, "vyper") {
		compilerName = "vyper"
	}
	compiler := types.CompilerConfig{
		Compiler:   compilerName,
		Version:    info.SolcVersion,
		EVMVersion: info.Input.Settings.EVMVersion,
		ViaIR:      info.Input.Settings.ViaIR,
		Remappings: info.Input.Settings.Remappings,
	}
	if optimizer := info.Input.Settings.Optimizer; optimizer != nil {
		compiler.Optimized = optimizer.Enabled
		compiler.OptimizeRuns = optimizer.Runs
	}

	unitID := strings.TrimSuffix(filepath.Base(path), ".json")
	return ingestStandardJSON(project, info.Output, unitID, compiler, pathContext), nil
}

// loadBuildInfoDirectory ingests every build-info file in a directory, oldest first so repeated compilations
// replay in the order the framework produced them.
func loadBuildInfoDirectory(project *types.Project, directory string, pathContext *types.PathContext) ([]*types.CompilationUnit, error) {
	matches, err := filepath.Glob(filepath.Join(directory, "*.json"))
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, match := range matches {
		// Output companions ride along with their input file rather than forming units of their own.
		if strings.HasSuffix(match, ".output.json") {
			continue
		}
		paths = append(paths, match)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no build-info files found in %s", types.ErrCompilationFailed, directory)
	}

	sort.Slice(paths, func(i, j int) bool {
		first, errFirst := os.Stat(paths[i])
		second, errSecond := os.Stat(paths[j])
		if errFirst != nil || errSecond != nil {
			return paths[i] < paths[j]
		}
		if first.ModTime().Equal(second.ModTime()) {
			return paths[i] < paths[j]
		}
		return first.ModTime().Before(second.ModTime())
	})

	units := make([]*types.CompilationUnit, 0, len(paths))
	for _, path := range paths {
		unit, err := loadBuildInfoUnit(project, path, pathContext)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}
