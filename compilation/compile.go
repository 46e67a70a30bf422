package compilation

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/crytic/crytic-compile-go/compilation/exports"
	"github.com/crytic/crytic-compile-go/compilation/platforms"
	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"github.com/crytic/crytic-compile-go/utils"
)

// Compile resolves a target specifier into compiled projects. A file, a framework directory or anything else a
// registered platform claims compiles as one project; a zip archive rehydrates one project per embedded export
// document; a remaining directory or glob pattern expands into per-file compilations, unless the config aggregates
// the matched files through the standard-JSON interface.
func Compile(target string, config *CompilationConfig) ([]*types.Project, error) {
	if config == nil {
		config = DefaultCompilationConfig()
	}

	// Zip archives expand into one project per embedded export document.
	if utils.FileExists(target) && (strings.HasSuffix(target, ".zip") || strings.HasSuffix(target, ".zip.base64")) {
		return importZipProjects(target)
	}

	// With a forced framework the single-target path settles acceptance, so its veto surfaces instead of a
	// guessed expansion.
	if config.ForceFramework != "" || utils.FileExists(target) || targetClaimed(target, config) {
		project, err := CompileTarget(target, config)
		if err != nil {
			return nil, err
		}
		return []*types.Project{project}, nil
	}

	// What remains is a loose directory or a glob pattern expanding to source files.
	sources := looseSourceFiles(target)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %s is not a file or directory", types.ErrInvalidTarget, target)
	}

	// The standard-JSON interface can aggregate every matched file into a single compilation.
	if config.SolcStandardJSON {
		project, err := compileAggregated(target, sources, config)
		if err != nil {
			return nil, err
		}
		return []*types.Project{project}, nil
	}

	projects := make([]*types.Project, 0, len(sources))
	for _, source := range sources {
		project, err := CompileTarget(source, config)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, nil
}

// CompileTarget compiles a single target into one project, selecting the platform adapter through detection or the
// forced framework.
func CompileTarget(target string, config *CompilationConfig) (*types.Project, error) {
	if config == nil {
		config = DefaultCompilationConfig()
	}
	options := config.PlatformOptions()

	// A custom build command replaces the framework's own; the selected adapter then only parses artifacts.
	if config.CustomBuild != "" && !options.IgnoreCompile {
		if err := runCustomBuild(target, config.CustomBuild); err != nil {
			return nil, err
		}
		options.IgnoreCompile = true
	}

	project := types.NewProject(target, compileWorkingDirectory(target))
	libraries, err := config.ParsedLibraries()
	if err != nil {
		return nil, err
	}
	if libraries != nil {
		project.Libraries = libraries
	}

	platformConfig, roots, err := resolvePlatform(target, config, options)
	if err != nil {
		return nil, err
	}
	if platformConfig == nil {
		if err := compileMonorepo(project, roots, config, options); err != nil {
			return nil, err
		}
		return project, nil
	}

	if err := runPlatform(project, platformConfig, config); err != nil {
		return nil, err
	}
	return project, nil
}

// DetectPlatform resolves the platform adapters that would compile the target, without compiling. A single
// adapter for most targets; one adapter per framework root for a parent directory dispatching to several.
func DetectPlatform(target string, config *CompilationConfig) ([]platforms.PlatformConfig, error) {
	if config == nil {
		config = DefaultCompilationConfig()
	}
	options := config.PlatformOptions()

	platformConfig, roots, err := resolvePlatform(target, config, options)
	if err != nil {
		return nil, err
	}
	if platformConfig != nil {
		return []platforms.PlatformConfig{platformConfig}, nil
	}

	platformConfigs := make([]platforms.PlatformConfig, 0, len(roots))
	for _, root := range roots {
		platformConfigs = append(platformConfigs, GetDefaultPlatformConfig(root.platform, root.path, options))
	}
	return platformConfigs, nil
}

// compileWorkingDirectory anchors a project: directory targets anchor at themselves, everything else at the
// process working directory.
func compileWorkingDirectory(target string) string {
	if utils.DirectoryExists(target) {
		return target
	}
	workingDirectory, err := os.Getwd()
	if err != nil {
		return "."
	}
	return workingDirectory
}

// targetClaimed reports whether detection would resolve the target, either through a single platform or a set of
// framework roots.
func targetClaimed(target string, config *CompilationConfig) bool {
	platformConfig, roots, err := resolvePlatform(target, config, config.PlatformOptions())
	return err == nil && (platformConfig != nil || len(roots) > 0)
}

// looseSourceFiles expands a directory or glob pattern into compilable source files: vyper sources for a
// directory (one holding solidity is already claimed through detection), otherwise whatever the pattern matches.
func looseSourceFiles(target string) []string {
	var sources []string
	if utils.DirectoryExists(target) {
		sources, _ = filepath.Glob(filepath.Join(target, "*.sol"))
		if len(sources) == 0 {
			sources, _ = filepath.Glob(filepath.Join(target, "*.vy"))
		}
	} else {
		sources, _ = filepath.Glob(target)
	}
	sort.Strings(sources)
	return sources
}

// compileAggregated compiles several loose source files as one standard-JSON compilation.
func compileAggregated(target string, sources []string, config *CompilationConfig) (*types.Project, error) {
	project := types.NewProject(target, compileWorkingDirectory(target))
	libraries, err := config.ParsedLibraries()
	if err != nil {
		return nil, err
	}
	if libraries != nil {
		project.Libraries = libraries
	}

	platformConfig := platforms.NewSolcStandardJSONConfig(sources, config.PlatformOptions())
	if err := runPlatform(project, platformConfig, config); err != nil {
		return nil, err
	}
	return project, nil
}

// importZipProjects rehydrates every export document embedded in a zip archive, one project per document.
func importZipProjects(target string) ([]*types.Project, error) {
	documents, err := exports.ImportZip(target)
	if err != nil {
		return nil, err
	}

	projects := make([]*types.Project, 0, len(documents))
	for _, document := range documents {
		project, err := exports.ImportDocument(document)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, nil
}

// monorepoRoot pairs a framework subdirectory with the platform which claimed it.
type monorepoRoot struct {
	path     string
	platform string
}

// resolvePlatform selects the adapter for a target. Either a single adapter is returned, or, for a parent
// directory dispatching to several framework roots, the list of roots to compile independently.
func resolvePlatform(target string, config *CompilationConfig, options *platforms.PlatformOptions) (platforms.PlatformConfig, []monorepoRoot, error) {
	if config.ForceFramework != "" {
		platformConfig := GetDefaultPlatformConfig(config.ForceFramework, target, options)
		if platformConfig == nil {
			return nil, nil, fmt.Errorf("%w: unknown platform '%s'", types.ErrNoPlatformDetected, config.ForceFramework)
		}
		// A forced platform may still veto the target; that veto is fatal rather than a fallthrough.
		if !platformConfig.IsSupported(target) {
			return nil, nil, fmt.Errorf("%w: %s does not accept target %s", types.ErrNoPlatformDetected, platformConfig.Platform(), target)
		}
		return platformConfig, nil, nil
	}

	checkedMonorepo := false
	for _, descriptor := range platformDescriptors {
		// Before falling through to the direct-compiler tier, a parent directory holding framework roots
		// dispatches to each of them instead.
		if !checkedMonorepo && descriptor.Priority >= platforms.PriorityFallback {
			checkedMonorepo = true
			if roots := monorepoRoots(target, options); len(roots) > 0 {
				return nil, roots, nil
			}
		}
		platformConfig := GetDefaultPlatformConfig(descriptor.Name, target, options)
		if platformConfig.IsSupported(target) {
			return platformConfig, nil, nil
		}
	}

	if !utils.FileExists(target) && !utils.DirectoryExists(target) {
		return nil, nil, fmt.Errorf("%w: %s is not a file or directory", types.ErrInvalidTarget, target)
	}
	return nil, nil, fmt.Errorf("%w: no platform accepts target %s", types.ErrNoPlatformDetected, target)
}

// monorepoRoots scans a directory's immediate children for framework roots. Only the frameworks with
// subdirectory-rooted workspace layouts participate.
func monorepoRoots(target string, options *platforms.PlatformOptions) []monorepoRoot {
	if !utils.DirectoryExists(target) {
		return nil
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return nil
	}

	probes := []platforms.PlatformConfig{
		platforms.NewFoundryCompilationConfigWithOptions(target, options),
		platforms.NewHardhatV3CompilationConfigWithOptions(target, options),
		platforms.NewHardhatCompilationConfigWithOptions(target, options),
	}

	var roots []monorepoRoot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || name == "node_modules" {
			continue
		}
		path := filepath.Join(target, name)
		for _, probe := range probes {
			if probe.IsSupported(path) {
				roots = append(roots, monorepoRoot{path: path, platform: probe.Platform()})
				break
			}
		}
	}
	return roots
}

// compileMonorepo compiles each framework root into the shared project and folds units compiled with identical
// settings into one, so a workspace of uniform sub-projects presents as a single compilation. The project filename
// index carries the cross-root identities.
func compileMonorepo(project *types.Project, roots []monorepoRoot, config *CompilationConfig, options *platforms.PlatformOptions) error {
	type rootResult struct {
		platformConfig platforms.PlatformConfig
		units          []*types.CompilationUnit
	}
	results := make([]rootResult, len(roots))

	group := errgroup.Group{}
	group.SetLimit(runtime.NumCPU())
	for i, root := range roots {
		i, root := i, root
		group.Go(func() error {
			platformConfig := GetDefaultPlatformConfig(root.platform, root.path, options)
			units, _, err := platformConfig.Compile(project)
			if err != nil {
				return fmt.Errorf("%s compilation of %s failed: %w", root.platform, root.path, err)
			}
			results[i] = rootResult{platformConfig: platformConfig, units: units}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	var produced []*types.CompilationUnit
	dependencyChecks := make([]func(string) bool, 0, len(results))
	for _, result := range results {
		produced = append(produced, result.units...)
		dependencyChecks = append(dependencyChecks, result.platformConfig.IsDependency)
		project.UnitTests = appendUnique(project.UnitTests, result.platformConfig.GuessedTests()...)
		if project.Platform == "" {
			project.Platform = result.platformConfig.Platform()
		}
	}

	merged, err := MergeUnits(produced)
	if err != nil {
		return err
	}
	for _, unit := range merged {
		project.AddCompilationUnit(unit)
	}

	if project.Package == "" {
		project.Package = platforms.GetPackageName(project.Target)
	}

	isDependency := func(path string) bool {
		for _, check := range dependencyChecks {
			if check(path) {
				return true
			}
		}
		return false
	}
	return postProcess(project, isDependency, config)
}

// runPlatform drives one adapter against the project: compile, install the produced units, annotate the project
// with the platform's metadata, and post-process.
func runPlatform(project *types.Project, platformConfig platforms.PlatformConfig, config *CompilationConfig) error {
	units, _, err := platformConfig.Compile(project)
	if err != nil {
		return fmt.Errorf("%s compilation of %s failed: %w", platformConfig.Platform(), project.Target, err)
	}
	for _, unit := range units {
		project.AddCompilationUnit(unit)
	}

	project.Platform = platformConfig.Platform()
	if project.Package == "" {
		project.Package = platforms.GetPackageName(project.Target)
	}
	project.UnitTests = appendUnique(project.UnitTests, platformConfig.GuessedTests()...)

	return postProcess(project, platformConfig.IsDependency, config)
}

// postProcess derives the per-contract data consumers expect on every unit: selector hashes, library placeholder
// discovery, vendor classification, and the contract dependency graph. Units share no mutable state, so they are
// processed in parallel.
func postProcess(project *types.Project, isDependency func(string) bool, config *CompilationConfig) error {
	group := errgroup.Group{}
	group.SetLimit(runtime.NumCPU())
	for _, unit := range project.SortedUnits() {
		unit := unit
		group.Go(func() error {
			processUnit(unit, isDependency, config)
			return nil
		})
	}
	return group.Wait()
}

// processUnit post-processes one compilation unit in place.
func processUnit(unit *types.CompilationUnit, isDependency func(string) bool, config *CompilationConfig) {
	for _, sourceUnit := range unit.SourceUnitList() {
		if isDependency != nil && !sourceUnit.IsDependency {
			sourceUnit.IsDependency = isDependency(sourceUnit.Filename.Absolute)
		}
		for _, contract := range sourceUnit.Contracts {
			if err := contract.ComputeHashes(); err != nil {
				logging.GlobalLogger.Warn("Could not compute selectors for ", contract.Name, ": ", err)
			}
			contract.DiscoverLibraries()
			if config.RemoveMetadata {
				contract.StripMetadata()
			}
		}
	}

	// Dependencies resolve after library discovery, as placeholders contribute graph edges.
	graph := unit.DependencyGraph()
	for _, sourceUnit := range unit.SourceUnitList() {
		for name, contract := range sourceUnit.Contracts {
			if dependencies, ok := graph[name]; ok {
				contract.Dependencies = dependencies
			}
		}
	}
}

// runCustomBuild executes the caller-provided build command in place of the framework's own, in the target
// directory when the target is one.
func runCustomBuild(target string, build string) error {
	parts := strings.Fields(build)
	if len(parts) == 0 {
		return fmt.Errorf("%w: empty custom build command", types.ErrInvalidTarget)
	}

	logging.GlobalLogger.Info("Running custom build command: ", build)
	cmd := exec.Command(parts[0], parts[1:]...)
	if utils.DirectoryExists(target) {
		cmd.Dir = target
	}
	_, _, cmdCombined, err := utils.RunCommandWithOutputAndError(cmd)
	if err != nil {
		return fmt.Errorf("%w: custom build command failed: %v\n%s", types.ErrCompilationFailed, err, string(cmdCombined))
	}
	return nil
}

// appendUnique appends the provided values to the list, skipping values already present.
func appendUnique(list []string, values ...string) []string {
	seen := make(map[string]struct{}, len(list))
	for _, value := range list {
		seen[value] = struct{}{}
	}
	for _, value := range values {
		if _, duplicate := seen[value]; duplicate {
			continue
		}
		seen[value] = struct{}{}
		list = append(list, value)
	}
	return list
}
