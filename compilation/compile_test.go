package compilation

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/crytic/crytic-compile-go/compilation/exports"
	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFixtureFile writes content under dir, creating parents, and returns the created path.
func writeFixtureFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// buildInfoFixture renders a minimal forge/hardhat build-info file declaring one contract in one source file.
func buildInfoFixture(solcVersion string, sourcePath string, contractName string) string {
	return fmt.Sprintf(`{
		"_format": "hh-sol-build-info-1",
		"id": "fixture",
		"solcVersion": %q,
		"input": {"language": "Solidity", "settings": {"optimizer": {"enabled": false}}},
		"output": {
			"sources": {%q: {"id": 0, "ast": {"nodeType": "SourceUnit", "id": 1, "absolutePath": %q}}},
			"contracts": {%q: {%q: {
				"abi": [{"type": "function", "name": "ping", "stateMutability": "nonpayable", "inputs": [], "outputs": []}],
				"userdoc": {},
				"devdoc": {},
				"evm": {
					"bytecode": {"object": "6080604052", "sourceMap": "0:10:0:-"},
					"deployedBytecode": {"object": "60806040", "sourceMap": "0:8:0:-"}
				}
			}}}
		}
	}`, solcVersion, sourcePath, sourcePath, sourcePath, contractName)
}

func TestDetectPlatformByMarkerFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		files    []string
		platform string
	}{
		{name: "foundry", files: []string{"foundry.toml"}, platform: "foundry"},
		{name: "hardhat", files: []string{"hardhat.config.js"}, platform: "hardhat"},
		{name: "truffle", files: []string{"truffle-config.js"}, platform: "truffle"},
		{name: "brownie", files: []string{"brownie-config.yaml"}, platform: "brownie"},
		{name: "buidler", files: []string{"buidler.config.js"}, platform: "buidler"},
		// foundry outranks hardhat when both markers are present
		{name: "priority", files: []string{"foundry.toml", "hardhat.config.js"}, platform: "foundry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, file := range tt.files {
				writeFixtureFile(t, dir, file, "")
			}

			platformConfigs, err := DetectPlatform(dir, nil)
			require.NoError(t, err)
			require.Len(t, platformConfigs, 1)
			assert.Equal(t, tt.platform, platformConfigs[0].Platform())
			assert.Equal(t, dir, platformConfigs[0].GetTarget())
		})
	}
}

func TestDetectPlatformAddressTargets(t *testing.T) {
	t.Parallel()

	platformConfigs, err := DetectPlatform("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", nil)
	require.NoError(t, err)
	require.Len(t, platformConfigs, 1)
	assert.Equal(t, "etherscan", platformConfigs[0].Platform())

	platformConfigs, err = DetectPlatform("sourcify-1:0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", nil)
	require.NoError(t, err)
	require.Len(t, platformConfigs, 1)
	assert.Equal(t, "sourcify", platformConfigs[0].Platform())
}

func TestDetectPlatformSolidityFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	solFile := writeFixtureFile(t, dir, "Token.sol", "contract Token {}")

	// A bare solidity file falls through to the direct solc adapter.
	platformConfigs, err := DetectPlatform(solFile, nil)
	require.NoError(t, err)
	require.Len(t, platformConfigs, 1)
	assert.Equal(t, "solc", platformConfigs[0].Platform())

	// A directory holding solidity sources is claimed by the aggregating standard-JSON adapter.
	platformConfigs, err = DetectPlatform(dir, nil)
	require.NoError(t, err)
	require.Len(t, platformConfigs, 1)
	assert.Equal(t, "solc-json", platformConfigs[0].Platform())
}

func TestDetectPlatformVyperFallback(t *testing.T) {
	t.Parallel()

	vyFile := writeFixtureFile(t, t.TempDir(), "token.vy", "# vyper source")

	platformConfigs, err := DetectPlatform(vyFile, nil)
	require.NoError(t, err)
	require.Len(t, platformConfigs, 1)
	assert.Equal(t, "vyper", platformConfigs[0].Platform())
}

func TestDetectPlatformForcedFramework(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFixtureFile(t, dir, "foundry.toml", "")

	// A forced framework skips detection, case-insensitively.
	platformConfigs, err := DetectPlatform(dir, &CompilationConfig{ForceFramework: "Foundry"})
	require.NoError(t, err)
	require.Len(t, platformConfigs, 1)
	assert.Equal(t, "foundry", platformConfigs[0].Platform())

	// The forced adapter's veto is fatal rather than a fallthrough to detection.
	empty := t.TempDir()
	_, err = DetectPlatform(empty, &CompilationConfig{ForceFramework: "foundry"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoPlatformDetected)
	assert.Contains(t, err.Error(), "does not accept target")

	// An unknown framework name is rejected outright.
	_, err = DetectPlatform(dir, &CompilationConfig{ForceFramework: "remix"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoPlatformDetected)
	assert.Contains(t, err.Error(), "unknown platform")
}

func TestDetectPlatformUnclaimedTargets(t *testing.T) {
	t.Parallel()

	// A nonexistent path is an invalid target, not a detection failure.
	_, err := DetectPlatform(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidTarget)

	// An existing directory no platform claims is a detection failure.
	_, err = DetectPlatform(t.TempDir(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoPlatformDetected)
}

func TestMonorepoRoots(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	writeFixtureFile(t, filepath.Join(parent, "core"), "foundry.toml", "")
	writeFixtureFile(t, filepath.Join(parent, "periphery"), "hardhat.config.js", "")
	require.NoError(t, os.MkdirAll(filepath.Join(parent, "docs"), 0755))
	writeFixtureFile(t, filepath.Join(parent, "node_modules", "dep"), "foundry.toml", "")
	writeFixtureFile(t, filepath.Join(parent, ".cache"), "foundry.toml", "")

	roots := monorepoRoots(parent, nil)
	require.Len(t, roots, 2, "plain, hidden, and node_modules entries should not contribute roots")
	assert.Equal(t, filepath.Join(parent, "core"), roots[0].path)
	assert.Equal(t, "foundry", roots[0].platform)
	assert.Equal(t, filepath.Join(parent, "periphery"), roots[1].path)
	assert.Equal(t, "hardhat", roots[1].platform)

	// Files and empty directories yield no roots.
	assert.Nil(t, monorepoRoots(filepath.Join(parent, "core", "foundry.toml"), nil))
	assert.Nil(t, monorepoRoots(t.TempDir(), nil))
}

func TestDetectPlatformMonorepo(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	writeFixtureFile(t, filepath.Join(parent, "core"), "foundry.toml", "")
	writeFixtureFile(t, filepath.Join(parent, "periphery"), "hardhat.config.js", "")

	platformConfigs, err := DetectPlatform(parent, nil)
	require.NoError(t, err)
	require.Len(t, platformConfigs, 2)
	assert.Equal(t, "foundry", platformConfigs[0].Platform())
	assert.Equal(t, "hardhat", platformConfigs[1].Platform())
}

func TestCompileMonorepoMergesUniformSettings(t *testing.T) {
	t.Parallel()

	// Two foundry roots with artifacts compiled by identical settings fold into one unit.
	parent := t.TempDir()
	writeFixtureFile(t, filepath.Join(parent, "core"), "foundry.toml", "")
	writeFixtureFile(t, filepath.Join(parent, "core", "out", "build-info"), "core.json",
		buildInfoFixture("0.8.17", "src/Core.sol", "Core"))
	writeFixtureFile(t, filepath.Join(parent, "periphery"), "foundry.toml", "")
	writeFixtureFile(t, filepath.Join(parent, "periphery", "out", "build-info"), "periphery.json",
		buildInfoFixture("0.8.17", "src/Periphery.sol", "Periphery"))

	projects, err := Compile(parent, &CompilationConfig{IgnoreCompile: true})
	require.NoError(t, err)
	require.Len(t, projects, 1)

	project := projects[0]
	assert.Equal(t, "foundry", project.Platform)
	assert.Equal(t, []string{"forge test"}, project.UnitTests)

	units := project.SortedUnits()
	require.Len(t, units, 1, "identical compiler settings should merge into one unit")
	assert.Len(t, units[0].SourceUnits, 2)
	assert.ElementsMatch(t, []string{"Core", "Periphery"}, project.ContractNames())

	// Post-processing ran across the merged unit: selectors were derived from the ABI.
	_, sourceUnit, ok := units[0].ContractByName("Core")
	require.True(t, ok)
	assert.Contains(t, sourceUnit.Contracts["Core"].FunctionHashes, "ping()")
}

func TestCompileMonorepoKeepsDistinctSettings(t *testing.T) {
	t.Parallel()

	// Roots compiled with different solc versions stay separate units in the shared project.
	parent := t.TempDir()
	writeFixtureFile(t, filepath.Join(parent, "legacy"), "foundry.toml", "")
	writeFixtureFile(t, filepath.Join(parent, "legacy", "out", "build-info"), "legacy.json",
		buildInfoFixture("0.7.6", "src/Legacy.sol", "Legacy"))
	writeFixtureFile(t, filepath.Join(parent, "modern"), "foundry.toml", "")
	writeFixtureFile(t, filepath.Join(parent, "modern", "out", "build-info"), "modern.json",
		buildInfoFixture("0.8.17", "src/Modern.sol", "Modern"))

	projects, err := Compile(parent, &CompilationConfig{IgnoreCompile: true})
	require.NoError(t, err)
	require.Len(t, projects, 1)

	units := projects[0].SortedUnits()
	require.Len(t, units, 2)
	versions := []string{units[0].Compiler.Version, units[1].Compiler.Version}
	assert.ElementsMatch(t, []string{"0.7.6", "0.8.17"}, versions)
}

func TestCompileArchiveRoundTrip(t *testing.T) {
	t.Parallel()

	// Render an archive document from a synthetic project, then compile the written file back in.
	original := createTestProjects(t, "60806040526080")[0]
	_, encoded, err := exports.GenerateArchive(original)
	require.NoError(t, err)

	dir := t.TempDir()
	archivePath := writeFixtureFile(t, dir, "token_export_archive.json", string(encoded))

	projects, err := Compile(archivePath, nil)
	require.NoError(t, err)
	require.Len(t, projects, 1)

	project := projects[0]
	assert.Equal(t, "archive", project.Platform)
	assert.Equal(t, original.ContractNames(), project.ContractNames())
}

func TestCompileZipRoundTrip(t *testing.T) {
	t.Parallel()

	first := createTestProjects(t, "6080604052")[0]
	second := createTestProjects(t, "6080604053")[0]

	zipPath := filepath.Join(t.TempDir(), "projects.zip")
	require.NoError(t, exports.ExportZip([]*types.Project{first, second}, zipPath, ""))

	projects, err := Compile(zipPath, nil)
	require.NoError(t, err)
	assert.Len(t, projects, 2, "each embedded document should rehydrate into its own project")
	for _, project := range projects {
		assert.Equal(t, []string{"TestContract"}, project.ContractNames())
	}
}

func TestCompileInvalidTarget(t *testing.T) {
	t.Parallel()

	_, err := Compile(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidTarget)

	_, err = CompileTarget(filepath.Join(t.TempDir(), "missing"), DefaultCompilationConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidTarget)
}

func TestCompileTargetCustomBuildFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFixtureFile(t, dir, "foundry.toml", "")

	_, err := CompileTarget(dir, &CompilationConfig{CustomBuild: "false"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCompilationFailed)
	assert.Contains(t, err.Error(), "custom build command failed")
}

func TestRunCustomBuildEmptyCommand(t *testing.T) {
	t.Parallel()

	err := runCustomBuild(t.TempDir(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidTarget)
}

func TestLooseSourceFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFixtureFile(t, dir, "b.vy", "# b")
	writeFixtureFile(t, dir, "a.vy", "# a")
	writeFixtureFile(t, dir, "readme.md", "")

	sources := looseSourceFiles(dir)
	assert.Equal(t, []string{filepath.Join(dir, "a.vy"), filepath.Join(dir, "b.vy")}, sources)

	// Glob patterns expand against the filesystem directly.
	sources = looseSourceFiles(filepath.Join(dir, "*.vy"))
	assert.Len(t, sources, 2)

	// A directory with no compilable sources expands to nothing.
	assert.Empty(t, looseSourceFiles(t.TempDir()))
}

func TestCompileWorkingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.Equal(t, dir, compileWorkingDirectory(dir))

	workingDirectory, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, workingDirectory, compileWorkingDirectory(filepath.Join(dir, "file.sol")))
}

func TestTargetClaimed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFixtureFile(t, dir, "foundry.toml", "")
	assert.True(t, targetClaimed(dir, DefaultCompilationConfig()))

	assert.False(t, targetClaimed(t.TempDir(), DefaultCompilationConfig()))
}

func TestAppendUnique(t *testing.T) {
	t.Parallel()

	list := appendUnique(nil, "forge test")
	list = appendUnique(list, "forge test", "npx hardhat test")
	list = appendUnique(list, "npx hardhat test")
	assert.Equal(t, []string{"forge test", "npx hardhat test"}, list)
}
