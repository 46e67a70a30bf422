package types

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFilenameResolution verifies raw paths resolve through the working directory and keep all four facets
// consistent.
func TestFilenameResolution(t *testing.T) {
	workingDirectory := t.TempDir()
	contractsDirectory := filepath.Join(workingDirectory, "contracts")
	require.NoError(t, os.MkdirAll(contractsDirectory, 0755))
	sourcePath := filepath.Join(contractsDirectory, "Token.sol")
	require.NoError(t, os.WriteFile(sourcePath, []byte("contract Token {}"), 0644))

	ctx := &PathContext{WorkingDirectory: workingDirectory}
	filename := ctx.Resolve("contracts/Token.sol")

	assert.Equal(t, "contracts/Token.sol", filename.Used)
	assert.Equal(t, "contracts/Token.sol", filename.Relative)
	assert.Equal(t, "contracts/Token.sol", filename.Short)
	assert.True(t, filepath.IsAbs(filename.Absolute))
	assert.FileExists(t, filename.Absolute)
}

// TestFilenameResolutionIncludePaths verifies include paths are probed when the working directory join does not
// exist.
func TestFilenameResolutionIncludePaths(t *testing.T) {
	workingDirectory := t.TempDir()
	includeRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(includeRoot, "lib"), 0755))
	libraryPath := filepath.Join(includeRoot, "lib", "Math.sol")
	require.NoError(t, os.WriteFile(libraryPath, []byte("library Math {}"), 0644))

	ctx := &PathContext{
		WorkingDirectory: workingDirectory,
		IncludePaths:     []string{includeRoot},
	}
	filename := ctx.Resolve("lib/Math.sol")

	assert.FileExists(t, filename.Absolute)
	// The file is outside the working directory, so the relative facet falls back to the absolute one.
	assert.Equal(t, filename.Absolute, filename.Relative)
	assert.Equal(t, "lib/Math.sol", filename.Used)
}

// TestFilenameResolutionRemappings verifies remapping prefixes substitute before probing.
func TestFilenameResolutionRemappings(t *testing.T) {
	workingDirectory := t.TempDir()
	vendored := filepath.Join(workingDirectory, "node_modules", "@openzeppelin", "contracts")
	require.NoError(t, os.MkdirAll(vendored, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(vendored, "Ownable.sol"), []byte("contract Ownable {}"), 0644))

	ctx := &PathContext{
		WorkingDirectory: workingDirectory,
		Remappings:       ParseRemappings([]string{"@openzeppelin/=node_modules/@openzeppelin/"}),
	}
	filename := ctx.Resolve("@openzeppelin/contracts/Ownable.sol")

	assert.FileExists(t, filename.Absolute)
	// The dependency root is stripped from the short facet.
	assert.Equal(t, "@openzeppelin/contracts/Ownable.sol", filename.Short)
	assert.Equal(t, "@openzeppelin/contracts/Ownable.sol", filename.Used)
}

// TestFilenameResolutionMissingFile verifies nonexistent paths still produce a stable syntactic identity.
func TestFilenameResolutionMissingFile(t *testing.T) {
	workingDirectory := t.TempDir()
	ctx := &PathContext{WorkingDirectory: workingDirectory}

	filename := ctx.Resolve("contracts/Ghost.sol")
	assert.Equal(t, filepath.Join(workingDirectory, "contracts", "Ghost.sol"), filename.Absolute)
	assert.Equal(t, "contracts/Ghost.sol", filename.Relative)
}

// TestFilenameInterning verifies two used strings resolving to one absolute path share one identity and all facets
// look the identity up.
func TestFilenameInterning(t *testing.T) {
	workingDirectory := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workingDirectory, "contracts"), 0755))
	sourcePath := filepath.Join(workingDirectory, "contracts", "Token.sol")
	require.NoError(t, os.WriteFile(sourcePath, []byte("contract Token {}"), 0644))

	project := NewProject("contracts/Token.sol", workingDirectory)
	ctx := &PathContext{WorkingDirectory: workingDirectory}

	first := project.InternFilename(ctx.Resolve("contracts/Token.sol"))
	second := project.InternFilename(ctx.Resolve(sourcePath))

	// Same absolute path, same instance.
	assert.Same(t, first, second)
	assert.Len(t, project.Filenames(), 1)

	for _, facet := range []string{first.Absolute, first.Relative, first.Short, first.Used} {
		found, ok := project.LookupFilename(facet)
		require.True(t, ok, "facet %q should resolve", facet)
		assert.Same(t, first, found)
	}
}

// TestStripPathPrefixes verifies layout prefixes strip with first match winning.
func TestStripPathPrefixes(t *testing.T) {
	assert.Equal(t, "Token.sol", StripPathPrefixes("contracts/Token.sol", "contracts", "node_modules"))
	assert.Equal(t, "a/b.sol", StripPathPrefixes("src/a/b.sol", "src"))
	assert.Equal(t, "plain.sol", StripPathPrefixes("plain.sol", "contracts"))
}
