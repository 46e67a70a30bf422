package platforms

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTruffleArtifact writes a minimal truffle build artifact for one contract into the conventional
// build/contracts directory of the project.
func writeTruffleArtifact(t *testing.T, projectDir string, name string, sourcePath string, compilerVersion string, optimized bool) {
	t.Helper()
	metadata := fmt.Sprintf(`{"settings":{"optimizer":{"enabled":%t,"runs":200}}}`, optimized)
	artifact := map[string]any{
		"contractName":      name,
		"abi":               []any{},
		"bytecode":          "0x6080",
		"deployedBytecode":  "0x6001",
		"sourceMap":         "0:10:0:-",
		"deployedSourceMap": "0:8:0:-",
		"metadata":          metadata,
		"ast": map[string]any{
			"nodeType":     "SourceUnit",
			"absolutePath": sourcePath,
			"src":          "0:100:0",
			"nodes": []any{
				map[string]any{
					"nodeType":     "ContractDefinition",
					"id":           1,
					"name":         name,
					"contractKind": "contract",
					"src":          "0:90:0",
				},
			},
		},
		"compiler": map[string]any{"name": "solc", "version": compilerVersion},
	}
	encoded, err := json.Marshal(artifact)
	require.NoError(t, err)
	writeTestFile(t, projectDir, filepath.Join("build", "contracts", name+".json"), string(encoded))
}

func TestTruffleIsSupported(t *testing.T) {
	dir := t.TempDir()
	config := NewTruffleCompilationConfig(dir)
	assert.False(t, config.IsSupported(dir))

	writeTestFile(t, dir, "truffle-config.js", "module.exports = {};")
	assert.True(t, config.IsSupported(dir))

	// Hardhat projects often keep a truffle config for migrations; hardhat wins detection.
	writeTestFile(t, dir, "hardhat.config.js", "module.exports = {};")
	assert.False(t, config.IsSupported(dir))
}

func TestTruffleIngestArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "truffle-config.js", "module.exports = {};")
	writeTruffleArtifact(t, dir, "Token", "project:/contracts/Token.sol", "0.8.17+commit.8df45f5f", true)
	writeTruffleArtifact(t, dir, "Sale", "project:/contracts/Sale.sol", "0.8.17+commit.8df45f5f", true)

	project := types.NewProject(dir, dir)
	config := NewTruffleCompilationConfig(dir)
	config.IgnoreCompile = true

	units, _, err := config.Compile(project)
	require.NoError(t, err)
	require.Len(t, units, 1)
	unit := units[0]

	assert.Equal(t, "solc-js", unit.Compiler.Compiler)
	assert.Equal(t, "0.8.17", unit.Compiler.Version)
	assert.True(t, unit.Compiler.Optimized)
	require.Len(t, unit.SourceUnits, 2)

	token, sourceUnit, ok := unit.ContractByName("Token")
	require.True(t, ok)
	assert.Equal(t, "6080", token.InitBytecode)
	assert.Equal(t, "6001", token.RuntimeBytecode)
	assert.Equal(t, "0:8:0:-", token.SrcMapsRuntime)
	assert.Equal(t, types.ContractKindContract, token.Kind)
	assert.Equal(t, "project:/contracts/Token.sol", sourceUnit.Filename.Used)
}

func TestTruffleSkipsArtifactsWithoutSourceIdentity(t *testing.T) {
	dir := t.TempDir()
	// Migration helper artifacts carry no syntax tree and cannot be anchored to a source file.
	writeTestFile(t, dir, filepath.Join("build", "contracts", "Migrations.json"),
		`{"contractName":"Migrations","abi":[],"bytecode":"0x00"}`)
	writeTruffleArtifact(t, dir, "Token", "project:/contracts/Token.sol", "0.8.17+commit.8df45f5f", false)

	project := types.NewProject(dir, dir)
	config := NewTruffleCompilationConfig(dir)
	config.IgnoreCompile = true

	units, _, err := config.Compile(project)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Len(t, units[0].SourceUnits, 1)
	_, _, ok := units[0].ContractByName("Migrations")
	assert.False(t, ok)
}

func TestTruffleNoArtifacts(t *testing.T) {
	dir := t.TempDir()
	project := types.NewProject(dir, dir)
	config := NewTruffleCompilationConfig(dir)
	config.IgnoreCompile = true

	_, _, err := config.Compile(project)
	assert.ErrorIs(t, err, types.ErrCompilationFailed)
}

func TestTruffleConfigVersionGuess(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "truffle-config.js", "module.exports = {\n  compilers: {\n    solc: {\n      version: \"0.7.1\"\n    }\n  }\n};\n")

	config := NewTruffleCompilationConfig(dir)
	name, version := config.guessCompilerVersion()
	assert.Equal(t, "solc-js", name)
	assert.Equal(t, "0.7.1", version)
}

func TestMetadataOptimizerEnabled(t *testing.T) {
	enabled, ok := metadataOptimizerEnabled(`{"settings":{"optimizer":{"enabled":true,"runs":200}}}`)
	assert.True(t, ok)
	assert.True(t, enabled)

	enabled, ok = metadataOptimizerEnabled(`{"settings":{"optimizer":{"enabled":false}}}`)
	assert.True(t, ok)
	assert.False(t, enabled)

	_, ok = metadataOptimizerEnabled("")
	assert.False(t, ok)

	_, ok = metadataOptimizerEnabled(`{"settings":{}}`)
	assert.False(t, ok)
}
