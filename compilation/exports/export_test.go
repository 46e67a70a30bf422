package exports

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newExportTestProject builds a project with one solc unit holding a project contract and a vendored dependency, the
// shape every export format consumes.
func newExportTestProject(t *testing.T) *types.Project {
	t.Helper()

	project := types.NewProject("/proj/token", "/proj")
	project.Platform = "solc"
	project.UnitTests = []string{"forge test"}

	unit := types.NewCompilationUnit("unit-1", types.CompilerConfig{Compiler: "solc", Version: "0.8.17"})

	tokenFile := project.InternFilename(types.Filename{
		Absolute: "/proj/src/Token.sol",
		Relative: "src/Token.sol",
		Short:    "src/Token.sol",
		Used:     "src/Token.sol",
	})
	tokenSource := types.NewSourceUnit(tokenFile, json.RawMessage(`{"nodeType":"SourceUnit","id":1,"absolutePath":"src/Token.sol"}`))
	tokenSource.ID = 0
	tokenSource.Content = "contract Token {}"
	tokenSource.AddContract(&types.CompiledContract{
		Name:            "Token",
		Abi:             json.RawMessage(`[{"type": "function", "name": "ping", "inputs": [], "outputs": [], "stateMutability": "nonpayable"}]`),
		InitBytecode:    "6080604052",
		RuntimeBytecode: "60806040",
		SrcMapsInit:     "0:10:0:-",
		SrcMapsRuntime:  "0:8:0:-",
		Natspec:         types.NewNatspec(json.RawMessage(`{"notice":"token"}`), nil),
		FunctionHashes:  map[string]uint64{"ping()": types.FunctionSelector("ping()")},
	})
	unit.AddSourceUnit(tokenSource)

	vendorFile := project.InternFilename(types.Filename{
		Absolute: "/proj/node_modules/@openzeppelin/contracts/Ownable.sol",
		Relative: "node_modules/@openzeppelin/contracts/Ownable.sol",
		Short:    "@openzeppelin/contracts/Ownable.sol",
		Used:     "@openzeppelin/contracts/Ownable.sol",
	})
	vendorSource := types.NewSourceUnit(vendorFile, nil)
	vendorSource.IsDependency = true
	vendorSource.AddContract(&types.CompiledContract{
		Name:            "Ownable",
		InitBytecode:    "6001",
		RuntimeBytecode: "6002",
	})
	unit.AddSourceUnit(vendorSource)

	project.AddCompilationUnit(unit)
	return project
}

func TestSupportedFormats(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"archive", "crytic-compile", "solc", "standard", "truffle"}, SupportedFormats())
}

func TestExportDispatchesByName(t *testing.T) {
	t.Parallel()

	project := newExportTestProject(t)

	// Format names resolve case-insensitively.
	dir := t.TempDir()
	paths, err := Export(project, "Standard", dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, StandardExportFile), paths[0])

	// The historical alias writes the same artifact.
	aliasDir := t.TempDir()
	aliasPaths, err := Export(project, "crytic-compile", aliasDir)
	require.NoError(t, err)
	require.Len(t, aliasPaths, 1)
	assert.Equal(t, filepath.Join(aliasDir, StandardExportFile), aliasPaths[0])
}

func TestExportUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := Export(newExportTestProject(t), "json", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format 'json'")
}

func TestExportStandardDocumentShape(t *testing.T) {
	t.Parallel()

	project := newExportTestProject(t)
	dir := t.TempDir()
	paths, err := ExportStandard(project, dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	encoded, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	document, err := ParseExportDocument(encoded)
	require.NoError(t, err)

	assert.Equal(t, "/proj/token", document.Target)
	assert.Equal(t, "/proj", document.WorkingDir)
	assert.Equal(t, "solc", document.Type)
	assert.Equal(t, []string{"forge test"}, document.UnitTests)
	assert.Empty(t, document.SourceContent, "only the archive format embeds source text")

	exportedUnit := document.CompilationUnits["unit-1"]
	require.NotNil(t, exportedUnit)
	assert.Equal(t, "unit-1", exportedUnit.UnitID)
	assert.Equal(t, "0.8.17", exportedUnit.Compiler.Version)

	tokenSource := exportedUnit.SourceUnits["/proj/src/Token.sol"]
	require.NotNil(t, tokenSource)
	assert.Equal(t, 0, tokenSource.ID)
	assert.Equal(t, "src/Token.sol", tokenSource.Filename.Relative)

	token := tokenSource.Contracts["Token"]
	require.NotNil(t, token)
	assert.Equal(t, "6080604052", token.Bin)
	assert.Equal(t, "60806040", token.BinRuntime)
	assert.Equal(t, types.FunctionSelector("ping()"), token.Hashes["ping()"])

	vendorSource := exportedUnit.SourceUnits["/proj/node_modules/@openzeppelin/contracts/Ownable.sol"]
	require.NotNil(t, vendorSource)
	assert.True(t, vendorSource.IsDependency)
}

func TestImportDocumentRestoresProject(t *testing.T) {
	t.Parallel()

	original := newExportTestProject(t)
	document := BuildExportDocument(original)

	restored, err := ImportDocument(document)
	require.NoError(t, err)

	assert.Equal(t, original.Target, restored.Target)
	assert.Equal(t, original.WorkingDirectory, restored.WorkingDirectory)
	assert.Equal(t, original.Platform, restored.Platform)
	assert.Equal(t, original.UnitTests, restored.UnitTests)
	assert.Equal(t, original.ContractNames(), restored.ContractNames())

	units := restored.SortedUnits()
	require.Len(t, units, 1)
	assert.Equal(t, "unit-1", units[0].ID)
	assert.Equal(t, original.SortedUnits()[0].Compiler, units[0].Compiler)

	contract, sourceUnit, ok := units[0].ContractByName("Token")
	require.True(t, ok)
	assert.JSONEq(t, `[{"type": "function", "name": "ping", "inputs": [], "outputs": [], "stateMutability": "nonpayable"}]`, string(contract.Abi))
	assert.Equal(t, "6080604052", contract.InitBytecode)
	assert.Equal(t, "0:10:0:-", contract.SrcMapsInit)
	assert.Equal(t, 0, sourceUnit.ID)
	assert.Equal(t, "src/Token.sol", sourceUnit.Filename.Used)

	_, vendorSource, ok := units[0].ContractByName("Ownable")
	require.True(t, ok)
	assert.True(t, vendorSource.IsDependency)
}

func TestImportDocumentWithoutUnits(t *testing.T) {
	t.Parallel()

	document, err := ParseExportDocument([]byte(`{"target": "x", "working_dir": ".", "type": "solc"}`))
	require.NoError(t, err)

	_, err = ImportDocument(document)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidArchive)
	assert.Contains(t, err.Error(), "no compilation units")
}

func TestParseExportDocumentRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseExportDocument([]byte("not a document"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidArchive)
}
