package compilation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCompilationConfigRoundTrip(t *testing.T) {
	t.Parallel()

	original := &CompilationConfig{
		ForceFramework:      "hardhat",
		RemoveMetadata:      true,
		IgnoreCompile:       true,
		Libraries:           "(MathLib, 0x1234567890123456789012345678901234567890)",
		SolcPath:            "/usr/local/bin/solc",
		SolcArgs:            "--optimize --optimize-runs 200",
		SolcRemaps:          "@openzeppelin/=node_modules/@openzeppelin/",
		EtherscanAPIKey:     "KEY",
		ExportDir:           "out",
		ExportFormats:       "solc,truffle",
		ExportZipType:       "stored",
		PrintFilenames:      true,
		SolcDisableWarnings: true,
	}

	path := filepath.Join(t.TempDir(), "crytic_compile.config.json")
	require.NoError(t, original.WriteToFile(path))

	loaded, err := LoadCompilationConfig(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoadCompilationConfigRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"compile_force_frameowrk": "hardhat"}`), 0644))

	_, err := LoadCompilationConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not parse config file")
}

func TestLoadCompilationConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadCompilationConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPlatformOptionsTranslation(t *testing.T) {
	t.Parallel()

	config := &CompilationConfig{
		IgnoreCompile:  true,
		CompileAll:     true,
		NpxDisable:     true,
		BuildDirectory: "artifacts-v2",
		SolcPath:       "solc-0.8.17",
		SolcVersion:    "0.8.17",
		SolcArgs:       "--via-ir  --optimize",
		SolcRemaps:     "a=b,c=d e=f",
		TruffleVersion: "5.4.0",
		ExportDir:      "exports",
	}

	options := config.PlatformOptions()
	assert.True(t, options.IgnoreCompile)
	assert.True(t, options.CompileAll)
	assert.True(t, options.NpxDisable)
	assert.Equal(t, "artifacts-v2", options.BuildDirectory)
	assert.Equal(t, "solc-0.8.17", options.SolcPath)
	assert.Equal(t, "0.8.17", options.SolcVersion)
	assert.Equal(t, []string{"--via-ir", "--optimize"}, options.SolcArgs)
	assert.Equal(t, []string{"a=b", "c=d", "e=f"}, options.SolcRemappings, "remaps split on commas and whitespace")
	assert.Equal(t, "5.4.0", options.TruffleVersion)
	assert.Equal(t, "exports", options.ExportDirectory)

	// Empty argument strings translate to no arguments rather than [""].
	empty := DefaultCompilationConfig().PlatformOptions()
	assert.Empty(t, empty.SolcArgs)
	assert.Empty(t, empty.SolcRemappings)
}

func TestExportDirectoryDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultExportDirectory, DefaultCompilationConfig().ExportDirectory())
	assert.Equal(t, "elsewhere", (&CompilationConfig{ExportDir: "elsewhere"}).ExportDirectory())
}

func TestExportFormatList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		exportFormat  string
		exportFormats string
		want          []string
	}{
		{name: "none", want: nil},
		{name: "single", exportFormat: "solc", want: []string{"solc"}},
		{name: "plural", exportFormats: "solc,truffle", want: []string{"solc", "truffle"}},
		{name: "combined", exportFormat: "archive", exportFormats: "solc,truffle", want: []string{"archive", "solc", "truffle"}},
		{name: "deduplicated", exportFormat: "solc", exportFormats: "SOLC, truffle", want: []string{"solc", "truffle"}},
		{name: "blank entries dropped", exportFormats: "solc,,truffle,", want: []string{"solc", "truffle"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &CompilationConfig{ExportFormat: tt.exportFormat, ExportFormats: tt.exportFormats}
			assert.Equal(t, tt.want, config.ExportFormatList())
		})
	}
}

func TestParsedLibraries(t *testing.T) {
	t.Parallel()

	config := &CompilationConfig{Libraries: "(MathLib, 0x1234567890123456789012345678901234567890)"}
	libraries, err := config.ParsedLibraries()
	require.NoError(t, err)
	assert.Equal(t, "1234567890123456789012345678901234567890", libraries["MathLib"], "addresses normalize to bare hex")

	empty, err := DefaultCompilationConfig().ParsedLibraries()
	require.NoError(t, err)
	assert.Nil(t, empty)
}
