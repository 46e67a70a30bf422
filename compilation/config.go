package compilation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/crytic/crytic-compile-go/compilation/platforms"
	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/utils"
)

// DefaultConfigFileName is the conventional name of the JSON config file, both for the --config-file flag default
// and for the settings the verification fetchers recover next to materialized sources.
const DefaultConfigFileName = "crytic_compile.config.json"

// DefaultExportDirectory is where exports and fetched sources land when no directory is configured.
const DefaultExportDirectory = "crytic-export"

// CompilationConfig carries every caller-settable option of a compile run. The JSON keys double as the config-file
// schema, so a file written by the verification fetchers round-trips through LoadCompilationConfig.
type CompilationConfig struct {
	// ForceFramework skips platform detection and selects the named adapter, case-insensitively.
	ForceFramework string `json:"compile_force_framework,omitempty"`

	// RemoveMetadata strips the metadata trailer from stored bytecodes after compilation.
	RemoveMetadata bool `json:"compile_remove_metadata,omitempty"`

	// CustomBuild replaces the platform-specific build command. Detection still runs, but the selected adapter
	// parses artifacts without compiling.
	CustomBuild string `json:"compile_custom_build,omitempty"`

	// IgnoreCompile skips every platform's build command and parses existing artifacts.
	IgnoreCompile bool `json:"ignore_compile,omitempty"`

	// CompileAll asks frameworks that skip tests and scripts by default to compile everything.
	CompileAll bool `json:"compile_all,omitempty"`

	// Libraries provides addresses for bytecode linking, as a "(name, 0xaddress), ..." list.
	Libraries string `json:"compile_libraries,omitempty"`

	// BuildDirectory overrides the artifact directory of artifact-parsing adapters.
	BuildDirectory string `json:"compile_build_directory,omitempty"`

	// SolcPath is the solc binary to invoke. Empty resolves one through the locator.
	SolcPath string `json:"solc,omitempty"`

	// SolcVersion pins the solc version through the version manager.
	SolcVersion string `json:"solc_solcs_select,omitempty"`

	// SolcArgs are extra space-separated arguments appended to direct solc invocations, e.g. "--optimize
	// --optimize-runs 200".
	SolcArgs string `json:"solc_args,omitempty"`

	// SolcRemaps are import remappings in prefix=target form, space or comma separated.
	SolcRemaps string `json:"solc_remaps,omitempty"`

	// SolcDisableWarnings suppresses compiler warning logging.
	SolcDisableWarnings bool `json:"solc_disable_warnings,omitempty"`

	// SolcStandardJSON drives direct solc targets through the standard-JSON interface, aggregating multiple
	// targets into a single compilation.
	SolcStandardJSON bool `json:"solc_standard_json,omitempty"`

	// VyperPath is the vyper binary to invoke for .vy targets.
	VyperPath string `json:"vyper,omitempty"`

	// TruffleVersion pins the truffle version invoked through npx.
	TruffleVersion string `json:"truffle_version,omitempty"`

	// EmbarkOverwriteConfig lets the embark adapter install its reporting plugin into embark.json.
	EmbarkOverwriteConfig bool `json:"embark_overwrite_config,omitempty"`

	// EtherlimeCompileArguments are extra arguments appended to etherlime compile.
	EtherlimeCompileArguments string `json:"etherlime_compile_arguments,omitempty"`

	// EtherscanAPIKey authenticates Etherscan API requests. The ETHERSCAN_API_KEY environment variable is the
	// fallback.
	EtherscanAPIKey string `json:"etherscan_api_key,omitempty"`

	// NpxDisable invokes node-based frameworks directly instead of through npx.
	NpxDisable bool `json:"npx_disable,omitempty"`

	// ExportDir is the directory exports and fetched sources are written under.
	ExportDir string `json:"export_dir,omitempty"`

	// ExportFormat selects a single export format: standard, solc, truffle, or archive.
	ExportFormat string `json:"export_format,omitempty"`

	// ExportFormats selects several export formats at once, comma separated.
	ExportFormats string `json:"export_formats,omitempty"`

	// ExportZip packs the archive export of every compiled project into one zip file at the given path.
	ExportZip string `json:"export_to_zip,omitempty"`

	// ExportZipType selects the zip compression method, stored or deflated.
	ExportZipType string `json:"export_to_zip_type,omitempty"`

	// PrintFilenames logs the four views of every filename after compilation.
	PrintFilenames bool `json:"print_filenames,omitempty"`
}

// DefaultCompilationConfig returns a config with every option on its default.
func DefaultCompilationConfig() *CompilationConfig {
	return &CompilationConfig{}
}

// LoadCompilationConfig reads a JSON config file. Unknown keys are rejected so a typo in a hand-written file does
// not silently fall back to a default.
func LoadCompilationConfig(path string) (*CompilationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultCompilationConfig()
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %v", path, err)
	}
	return config, nil
}

// WriteToFile writes the config as indented JSON, creating parent directories as needed.
func (c *CompilationConfig) WriteToFile(path string) error {
	encoded, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFile(path, encoded)
}

// PlatformOptions translates the config into the option set platform adapters consume.
func (c *CompilationConfig) PlatformOptions() *platforms.PlatformOptions {
	return &platforms.PlatformOptions{
		IgnoreCompile:             c.IgnoreCompile,
		CompileAll:                c.CompileAll,
		NpxDisable:                c.NpxDisable,
		BuildDirectory:            c.BuildDirectory,
		SolcPath:                  c.SolcPath,
		SolcVersion:               c.SolcVersion,
		SolcArgs:                  splitArguments(c.SolcArgs),
		SolcRemappings:            splitList(c.SolcRemaps),
		SolcUseStandardJSON:       c.SolcStandardJSON,
		SolcDisableWarnings:       c.SolcDisableWarnings,
		VyperPath:                 c.VyperPath,
		TruffleVersion:            c.TruffleVersion,
		EtherlimeCompileArguments: c.EtherlimeCompileArguments,
		EmbarkOverwriteConfig:     c.EmbarkOverwriteConfig,
		EtherscanAPIKey:           c.EtherscanAPIKey,
		ExportDirectory:           c.ExportDir,
	}
}

// ExportDirectory returns the configured export directory, or the conventional default.
func (c *CompilationConfig) ExportDirectory() string {
	if c.ExportDir != "" {
		return c.ExportDir
	}
	return DefaultExportDirectory
}

// ExportFormatList gathers the requested export formats, single and plural flags combined, lowercased and
// de-duplicated in request order.
func (c *CompilationConfig) ExportFormatList() []string {
	var formats []string
	seen := make(map[string]struct{})
	appendFormat := func(format string) {
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "" {
			return
		}
		if _, duplicate := seen[format]; duplicate {
			return
		}
		seen[format] = struct{}{}
		formats = append(formats, format)
	}

	appendFormat(c.ExportFormat)
	for _, format := range strings.Split(c.ExportFormats, ",") {
		appendFormat(format)
	}
	return formats
}

// ParsedLibraries decodes the library address list into the mapping the linker consumes.
func (c *CompilationConfig) ParsedLibraries() (map[string]string, error) {
	if c.Libraries == "" {
		return nil, nil
	}
	return types.ParseLibraryAddresses(c.Libraries)
}

// splitArguments splits a space-separated argument string, tolerating extra whitespace.
func splitArguments(arguments string) []string {
	return strings.Fields(arguments)
}

// splitList splits a list on commas and whitespace, whichever the caller used.
func splitList(list string) []string {
	return strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
