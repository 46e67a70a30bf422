package cmd

import (
	"fmt"

	"github.com/crytic/crytic-compile-go/compilation"
	"github.com/crytic/crytic-compile-go/compilation/exports"
	"github.com/spf13/cobra"
)

// addRootFlags adds the various flags for the root command
func addRootFlags() error {
	// Prevent alphabetical sorting of usage message
	rootCmd.Flags().SortFlags = false

	// Config file
	rootCmd.Flags().String("config-file", "",
		fmt.Sprintf("path to config file (default is %q in the working directory)", compilation.DefaultConfigFileName))

	// Compile options
	rootCmd.Flags().String("compile-force-framework", "",
		"force the compile to a given framework (see the platforms subcommand for the list)")
	rootCmd.Flags().Bool("compile-remove-metadata", false,
		"remove the metadata trailer from the bytecodes")
	rootCmd.Flags().String("compile-custom-build", "",
		"replace the platform-specific build command")
	rootCmd.Flags().Bool("ignore-compile", false,
		"do not run the build command of any platform, parse existing artifacts")
	rootCmd.Flags().Bool("compile-all", false,
		"ask frameworks that skip tests and scripts by default to compile everything")
	rootCmd.Flags().String("compile-libraries", "",
		"library addresses for linking, e.g. (name1, 0x00),(name2, 0x02)")
	rootCmd.Flags().String("compile-build-directory", "",
		"use an alternative build/artifact directory")

	// Solc options
	rootCmd.Flags().String("solc", "",
		"solc path")
	rootCmd.Flags().String("solc-solcs-select", "",
		"specify a different solc version to use (requires solc-select)")
	rootCmd.Flags().String("solc-args", "",
		`add custom solc arguments, e.g. --solc-args "--allow-paths /tmp --evm-version byzantium"`)
	rootCmd.Flags().String("solc-remaps", "",
		"add import remappings, e.g. @openzeppelin/=node_modules/@openzeppelin/")
	rootCmd.Flags().Bool("solc-disable-warnings", false,
		"disable solc warnings")
	rootCmd.Flags().Bool("solc-standard-json", false,
		"compile all specified targets in a single compilation using solc standard json")

	// Vyper options
	rootCmd.Flags().String("vyper", "",
		"vyper path")

	// Framework options
	rootCmd.Flags().String("truffle-version", "",
		"use a specific truffle version (with npx)")
	rootCmd.Flags().Bool("embark-overwrite-config", false,
		"install the embark contract export plugin and add it to embark.json")
	rootCmd.Flags().String("etherlime-compile-arguments", "",
		"add arbitrary arguments to etherlime compile")
	rootCmd.Flags().String("etherscan-apikey", "",
		"Etherscan API key (the ETHERSCAN_API_KEY environment variable is the fallback)")
	rootCmd.Flags().Bool("npx-disable", false,
		"do not use npx to invoke node-based frameworks")

	// Export options
	rootCmd.Flags().String("export-dir", "",
		fmt.Sprintf("export directory (unless a config file is provided, default is %q)", compilation.DefaultExportDirectory))
	rootCmd.Flags().String("export-format", "",
		fmt.Sprintf("export the compilation in the given format, one of: %v", exports.SupportedFormats()))
	rootCmd.Flags().String("export-formats", "",
		"comma-separated list of export formats")
	rootCmd.Flags().String("export-zip", "",
		"export the archive document of every project to a zip file at the given path")
	rootCmd.Flags().String("export-zip-type", "",
		fmt.Sprintf("zip compression type, stored or deflated (default is %q)", exports.DefaultZipMethod))

	// Output options
	rootCmd.Flags().Bool("print-filenames", false,
		"print the absolute/relative/short/used views of every contract filename")

	return nil
}

// updateCompilationConfigWithRootFlags will update the given compilationConfig with any CLI arguments that were
// provided to the root command
func updateCompilationConfigWithRootFlags(cmd *cobra.Command, compilationConfig *compilation.CompilationConfig) error {
	var err error

	// Update the forced framework
	if cmd.Flags().Changed("compile-force-framework") {
		compilationConfig.ForceFramework, err = cmd.Flags().GetString("compile-force-framework")
		if err != nil {
			return err
		}
	}

	// Update metadata removal
	if cmd.Flags().Changed("compile-remove-metadata") {
		compilationConfig.RemoveMetadata, err = cmd.Flags().GetBool("compile-remove-metadata")
		if err != nil {
			return err
		}
	}

	// Update the custom build command
	if cmd.Flags().Changed("compile-custom-build") {
		compilationConfig.CustomBuild, err = cmd.Flags().GetString("compile-custom-build")
		if err != nil {
			return err
		}
	}

	// Update build skipping
	if cmd.Flags().Changed("ignore-compile") {
		compilationConfig.IgnoreCompile, err = cmd.Flags().GetBool("ignore-compile")
		if err != nil {
			return err
		}
	}

	// Update compile-everything requests
	if cmd.Flags().Changed("compile-all") {
		compilationConfig.CompileAll, err = cmd.Flags().GetBool("compile-all")
		if err != nil {
			return err
		}
	}

	// Update the linker library addresses
	if cmd.Flags().Changed("compile-libraries") {
		compilationConfig.Libraries, err = cmd.Flags().GetString("compile-libraries")
		if err != nil {
			return err
		}
	}

	// Update the build directory override
	if cmd.Flags().Changed("compile-build-directory") {
		compilationConfig.BuildDirectory, err = cmd.Flags().GetString("compile-build-directory")
		if err != nil {
			return err
		}
	}

	// Update the solc path
	if cmd.Flags().Changed("solc") {
		compilationConfig.SolcPath, err = cmd.Flags().GetString("solc")
		if err != nil {
			return err
		}
	}

	// Update the pinned solc version
	if cmd.Flags().Changed("solc-solcs-select") {
		compilationConfig.SolcVersion, err = cmd.Flags().GetString("solc-solcs-select")
		if err != nil {
			return err
		}
	}

	// Update the extra solc arguments
	if cmd.Flags().Changed("solc-args") {
		compilationConfig.SolcArgs, err = cmd.Flags().GetString("solc-args")
		if err != nil {
			return err
		}
	}

	// Update the import remappings
	if cmd.Flags().Changed("solc-remaps") {
		compilationConfig.SolcRemaps, err = cmd.Flags().GetString("solc-remaps")
		if err != nil {
			return err
		}
	}

	// Update solc warning suppression
	if cmd.Flags().Changed("solc-disable-warnings") {
		compilationConfig.SolcDisableWarnings, err = cmd.Flags().GetBool("solc-disable-warnings")
		if err != nil {
			return err
		}
	}

	// Update standard-JSON aggregation
	if cmd.Flags().Changed("solc-standard-json") {
		compilationConfig.SolcStandardJSON, err = cmd.Flags().GetBool("solc-standard-json")
		if err != nil {
			return err
		}
	}

	// Update the vyper path
	if cmd.Flags().Changed("vyper") {
		compilationConfig.VyperPath, err = cmd.Flags().GetString("vyper")
		if err != nil {
			return err
		}
	}

	// Update the pinned truffle version
	if cmd.Flags().Changed("truffle-version") {
		compilationConfig.TruffleVersion, err = cmd.Flags().GetString("truffle-version")
		if err != nil {
			return err
		}
	}

	// Update embark config overwriting
	if cmd.Flags().Changed("embark-overwrite-config") {
		compilationConfig.EmbarkOverwriteConfig, err = cmd.Flags().GetBool("embark-overwrite-config")
		if err != nil {
			return err
		}
	}

	// Update the extra etherlime arguments
	if cmd.Flags().Changed("etherlime-compile-arguments") {
		compilationConfig.EtherlimeCompileArguments, err = cmd.Flags().GetString("etherlime-compile-arguments")
		if err != nil {
			return err
		}
	}

	// Update the Etherscan API key
	if cmd.Flags().Changed("etherscan-apikey") {
		compilationConfig.EtherscanAPIKey, err = cmd.Flags().GetString("etherscan-apikey")
		if err != nil {
			return err
		}
	}

	// Update npx disabling
	if cmd.Flags().Changed("npx-disable") {
		compilationConfig.NpxDisable, err = cmd.Flags().GetBool("npx-disable")
		if err != nil {
			return err
		}
	}

	// Update the export directory
	if cmd.Flags().Changed("export-dir") {
		compilationConfig.ExportDir, err = cmd.Flags().GetString("export-dir")
		if err != nil {
			return err
		}
	}

	// Update the single export format
	if cmd.Flags().Changed("export-format") {
		compilationConfig.ExportFormat, err = cmd.Flags().GetString("export-format")
		if err != nil {
			return err
		}
	}

	// Update the export format list
	if cmd.Flags().Changed("export-formats") {
		compilationConfig.ExportFormats, err = cmd.Flags().GetString("export-formats")
		if err != nil {
			return err
		}
	}

	// Update the zip export path
	if cmd.Flags().Changed("export-zip") {
		compilationConfig.ExportZip, err = cmd.Flags().GetString("export-zip")
		if err != nil {
			return err
		}
	}

	// Update the zip compression type
	if cmd.Flags().Changed("export-zip-type") {
		compilationConfig.ExportZipType, err = cmd.Flags().GetString("export-zip-type")
		if err != nil {
			return err
		}
	}

	// Update filename printing
	if cmd.Flags().Changed("print-filenames") {
		compilationConfig.PrintFilenames, err = cmd.Flags().GetBool("print-filenames")
		if err != nil {
			return err
		}
	}

	return nil
}
