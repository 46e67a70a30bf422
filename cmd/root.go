package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/crytic/crytic-compile-go/cmd/exitcodes"
	"github.com/crytic/crytic-compile-go/compilation"
	"github.com/crytic/crytic-compile-go/compilation/exports"
	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"github.com/crytic/crytic-compile-go/logging/colors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cmdLogger is the logger used by the command package. It is live from process start so that command
// initialization failures are reported even before the global logger is configured.
var cmdLogger = logging.NewLogger(zerolog.InfoLevel)

// rootCmd represents the root command, which compiles every target given on the command line. Compiling is the
// whole point of the tool, so the root command carries it rather than a subcommand.
var rootCmd = &cobra.Command{
	Use:   "crytic-compile [targets]...",
	Short: "Compile smart contracts through their native frameworks",
	Long: `crytic-compile compiles smart contract projects by detecting the framework that
built them (foundry, hardhat, truffle, brownie, ...) and invoking it, then
normalizes the resulting artifacts into one representation that can be
exported, archived, or consumed as a library. Targets may be project
directories, single source files, glob patterns, exported archives, or
addresses of contracts verified on Etherscan or Sourcify.`,
	Args:              cmdValidateRootArgs,
	ValidArgsFunction: cmdValidRootArgs,
	RunE:              cmdRunRoot,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the root command
	err := addRootFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the root command", err)
	}
}

// Execute provides an exportable function to run the command line interface.
func Execute() error {
	return rootCmd.Execute()
}

// cmdValidRootArgs will return which flags and sub-commands are valid for dynamic completion for the root command
func cmdValidRootArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Gather a list of flags that are available to be used in the current command but have not been used yet
	var unusedFlags []string

	// Examine all the flags, and add any flags that have not been set in the current command line
	// to a list of unused flags
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			// When adding a flag to a command, include the "--" prefix to indicate that it is a flag
			// and not a positional argument.
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})

	// Targets are filesystem paths, so file completion stays enabled alongside the unused flags.
	return unusedFlags, cobra.ShellCompDirectiveDefault
}

// cmdValidateRootArgs makes sure that at least one target was provided to the root command
func cmdValidateRootArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
		err = fmt.Errorf("crytic-compile requires at least one target: a project directory, source file, glob pattern, archive, or contract address")
		cmdLogger.Error("Failed to validate args to the root command", err)
		return err
	}
	return nil
}

// cmdRunRoot executes the CLI root command and navigates through the following possibilities:
// #1: We will search for either a custom config file (via --config-file) or the default
// (crytic_compile.config.json). If we find it, read it. If we can't read it, throw an error.
// #2: If a custom file was provided (--config-file was used), and we can't find the file, throw an error.
// #3: If crytic_compile.config.json can't be found, use the default configuration.
func cmdRunRoot(cmd *cobra.Command, args []string) error {
	var compilationConfig *compilation.CompilationConfig

	// Enable console output for the component loggers. Library consumers leave this disabled; the CLI wants the
	// platform adapters' progress and warnings on screen.
	logging.GlobalLogger.SetLevel(zerolog.InfoLevel)

	// Check to see if --config-file flag was used and store the value of --config-file flag
	configFlagUsed := cmd.Flags().Changed("config-file")
	configPath, err := cmd.Flags().GetString("config-file")
	if err != nil {
		cmdLogger.Error("Failed to run the root command", err)
		return err
	}

	// If --config-file was not used, look for `crytic_compile.config.json` in the current work directory
	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			cmdLogger.Error("Failed to run the root command", err)
			return err
		}
		configPath = filepath.Join(workingDirectory, compilation.DefaultConfigFileName)
	}

	// Check to see if the file exists at configPath
	_, existenceError := os.Stat(configPath)

	// Possibility #1: File was found
	if existenceError == nil {
		// Try to read the configuration file and throw an error if something goes wrong
		cmdLogger.Info("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		compilationConfig, err = compilation.LoadCompilationConfig(configPath)
		if err != nil {
			cmdLogger.Error("Failed to run the root command", err)
			return err
		}
	}

	// Possibility #2: If the --config-file flag was used, and we couldn't find the file, we'll throw an error
	if configFlagUsed && existenceError != nil {
		cmdLogger.Error("Failed to run the root command", existenceError)
		return existenceError
	}

	// Possibility #3: --config-file flag was not used and crytic_compile.config.json was not found, so every
	// option starts from its default
	if !configFlagUsed && existenceError != nil {
		compilationConfig = compilation.DefaultCompilationConfig()
	}

	// Update the compilation configuration given whatever flags were set using the CLI
	err = updateCompilationConfigWithRootFlags(cmd, compilationConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the root command", err)
		return err
	}

	// Compile every target. A single target may expand into several projects (glob patterns, zip archives), so
	// the results accumulate into one list.
	var projects []*types.Project
	for _, target := range args {
		compiled, compileErr := compilation.Compile(target, compilationConfig)
		if compileErr != nil {
			cmdLogger.Error("Failed to compile target: "+target, compileErr)
			return exitcodes.NewErrorWithExitCode(compileErr, exitcodes.ExitCodeCompilationFailure)
		}
		projects = append(projects, compiled...)
	}

	// Perform the post-compilation tasks for each project.
	printedFilenames := make(map[string]struct{})
	for _, project := range projects {
		if compilationConfig.PrintFilenames {
			printProjectFilenames(project, printedFilenames)
		}

		for _, format := range compilationConfig.ExportFormatList() {
			exportedPaths, exportErr := exports.Export(project, format, compilationConfig.ExportDirectory())
			if exportErr != nil {
				cmdLogger.Error("Failed to export the compilation", exportErr)
				return exportErr
			}
			for _, exportedPath := range exportedPaths {
				cmdLogger.Info("Exported the ", colors.Bold, format, colors.Reset, " format to ", exportedPath)
			}
		}
	}

	// Pack the archive document of every project into one zip file, when requested.
	if compilationConfig.ExportZip != "" {
		err = exports.ExportZip(projects, compilationConfig.ExportZip, compilationConfig.ExportZipType)
		if err != nil {
			cmdLogger.Error("Failed to export the compilations to a zip file", err)
			return err
		}
		cmdLogger.Info("Exported ", len(projects), " project(s) to ", colors.Bold, compilationConfig.ExportZip, colors.Reset)
	}

	// When the build step was skipped, report whether the parsed artifacts differ from the previous run. Stale
	// artifacts are otherwise easy to miss.
	if compilationConfig.IgnoreCompile {
		compilation.NotifyArtifactHashStatus(projects, compilationConfig.ExportDirectory(), cmdLogger)
	}

	return nil
}

// printProjectFilenames writes the four views of every contract's filename to stdout, skipping contract/file pairs
// already printed for an earlier project.
func printProjectFilenames(project *types.Project, printed map[string]struct{}) {
	for _, contractName := range project.ContractNames() {
		filename, ok := project.FilenameOfContract(contractName)
		if !ok {
			continue
		}
		key := contractName + " - " + filename.Absolute
		if _, duplicate := printed[key]; duplicate {
			continue
		}
		printed[key] = struct{}{}
		fmt.Printf("%s ->\n", contractName)
		fmt.Printf("\tAbsolute: %s\n", filename.Absolute)
		fmt.Printf("\tRelative: %s\n", filename.Relative)
		fmt.Printf("\tShort: %s\n", filename.Short)
		fmt.Printf("\tUsed: %s\n", filename.Used)
	}
}
