package cmd

import (
	"github.com/crytic/crytic-compile-go/compilation"
	"github.com/crytic/crytic-compile-go/compilation/types"
	"github.com/crytic/crytic-compile-go/logging"
	"github.com/crytic/crytic-compile-go/logging/colors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cleanCmd represents the clean command, which removes the build artifacts of each target's platform.
var cleanCmd = &cobra.Command{
	Use:   "clean [targets]...",
	Short: "Remove the build artifacts of each target's platform",
	Long: `Detects the platform of each target the same way compilation does, then runs
the platform's own clean operation (e.g. forge clean). With no target, the
current directory is cleaned.`,
	RunE:          cmdRunClean,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Add the force-framework flag so a clean can skip detection, mirroring compilation
	cleanCmd.Flags().String("compile-force-framework", "",
		"force the clean to a given framework (see the platforms subcommand for the list)")

	// Add the clean command to the root command
	rootCmd.AddCommand(cleanCmd)
}

// cmdRunClean executes the CLI clean command, resolving the platform of each target and invoking its clean
// operation.
func cmdRunClean(cmd *cobra.Command, args []string) error {
	// Enable console output for the component loggers, as with compilation.
	logging.GlobalLogger.SetLevel(zerolog.InfoLevel)

	compilationConfig := compilation.DefaultCompilationConfig()
	err := updateCompilationConfigWithRootFlags(cmd, compilationConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the clean command", err)
		return err
	}

	// With no target, clean the current directory.
	targets := args
	if len(targets) == 0 {
		targets = []string{"."}
	}

	for _, target := range targets {
		platformConfigs, detectErr := compilation.DetectPlatform(target, compilationConfig)
		if detectErr != nil {
			cmdLogger.Error("Failed to detect a platform for target: "+target, detectErr)
			return detectErr
		}

		for _, platformConfig := range platformConfigs {
			cmdLogger.Info("Cleaning the ", colors.Bold, platformConfig.Platform(), colors.Reset, " artifacts of ", platformConfig.GetTarget())
			project := types.NewProject(platformConfig.GetTarget(), platformConfig.GetTarget())
			if cleanErr := platformConfig.Clean(project); cleanErr != nil {
				cmdLogger.Error("Failed to clean target: "+target, cleanErr)
				return cleanErr
			}
		}
	}
	return nil
}
