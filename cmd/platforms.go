package cmd

import (
	"fmt"

	"github.com/crytic/crytic-compile-go/compilation"
	"github.com/spf13/cobra"
)

// platformsCmd represents the platforms command that lists the registered compilation platforms.
var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List the supported compilation platforms",
	Long: `List every registered compilation platform with its detection priority.
Detection probes platforms in ascending priority order and selects the first
one that accepts the target; any listed name is valid for
--compile-force-framework.`,
	Run: func(cmd *cobra.Command, args []string) {
		for _, descriptor := range compilation.PlatformDescriptors() {
			fmt.Printf("%-12s (priority %d)\n", descriptor.Name, descriptor.Priority)
		}
	},
}

func init() {
	rootCmd.AddCommand(platformsCmd)
}
