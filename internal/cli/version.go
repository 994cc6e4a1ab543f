package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlasbridge/atlasbridge/internal/edition"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print AtlasBridge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("AtlasBridge %s (%s edition)\n", Version, edition.Detect())
		fmt.Printf("  Commit: %s\n", GitCommit)
		fmt.Printf("  Built:  %s\n", BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
