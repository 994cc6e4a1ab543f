package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlasbridge/atlasbridge/internal/edition"
)

var editionCmd = &cobra.Command{
	Use:   "edition",
	Short: "Show the active edition and feature availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Edition: %s\n\n", edition.Detect())
		for _, f := range edition.ListFeatures() {
			fmt.Printf("  %-20s %-8s (requires %s)\n", f.Name, f.Status(), f.RequiredEdition)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editionCmd)
}
