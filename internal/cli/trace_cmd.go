package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atlasbridge/atlasbridge/internal/trace"
)

var (
	tracePathFlag  string
	traceTailCount int
	traceMaxErrors int
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect the autopilot decision trace",
}

var traceIntegrityCmd = &cobra.Command{
	Use:   "integrity-check",
	Short: "Verify the hash chain of the decision trace",
	Long: `Walk the decision trace and verify every entry's hash and chain link.
Exits non-zero when any violation is found.

  atlasbridge trace integrity-check
  atlasbridge trace integrity-check --path /path/to/trace.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveTracePath()
		if err != nil {
			return err
		}
		ok, violations := trace.VerifyIntegrity(path)
		if ok {
			fmt.Printf("✅ trace OK: %s\n", path)
			return nil
		}
		fmt.Fprintf(os.Stderr, "❌ trace integrity violated: %s\n", path)
		shown := violations
		if len(shown) > traceMaxErrors {
			shown = shown[:traceMaxErrors]
		}
		for _, v := range shown {
			fmt.Fprintf(os.Stderr, "  %s\n", v)
		}
		if len(violations) > len(shown) {
			fmt.Fprintf(os.Stderr, "  ... and %d more\n", len(violations)-len(shown))
		}
		os.Exit(1)
		return nil
	},
}

var traceTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent trace entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveTracePath()
		if err != nil {
			return err
		}
		tr, err := trace.New(path, 0)
		if err != nil {
			return err
		}
		entries := tr.Tail(traceTailCount)
		if len(entries) == 0 {
			fmt.Println("no trace entries")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-14s prompt=%v rule=%v mode=%v\n",
				e["action_type"], e["prompt_id"], e["matched_rule_id"], e["autonomy_mode"])
		}
		return nil
	},
}

func resolveTracePath() (string, error) {
	if tracePathFlag != "" {
		return tracePathFlag, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.TracePath(), nil
}

func init() {
	traceCmd.PersistentFlags().StringVar(&tracePathFlag, "path", "", "Trace file path (default: from config)")
	traceIntegrityCmd.Flags().IntVar(&traceMaxErrors, "max-errors", 10, "Maximum violations to print")
	traceTailCmd.Flags().IntVarP(&traceTailCount, "count", "n", 10, "Number of entries to show")
	traceCmd.AddCommand(traceIntegrityCmd)
	traceCmd.AddCommand(traceTailCmd)
	rootCmd.AddCommand(traceCmd)
}
