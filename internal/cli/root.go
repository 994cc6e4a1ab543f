package cli

import (
	"github.com/spf13/cobra"

	"github.com/atlasbridge/atlasbridge/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "atlasbridge",
	Short: "AtlasBridge - Governance plane for AI coding-agent sessions",
	Long: `AtlasBridge supervises AI coding-agent CLI sessions: it detects the
prompts an agent raises, classifies them, evaluates a deterministic policy,
and either relays the prompt to a human or answers it under an explicit
autonomy mode. Every decision lands in a hash-chained trace and a
tamper-evident audit ledger.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: ~/.atlasbridge/config.yaml)")
}

// loadConfig resolves the active config, honoring the --config flag.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.LoadOrDefault(path)
}

func Execute() error {
	return rootCmd.Execute()
}
