package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlasbridge/atlasbridge/internal/policy"
)

var policyPath string

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Validate and inspect the autopilot policy",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the policy file and print its hash",
	Long: `Load the policy, validate it, and print its canonical hash. The hash
is recorded on every decision, so pinning it lets audits prove which policy
version produced a given auto-reply. A missing file validates against the
built-in conservative default.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := policyPath
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.PolicyFilePath()
		}
		p, err := policy.Load(path)
		if err != nil {
			return err
		}
		fmt.Printf("✅ policy valid: %s (version %s)\n", p.Name, p.PolicyVersion)
		fmt.Printf("   mode:  %s\n", p.AutonomyMode)
		fmt.Printf("   rules: %d\n", len(p.Rules))
		fmt.Printf("   hash:  %s\n", p.Hash())
		return nil
	},
}

func init() {
	policyCheckCmd.Flags().StringVar(&policyPath, "policy", "", "Policy file path (default: configured policy.yaml)")
	policyCmd.AddCommand(policyCheckCmd)
	rootCmd.AddCommand(policyCmd)
}
