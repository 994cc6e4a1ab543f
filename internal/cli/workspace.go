package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atlasbridge/atlasbridge/internal/audit"
	"github.com/atlasbridge/atlasbridge/internal/store"
)

var (
	trustTTL        string
	trustTTLSeconds int
	trustActor      string

	postureProfile   string
	postureAutonomy  string
	postureModelTier string
	postureAllowlist string
	postureNotes     string

	scanMaxFiles int
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspace trust and governance posture",
	Long: `Trust is consent for local file/tool access. Posture is the explicit
governance binding (profile, autonomy default, model tier). Trust never
implicitly expands permissions; posture feeds policy evaluation.`,
}

// withStore opens the configured database and hands it to fn.
func withStore(fn func(*store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func workspaceArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

var workspaceTrustCmd = &cobra.Command{
	Use:   "trust [path]",
	Short: "Grant trust to a workspace (defaults to the current directory)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := workspaceArg(args)
		return withStore(func(s *store.Store) error {
			ctx := cmd.Context()
			err := s.GrantTrust(ctx, path, store.GrantOptions{
				Actor:      trustActor,
				Channel:    "cli",
				TTL:        trustTTL,
				TTLSeconds: trustTTLSeconds,
			})
			if err != nil {
				return err
			}
			audit.NewWriter(s).WorkspaceTrustChanged(ctx, path, "granted", trustActor, "cli")
			fmt.Printf("✅ workspace trusted: %s\n", path)
			if trustTTL != "" {
				fmt.Printf("   expires in %s\n", trustTTL)
			}
			return nil
		})
	},
}

var workspaceRevokeCmd = &cobra.Command{
	Use:   "revoke [path]",
	Short: "Revoke trust for a workspace (keeps the record for audit)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := workspaceArg(args)
		return withStore(func(s *store.Store) error {
			ctx := cmd.Context()
			if err := s.RevokeTrust(ctx, path); err != nil {
				return err
			}
			audit.NewWriter(s).WorkspaceTrustChanged(ctx, path, "revoked", trustActor, "cli")
			fmt.Printf("✅ workspace trust revoked: %s\n", path)
			return nil
		})
	},
}

var workspaceRemoveCmd = &cobra.Command{
	Use:   "remove [path]",
	Short: "Permanently delete a workspace trust record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := workspaceArg(args)
		return withStore(func(s *store.Store) error {
			deleted, err := s.DeleteWorkspace(cmd.Context(), path)
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Printf("no record for %s\n", path)
				return nil
			}
			fmt.Printf("✅ workspace removed: %s\n", path)
			return nil
		})
	},
}

var workspacePostureCmd = &cobra.Command{
	Use:   "posture [path]",
	Short: "Set the governance posture binding for a workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := workspaceArg(args)
		return withStore(func(s *store.Store) error {
			ctx := cmd.Context()
			rec, err := s.GetWorkspaceStatus(ctx, path)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("workspace %s is not known; run `atlasbridge workspace trust` first", path)
			}
			p := store.Posture{}
			if cmd.Flags().Changed("profile") {
				p.ProfileName = &postureProfile
			}
			if cmd.Flags().Changed("autonomy") {
				p.AutonomyDefault = &postureAutonomy
			}
			if cmd.Flags().Changed("model-tier") {
				p.ModelTier = &postureModelTier
			}
			if cmd.Flags().Changed("tool-allowlist") {
				p.ToolAllowlistProfile = &postureAllowlist
			}
			if cmd.Flags().Changed("notes") {
				p.PostureNotes = &postureNotes
			}
			if err := s.SetPosture(ctx, rec.ID, p); err != nil {
				return err
			}
			fmt.Printf("✅ posture updated for %s\n", path)
			return nil
		})
	},
}

var workspaceScanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Run an advisory risk classification scan on a workspace",
	Long: `Scan the workspace file listing for risk signals (IaC, secrets,
deployment configs) and suggest a posture profile. Advisory only: the scan
never changes trust or posture.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := workspaceArg(args)
		return withStore(func(s *store.Store) error {
			artifact, err := s.ScanWorkspace(cmd.Context(), path, scanMaxFiles)
			if err != nil {
				return err
			}
			fmt.Printf("Scan of %s\n", path)
			fmt.Printf("  ruleset:    %s\n", artifact.RulesetVersion)
			fmt.Printf("  inputs:     %s\n", artifact.InputsHash)
			fmt.Printf("  files:      %d\n", artifact.FileCount)
			fmt.Printf("  risk tags:  %s\n", strings.Join(artifact.RiskTags, ", "))
			if artifact.SuggestedProfile != "" {
				fmt.Printf("  suggested:  %s (advisory; apply with `workspace posture --profile`)\n",
					artifact.SuggestedProfile)
			}
			return nil
		})
	},
}

var workspaceStatusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show the trust and posture record for a workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := workspaceArg(args)
		return withStore(func(s *store.Store) error {
			rec, err := s.GetWorkspaceStatus(cmd.Context(), path)
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Printf("workspace %s is not known\n", path)
				return nil
			}
			printWorkspace(*rec)

			sessions, err := s.SessionsForWorkspace(cmd.Context(), path, 5)
			if err != nil {
				return err
			}
			if len(sessions) > 0 {
				fmt.Println("  recent sessions:")
				for _, sess := range sessions {
					fmt.Printf("    %s  %-8s %s (%s)\n", sess.StartedAt, sess.Status, sess.Tool, sess.ID)
				}
			}
			return nil
		})
	},
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all workspace trust records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.Store) error {
			records, err := s.ListWorkspaces(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no workspaces recorded")
				return nil
			}
			for _, rec := range records {
				state := "untrusted"
				if rec.EffectivelyTrusted() {
					state = "trusted"
				} else if rec.TrustExpired {
					state = "expired"
				}
				fmt.Printf("%-10s %s\n", state, rec.Path)
			}
			return nil
		})
	},
}

func printWorkspace(rec store.WorkspaceRecord) {
	state := "untrusted"
	if rec.EffectivelyTrusted() {
		state = "trusted"
	} else if rec.TrustExpired {
		state = "expired"
	}
	fmt.Printf("Workspace %s\n", rec.Path)
	fmt.Printf("  id:        %s\n", rec.ID)
	fmt.Printf("  trust:     %s\n", state)
	if rec.TrustExpiresAt.Valid {
		fmt.Printf("  expires:   %s\n", rec.TrustExpiresAt.String)
	}
	if rec.GrantedAt.Valid {
		fmt.Printf("  granted:   %s by %s via %s\n", rec.GrantedAt.String, rec.Actor, rec.Channel)
	}
	if rec.RevokedAt.Valid {
		fmt.Printf("  revoked:   %s\n", rec.RevokedAt.String)
	}
	if rec.ProfileName.Valid {
		fmt.Printf("  profile:   %s\n", rec.ProfileName.String)
	}
	if rec.AutonomyDefault.Valid {
		fmt.Printf("  autonomy:  %s\n", rec.AutonomyDefault.String)
	}
	if rec.ModelTier.Valid {
		fmt.Printf("  tier:      %s\n", rec.ModelTier.String)
	}
	if rec.PostureNotes.Valid {
		fmt.Printf("  notes:     %s\n", rec.PostureNotes.String)
	}
}

func init() {
	workspaceTrustCmd.Flags().StringVar(&trustTTL, "ttl", "", "Trust TTL like 30m, 8h, 7d (default: no expiry)")
	workspaceTrustCmd.Flags().IntVar(&trustTTLSeconds, "ttl-seconds", 0, "Trust TTL in seconds (mutually exclusive with --ttl)")
	workspaceTrustCmd.Flags().StringVar(&trustActor, "actor", "cli", "Actor recorded on the grant")

	workspacePostureCmd.Flags().StringVar(&postureProfile, "profile", "", "Posture profile name")
	workspacePostureCmd.Flags().StringVar(&postureAutonomy, "autonomy", "", "Autonomy default: OFF, ASSIST, or FULL")
	workspacePostureCmd.Flags().StringVar(&postureModelTier, "model-tier", "", "Model tier binding")
	workspacePostureCmd.Flags().StringVar(&postureAllowlist, "tool-allowlist", "", "Tool allowlist profile")
	workspacePostureCmd.Flags().StringVar(&postureNotes, "notes", "", "Posture notes")

	workspaceScanCmd.Flags().IntVar(&scanMaxFiles, "max-files", 0, "File listing bound (default 5000)")

	workspaceCmd.AddCommand(workspaceTrustCmd)
	workspaceCmd.AddCommand(workspaceRevokeCmd)
	workspaceCmd.AddCommand(workspaceRemoveCmd)
	workspaceCmd.AddCommand(workspacePostureCmd)
	workspaceCmd.AddCommand(workspaceScanCmd)
	workspaceCmd.AddCommand(workspaceStatusCmd)
	workspaceCmd.AddCommand(workspaceListCmd)
	rootCmd.AddCommand(workspaceCmd)
}
