package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atlasbridge/atlasbridge/internal/store"
)

var (
	auditRecentCount int
	archiveOlderThan string
	archiveMaxRows   int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and archive the hash-chained audit ledger",
}

var auditRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.Store) error {
			events, err := s.RecentAuditEvents(cmd.Context(), auditRecentCount)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("no audit events")
				return nil
			}
			for _, ev := range events {
				payload, _ := json.Marshal(ev.Payload)
				fmt.Printf("%s  %-26s %s\n", ev.Timestamp, ev.EventType, payload)
			}
			return nil
		})
	},
}

var auditCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count audit events in the active ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.Store) error {
			n, err := s.CountAuditEvents(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%d audit events\n", n)
			return nil
		})
	},
}

var auditArchiveCmd = &cobra.Command{
	Use:   "archive <archive-path>",
	Short: "Move old audit events into an archive database",
	Long: `Move audit events out of the active ledger into a separate SQLite
archive file. Events are moved, never dropped, and the hash chain of the
remaining events is preserved. Select by age with --older-than, by count
with --max-rows, or both.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if archiveOlderThan == "" && archiveMaxRows == 0 {
			return fmt.Errorf("nothing to archive: pass --older-than and/or --max-rows")
		}
		return withStore(func(s *store.Store) error {
			ctx := cmd.Context()
			total := 0
			if archiveOlderThan != "" {
				d, err := time.ParseDuration(archiveOlderThan)
				if err != nil {
					return fmt.Errorf("invalid --older-than: %w", err)
				}
				cutoff := time.Now().UTC().Add(-d).Format(time.RFC3339Nano)
				n, err := s.ArchiveAuditEvents(ctx, args[0], cutoff)
				if err != nil {
					return err
				}
				total += n
			}
			if archiveMaxRows > 0 {
				n, err := s.ArchiveAuditEventsByCount(ctx, args[0], archiveMaxRows)
				if err != nil {
					return err
				}
				total += n
			}
			fmt.Printf("archived %d events to %s\n", total, args[0])
			return nil
		})
	},
}

func init() {
	auditRecentCmd.Flags().IntVarP(&auditRecentCount, "count", "n", 20, "Number of events to show")
	auditArchiveCmd.Flags().StringVar(&archiveOlderThan, "older-than", "", "Archive events older than this duration (e.g. 720h)")
	auditArchiveCmd.Flags().IntVar(&archiveMaxRows, "max-rows", 0, "Keep at most this many events in the active ledger")

	auditCmd.AddCommand(auditRecentCmd)
	auditCmd.AddCommand(auditCountCmd)
	auditCmd.AddCommand(auditArchiveCmd)
	rootCmd.AddCommand(auditCmd)
}
