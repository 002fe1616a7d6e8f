package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/engine"
)

var restoreLatest bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage knowledge snapshots",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a knowledge snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			snap, err := eng.Backup.Snapshot(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s  (%d entries)\n", snap.ID, snap.EntryCount)
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			ids, err := eng.Backup.List()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		})
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [snapshot-id]",
	Short: "Restore the knowledge store from a snapshot",
	Long: `Replace the knowledge store contents with a snapshot. The snapshot
is validated in full before anything changes.

Examples:
  recalld backup restore 01J8ZQ4X2M3N
  recalld backup restore --latest`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !restoreLatest {
			return fmt.Errorf("pass a snapshot id or --latest")
		}
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			if restoreLatest {
				return eng.Backup.RestoreLatest(ctx)
			}
			return eng.Backup.Restore(ctx, args[0])
		})
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete snapshots beyond the retention count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			removed, err := eng.Backup.Prune(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d snapshots\n", removed)
			return nil
		})
	},
}

var backupInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show backup storage health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			return printJSON(eng.Backup.Info(ctx))
		})
	},
}

func init() {
	backupRestoreCmd.Flags().BoolVar(&restoreLatest, "latest", false, "restore the most recent snapshot")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupPruneCmd)
	backupCmd.AddCommand(backupInfoCmd)
}
