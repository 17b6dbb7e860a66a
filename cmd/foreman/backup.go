package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"foreman/internal/backup"
	"foreman/internal/datadir"
)

var backupOutput string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up and restore the vault database",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup archive of the vault and config",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := backupOutput
		if out == "" {
			// Default into the data directory's backups folder.
			dd, err := datadir.New("")
			if err == nil && dd.EnsureDirs() == nil {
				out = filepath.Join(dd.BackupDir(),
					fmt.Sprintf("foreman-backup-%s.tar.gz", time.Now().Format("20060102-150405")))
			}
		}

		result, err := backup.Create(context.Background(), backup.Options{
			ConfigPath: cfgFile,
			OutputPath: out,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%d bytes) in %s\n", result.ArchivePath, result.Size, result.Duration.Round(time.Millisecond))
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "Show the manifest of a backup archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, err := backup.List(args[0])
		if err != nil {
			return err
		}
		return printJSON(manifest)
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <archive> <dest-dir>",
	Short: "Restore a backup archive into a directory",
	Long: `Restore extracts the vault database and config from an archive into
the given directory. Existing files are never overwritten; point the
server's config at the restored files to use them.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := backup.Restore(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Restored database to %s\n", result.DatabasePath)
		if result.ConfigPath != "" {
			fmt.Printf("Restored config to %s\n", result.ConfigPath)
		}
		return nil
	},
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupOutput, "output", "", "archive output path")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
}
