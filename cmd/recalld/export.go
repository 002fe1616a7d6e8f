package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/engine"
)

var (
	exportSessionID string
	exportOutput    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export conversation history as JSON",
	Long: `Export cached conversation turns, optionally restricted to one
session, as a JSON document suitable for re-import.

Examples:
  recalld export -o conversations.json
  recalld export --session support-42`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			data, err := eng.Cache.Export(exportSessionID)
			if err != nil {
				return err
			}
			if exportOutput == "" || exportOutput == "-" {
				fmt.Println(string(data))
				return nil
			}
			return os.WriteFile(exportOutput, data, 0o600)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a conversation export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			imported, err := eng.Cache.Import(data)
			if err != nil {
				return err
			}
			fmt.Printf("imported %d turns\n", imported)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSessionID, "session", "", "restrict export to one session")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
}
