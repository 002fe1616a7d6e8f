package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/engine"
	"github.com/fyrsmithlabs/recalld/internal/knowledge"
)

var (
	knowledgeCategory   string
	knowledgeTags       []string
	knowledgeConfidence float64
	knowledgeImportance float64
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the knowledge store",
}

var knowledgeAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a knowledge entry",
	Long: `Add an entry to the knowledge store.

Examples:
  recalld knowledge add "Startup plan: $99/month" --category pricing --confidence 0.9
  recalld knowledge add "Support hours: 9-17 CET" --category services`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			entry := &knowledge.Entry{
				Content:    args[0],
				Category:   knowledge.Category(knowledgeCategory),
				Tags:       knowledgeTags,
				Confidence: knowledgeConfidence,
				Importance: knowledgeImportance,
				Source:     knowledge.SourceManual,
			}
			if err := eng.Store.Put(ctx, entry); err != nil {
				return err
			}
			fmt.Println(entry.ID)
			return nil
		})
	},
}

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge entries in a category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			entries := eng.Store.ListByCategory(knowledge.Category(knowledgeCategory))
			for _, e := range entries {
				fmt.Printf("%s  conf=%.2f  imp=%.2f  %s\n", e.ID, e.Confidence, e.Importance, e.Content)
			}
			fmt.Printf("%d entries\n", len(entries))
			return nil
		})
	},
}

var knowledgeRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a knowledge entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			return eng.Store.Delete(ctx, args[0])
		})
	},
}

var knowledgeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			return printJSON(eng.Store.Stats())
		})
	},
}

func init() {
	knowledgeAddCmd.Flags().StringVar(&knowledgeCategory, "category", "general", "entry category")
	knowledgeAddCmd.Flags().StringSliceVar(&knowledgeTags, "tags", nil, "entry tags")
	knowledgeAddCmd.Flags().Float64Var(&knowledgeConfidence, "confidence", 0.8, "entry confidence in [0, 1]")
	knowledgeAddCmd.Flags().Float64Var(&knowledgeImportance, "importance", 0.5, "entry importance in [0, 1]")
	knowledgeListCmd.Flags().StringVar(&knowledgeCategory, "category", "general", "category to list")

	knowledgeCmd.AddCommand(knowledgeAddCmd)
	knowledgeCmd.AddCommand(knowledgeListCmd)
	knowledgeCmd.AddCommand(knowledgeRmCmd)
	knowledgeCmd.AddCommand(knowledgeStatsCmd)
}
