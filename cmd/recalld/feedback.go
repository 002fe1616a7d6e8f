package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/engine"
)

var feedbackComments string

var feedbackCmd = &cobra.Command{
	Use:   "feedback <turn-id> <rating>",
	Short: "Rate a conversation turn (1-5)",
	Long: `Apply a user rating to a recorded turn. Ratings of 4 or 5 promote
the answer into durable knowledge; 1 or 2 suppress it from future use.

Examples:
  recalld feedback 01J8ZQ4X2M3N 5
  recalld feedback 01J8ZQ4X2M3N 1 --comments "wrong price"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("rating must be a number: %w", err)
		}
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			if err := eng.Rate(ctx, args[0], rating, feedbackComments); err != nil {
				return err
			}
			fmt.Println("feedback recorded")
			return nil
		})
	},
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackComments, "comments", "", "optional free-form comments")
}
