package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/engine"
	"github.com/fyrsmithlabs/recalld/internal/orchestrator"
)

var askSessionID string

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask the engine a question",
	Long: `Answer a question against the local engine and print the response.

Examples:
  recalld ask "what does the startup plan cost?"
  recalld ask --session support-42 "how do I reset my password?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *engine.Engine) error {
			resp, err := eng.Ask(ctx, orchestrator.Request{
				SessionID: askSessionID,
				Query:     args[0],
			})
			if err != nil {
				return err
			}
			return printJSON(resp)
		})
	},
}

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "default", "conversation session id")
}
