package main

import (
	"errors"
	"fmt"

	"JarvisChat/internal/chatbot"
	"JarvisChat/internal/conversation"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cb, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer cb.Close()

		res := cb.Dispatch(cmd.Context(), chatbot.Intent{Kind: chatbot.IntentStats})
		if res.Err != nil {
			return fmt.Errorf("stats failed: %s", conversation.ErrorMessage(res.Err))
		}
		presenter(cmd).RenderNotice(chatbot.FormatStats(res.Stats))
		return nil
	},
}

// healthCmd exits non-zero when the backend is offline
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the JARVIS API is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cb, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer cb.Close()

		res := cb.Dispatch(cmd.Context(), chatbot.Intent{Kind: chatbot.IntentRefreshHealth})
		presenter(cmd).RenderStatus(res.Connected, res.Health)
		if res.Err != nil {
			return errors.New(conversation.ErrorMessage(res.Err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
}
