package main

import (
	"fmt"
	"strings"

	"JarvisChat/internal/chatbot"
	"JarvisChat/internal/conversation"
	"JarvisChat/internal/session"

	"github.com/spf13/cobra"
)

var (
	askNoKB     bool
	askCategory string
)

// askCmd runs one chat round-trip and prints the reply
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cb, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer cb.Close()

		ctx := cmd.Context()
		if res := cb.Dispatch(ctx, chatbot.Intent{Kind: chatbot.IntentRefreshHealth}); res.Err != nil {
			return fmt.Errorf("backend unavailable: %s", conversation.ErrorMessage(res.Err))
		}

		if askNoKB {
			cb.Session().SetUseKnowledgeBase(false)
		}
		if cmd.Flags().Changed("category") {
			cb.Session().SetCategoryFilter(askCategory)
		}

		res := cb.Dispatch(ctx, chatbot.Intent{Kind: chatbot.IntentSubmit, Text: strings.Join(args, " ")})
		if res.Err != nil {
			return fmt.Errorf("ask failed: %w", res.Err)
		}
		if res.Exchange != nil && res.Exchange.Failure != nil {
			return fmt.Errorf("ask failed: %s", conversation.ErrorMessage(res.Exchange.Failure))
		}

		presenter(cmd).RenderTranscript([]session.Turn{res.Exchange.Assistant})
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askNoKB, "no-kb", false, "Answer without knowledge base retrieval")
	askCmd.Flags().StringVar(&askCategory, "category", "", "Restrict retrieval to a category")
	rootCmd.AddCommand(askCmd)
}
