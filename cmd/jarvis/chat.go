package main

import (
	"JarvisChat/internal/tui"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd)
	},
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the full-screen terminal UI",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cb, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer cb.Close()

		return tui.Run(cmd.Context(), cb)
	},
}

func runChat(cmd *cobra.Command) error {
	cb, err := newBot(cmd)
	if err != nil {
		return err
	}
	defer cb.Close()

	return cb.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), presenter(cmd))
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(tuiCmd)
}
