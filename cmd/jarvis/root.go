package main

import (
	"fmt"

	"JarvisChat/internal/chatbot"
	"JarvisChat/internal/config"
	"JarvisChat/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	baseURL    string
	debug      bool
	noColor    bool
)

// rootCmd runs the interactive chat when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "jarvis",
	Short: "Chat with the JARVIS assistant and manage its knowledge base",
	Long: `jarvis is a terminal client for the JARVIS retrieval-augmented assistant.

It talks to the JARVIS API to chat (optionally grounded in the knowledge
base), search and grow the knowledge base, and report backend health.

Quick Start:
  jarvis                               # interactive chat
  jarvis tui                           # full-screen terminal UI
  jarvis ask "How do I reset the router?"
  jarvis search -k 10 "router reset"
  jarvis ingest --source manual.md --file ./manual.md`,
	Version:       telemetry.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "JARVIS API base URL (overrides config and "+config.EnvBaseURL+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// loadConfig reads the config file and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	cfg.Debug = debug
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newBot builds a ChatBot for one command invocation. Callers must Close it.
func newBot(cmd *cobra.Command) (*chatbot.ChatBot, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cb, err := chatbot.NewChatBot(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chatbot: %w", err)
	}
	return cb, nil
}

func presenter(cmd *cobra.Command) *chatbot.ConsolePresenter {
	return chatbot.NewConsolePresenter(cmd.OutOrStdout(), noColor)
}
