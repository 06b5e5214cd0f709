package main

import (
	"strings"

	"JarvisChat/internal/chatbot"

	"github.com/spf13/cobra"
)

var (
	searchTopK     int
	searchCategory string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Long: `Search the knowledge base and print matching chunks in the order the
backend ranked them. --top-k is clamped to 1..20.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cb, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer cb.Close()

		if cmd.Flags().Changed("category") {
			cb.Session().SetCategoryFilter(searchCategory)
		}

		in := chatbot.Intent{Kind: chatbot.IntentSearch, Text: strings.Join(args, " ")}
		if cmd.Flags().Changed("top-k") {
			k := searchTopK
			in.TopK = &k
		}

		res := cb.Dispatch(cmd.Context(), in)
		presenter(cmd).RenderSearch(res.Search, res.Err)
		return res.Err
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "Number of results (default from config)")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "Restrict the search to a category")
	rootCmd.AddCommand(searchCmd)
}
