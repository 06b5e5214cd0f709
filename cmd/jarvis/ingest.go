package main

import (
	"errors"
	"fmt"
	"io"

	"JarvisChat/internal/chatbot"
	"JarvisChat/internal/knowledge"

	"github.com/spf13/cobra"
)

var (
	ingestSource   string
	ingestCategory string
	ingestFile     string
	ingestText     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add a document to the knowledge base",
	Long: `Add a document to the knowledge base. The text comes from --file,
--text or standard input, in that order of preference. --source names the
document; it defaults to the file name when --file is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestFile != "" && ingestText != "" {
			return errors.New("--file and --text are mutually exclusive")
		}

		cb, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer cb.Close()

		maxBytes := cb.Config().Knowledge.MaxFileBytes
		var doc knowledge.Document
		switch {
		case ingestFile != "":
			doc, err = knowledge.ReadDocument(ingestFile, ingestCategory, maxBytes)
			if err != nil {
				return err
			}
			if ingestSource != "" {
				doc.Source = ingestSource
			}
		case ingestText != "":
			doc = knowledge.Document{Text: ingestText, Source: ingestSource, Category: ingestCategory}
		default:
			var in io.Reader = cmd.InOrStdin()
			if maxBytes > 0 {
				in = io.LimitReader(in, maxBytes+1)
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("reading standard input: %w", err)
			}
			if maxBytes > 0 && int64(len(data)) > maxBytes {
				return knowledge.ErrFileTooLarge
			}
			doc = knowledge.Document{Text: string(data), Source: ingestSource, Category: ingestCategory}
		}

		res := cb.Dispatch(cmd.Context(), chatbot.Intent{Kind: chatbot.IntentIngest, Document: doc})
		if res.Err != nil {
			return fmt.Errorf("ingest failed: %w", res.Err)
		}
		presenter(cmd).RenderNotice(res.Notice)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "Document name stored with each chunk")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "Category for the document")
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "Read the document from a file")
	ingestCmd.Flags().StringVar(&ingestText, "text", "", "Document text")
	rootCmd.AddCommand(ingestCmd)
}
