package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"JarvisChat/internal/backend"
	"JarvisChat/internal/conversation"
	"JarvisChat/internal/knowledge"

	"github.com/spf13/cobra"
)

var watchCategory string

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest text files as they appear in a directory",
	Long: `Ingest every matching file already in <dir>, then keep ingesting files
that are created or modified there until interrupted. Files whose content has
not changed since their last ingest are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cb, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer cb.Close()

		cfg := cb.Config()
		category := cfg.Knowledge.WatchCategory
		if cmd.Flags().Changed("category") {
			category = watchCategory
		}

		w, err := knowledge.NewWatcher(cb.Knowledge(), knowledge.WatcherOptions{
			Extensions: cfg.Knowledge.WatchExtensions,
			Category:   category,
			MaxBytes:   cfg.Knowledge.MaxFileBytes,
			Logger:     cb.Logger(),
		})
		if err != nil {
			return err
		}
		defer w.Close()

		p := presenter(cmd)
		var mu sync.Mutex

		// the monitor stops before the watcher and bot are closed
		ctx, cancel := context.WithCancel(cmd.Context())
		monitorDone := make(chan struct{})
		defer func() {
			cancel()
			<-monitorDone
		}()
		go func() {
			defer close(monitorDone)
			cb.Monitor().Run(ctx, cb.Session(), cfg.Connectivity.PollInterval, func(connected bool, health *backend.HealthStatus) {
				mu.Lock()
				defer mu.Unlock()
				p.RenderStatus(connected, health)
			})
		}()

		p.RenderNotice(fmt.Sprintf("Watching %s (Ctrl+C to stop)", args[0]))
		return w.Watch(ctx, args[0], func(ev knowledge.WatchEvent) {
			mu.Lock()
			defer mu.Unlock()
			name := filepath.Base(ev.Path)
			switch {
			case ev.Err != nil:
				p.RenderNotice(fmt.Sprintf("%s: %s", name, conversation.ErrorMessage(ev.Err)))
			case ev.Skipped:
				p.RenderNotice(fmt.Sprintf("%s: unchanged, skipped", name))
			case ev.Result != nil:
				p.RenderNotice(fmt.Sprintf("Stored %d chunks from %s.", ev.Result.ChunksCreated, name))
			}
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchCategory, "category", "", "Category for ingested files (default from config)")
	rootCmd.AddCommand(watchCmd)
}
