package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tilecensus.ai/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a census whenever a new tile snapshot appears",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := newLogger("watch")
		if err := os.MkdirAll(cfg.Snapshots.Dir, 0o755); err != nil {
			return err
		}

		idx, err := openIndex(cfg)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		rt, err := buildRuntime(cfg, sourceFor(cfg), newLogger("census"), idx)
		if err != nil {
			return err
		}
		defer rt.Close()

		w, err := watch.New(watch.Config{
			Dir:      cfg.Snapshots.Dir,
			Include:  cfg.Snapshots.Include,
			Exclude:  cfg.Snapshots.Exclude,
			Debounce: cfg.Debounce(),
		}, rt.runner, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return w.Run(ctx)
	},
}
