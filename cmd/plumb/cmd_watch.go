package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odvcencio/plumb/pkg/watch"
)

func newWatchCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream object-store changes as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cfg, err := openRepo()
			if err != nil {
				return err
			}
			if mode == "" {
				mode = cfg.Watcher
			}

			log := slog.Default()
			var w watch.Watcher
			switch mode {
			case "poll":
				w, err = watch.NewPoller(r.GitDir, cfg.PollInterval.Std(), log)
			default:
				w, err = watch.NewFSWatcher(r.GitDir, watch.DefaultQuietPeriod, log)
			}
			if err != nil {
				return err
			}
			defer w.Close()

			log.Info("watching", "dir", r.GitDir, "mode", mode)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			for {
				select {
				case <-stop:
					return nil
				case <-cmd.Context().Done():
					return nil
				case set, ok := <-w.Changes():
					if !ok {
						return nil
					}
					// Dropping cached resolutions for changed loose
					// objects keeps later shows honest.
					r.Store.Invalidate(set.ObjectIDs()...)
					for _, e := range set.Added {
						log.Info("added", "kind", e.Kind.String(), "name", e.Name)
					}
					for _, e := range set.Modified {
						log.Info("modified", "kind", e.Kind.String(), "name", e.Name)
					}
					for _, e := range set.Removed {
						log.Info("removed", "kind", e.Kind.String(), "name", e.Name)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "watcher mode: fsnotify or poll (default from config)")
	return cmd
}
