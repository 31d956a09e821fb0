package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/plumb/pkg/config"
	"github.com/odvcencio/plumb/pkg/object"
	"github.com/odvcencio/plumb/pkg/repo"
)

var repoPath string

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:   "plumb",
		Short: "Inspect the raw object store of a Git repository",
		Long: "plumb decodes what is actually on disk: loose objects, pack files,\n" +
			"pack indexes, and refs. It never writes to the repository it reads.",
	}
	root.PersistentFlags().StringVarP(&repoPath, "repo", "r", ".", "repository to inspect")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newRefsCmd())
	root.AddCommand(newPackCmd())
	root.AddCommand(newIdxCmd())
	root.AddCommand(newWatchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "plumb 0.1.0-dev")
		},
	}
}

// openRepo loads configuration and opens the target repository with
// the configured limits applied.
func openRepo() (*repo.Repo, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, err
	}
	if !cfg.Color {
		color.NoColor = true
	}
	r, err := repo.Open(repoPath, object.WithDeltaDepthLimit(cfg.DeltaDepthLimit))
	if err != nil {
		return nil, config.Config{}, err
	}
	return r, cfg, nil
}
