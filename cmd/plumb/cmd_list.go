package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/plumb/pkg/repo"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "list [loose|packs|refs|all]",
		Short:     "List the repository's storage tree",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"loose", "packs", "refs", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			section := "all"
			if len(args) == 1 {
				section = args[0]
			}

			r, _, err := openRepo()
			if err != nil {
				return err
			}
			tree, err := r.ObjectTree()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			heading := color.New(color.Bold)

			if section == "all" || section == "loose" {
				heading.Fprintln(out, "objects (loose)")
				fmt.Fprintf(out, "  %d objects in %d shards, %d bytes on disk\n",
					tree.Loose.Count, tree.Loose.Shards, tree.Loose.TotalSize)
				for _, shard := range tree.LooseShards {
					fmt.Fprintf(out, "  %s/  %d\n", shard.Prefix, shard.Count)
				}
			}

			if section == "all" || section == "packs" {
				heading.Fprintln(out, "objects/pack")
				if len(tree.Packs) == 0 {
					fmt.Fprintln(out, "  (none)")
				}
				for _, g := range tree.Packs {
					companions := ""
					if g.RevPath != "" {
						companions += " +rev"
					}
					if g.MtimesPath != "" {
						companions += " +mtimes"
					}
					fmt.Fprintf(out, "  %s%s\n", filepath.Base(g.PackPath), companions)
				}
			}

			if section == "all" || section == "refs" {
				heading.Fprintln(out, "refs")
				printRefs(out, tree.Refs)
				if tree.HeadTarget != "" {
					fmt.Fprintf(out, "  HEAD -> %s\n", tree.HeadTarget)
				} else if tree.HeadID != "" {
					fmt.Fprintf(out, "  HEAD (detached) %s\n", tree.HeadID)
				}
				if tree.PackedRefs {
					fmt.Fprintln(out, "  packed-refs present")
				}
				if tree.Stash {
					fmt.Fprintln(out, "  stash present")
				}
			}
			return nil
		},
	}
}

func printRefs(out io.Writer, refs []repo.Ref) {
	dim := color.New(color.Faint)
	for _, ref := range refs {
		marker := ""
		if ref.Packed {
			marker = " (packed)"
		}
		fmt.Fprintf(out, "  %s %s", ref.ID.Short(), ref.Name)
		dim.Fprintln(out, marker)
	}
}
