package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRefsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refs",
		Short: "List references, loose and packed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := openRepo()
			if err != nil {
				return err
			}
			refs, err := r.Refs()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, ref := range refs {
				source := "loose"
				if ref.Packed {
					source = "packed"
				}
				fmt.Fprintf(out, "%s %-7s %s\n", ref.ID, source, ref.Name)
			}

			target, id, err := r.Head()
			if err != nil {
				return nil // no HEAD is not an error for listing
			}
			switch {
			case target != "" && id != "":
				fmt.Fprintf(out, "%s symref  HEAD -> %s\n", id, target)
			case target != "":
				fmt.Fprintf(out, "%-40s symref  HEAD -> %s (unborn)\n", "", target)
			default:
				fmt.Fprintf(out, "%s detached HEAD\n", id)
			}
			return nil
		},
	}
}
