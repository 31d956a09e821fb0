package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/plumb/pkg/object"
)

func newIdxCmd() *cobra.Command {
	var showEntries bool

	cmd := &cobra.Command{
		Use:   "idx <file>",
		Short: "Dump a pack index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := object.OpenIndex(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			bold := color.New(color.Bold)
			bold.Fprintf(out, "%s\n", args[0])
			fmt.Fprintf(out, "version %d (%s), %d objects\n",
				idx.Version, idx.Algo(), idx.Count())
			fmt.Fprintf(out, "pack checksum  %s\n", idx.PackChecksum)
			fmt.Fprintf(out, "index checksum %s\n", idx.IndexChecksum)

			// Fan-out population, 16 buckets per row.
			fanout := idx.Fanout()
			fmt.Fprintln(out, "\nfan-out distribution:")
			prev := uint32(0)
			for row := 0; row < 16; row++ {
				var rowTotal uint32
				for col := 0; col < 16; col++ {
					bucket := fanout[row*16+col]
					rowTotal += bucket - prev
					prev = bucket
				}
				fmt.Fprintf(out, "  %x0-%xf: %d\n", row, row, rowTotal)
			}

			if showEntries {
				fmt.Fprintln(out)
				for i := 0; i < idx.Count(); i++ {
					e := idx.EntryAt(i)
					if e.HasCRC {
						fmt.Fprintf(out, "%s %10d crc32 %08x\n", e.ID, e.Offset, e.CRC32)
					} else {
						fmt.Fprintf(out, "%s %10d\n", e.ID, e.Offset)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showEntries, "entries", false, "list every entry")
	return cmd
}
