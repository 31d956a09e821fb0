package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/plumb/pkg/object"
)

func newPackCmd() *cobra.Command {
	var algoName string

	cmd := &cobra.Command{
		Use:   "pack <file>",
		Short: "Dump a pack file's header and entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			algo, err := parseAlgo(algoName)
			if err != nil {
				return err
			}
			pack, err := object.OpenPack(args[0], algo)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			bold := color.New(color.Bold)
			bold.Fprintf(out, "%s\n", pack.Path())
			fmt.Fprintf(out, "version %d, %d objects\n",
				pack.Header.Version, pack.Header.NumObjects)

			if checksum, err := pack.VerifyChecksum(); err != nil {
				color.New(color.FgRed).Fprintf(out, "checksum: %v\n", err)
			} else {
				fmt.Fprintf(out, "checksum %s ok\n", checksum)
			}

			fmt.Fprintf(out, "\n%-10s %-10s %-9s %-11s %s\n",
				"offset", "type", "size", "compressed", "delta")
			return pack.Scan(cmd.Context(), func(e *object.RawEntry) error {
				delta := ""
				switch e.Kind {
				case object.EntryOfsDelta:
					delta = fmt.Sprintf("base -%d", e.BaseDistance)
				case object.EntryRefDelta:
					delta = "base " + e.BaseID.Short()
				}
				if e.Kind.IsDelta() {
					if sizes, err := object.ParseDeltaSizes(e.Payload); err == nil {
						delta += fmt.Sprintf(" (%d -> %d)", sizes.BaseSize, sizes.ResultSize)
					}
				}
				fmt.Fprintf(out, "%-10d %-10s %-9d %-11d %s\n",
					e.Offset, e.Kind, e.Size, e.CompressedLen, delta)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&algoName, "algo", "sha1", "digest algorithm: sha1 or sha256")
	return cmd
}

func parseAlgo(name string) (object.HashAlgo, error) {
	switch name {
	case "sha1":
		return object.SHA1, nil
	case "sha256":
		return object.SHA256, nil
	}
	return 0, fmt.Errorf("unknown algorithm %q (want sha1 or sha256)", name)
}
