package main

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/odvcencio/plumb/pkg/object"
)

func newShowCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Resolve an object and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := openRepo()
			if err != nil {
				return err
			}

			id := object.ObjectID(args[0])
			obj, err := r.Store.Resolve(id)
			if errors.Is(err, object.ErrIntegrityMismatch) && obj != nil {
				// The object is damaged but decodable; show it and
				// say so.
				color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			} else if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			bold := color.New(color.Bold)
			bold.Fprintf(out, "%s %s\n", obj.Kind, obj.ID)
			fmt.Fprintf(out, "size: %d\n", obj.Size)
			fmt.Fprintf(out, "from: %s\n\n", obj.Provenance)

			if raw {
				_, err := out.Write(obj.Content)
				return err
			}
			return printStructured(out, obj)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print raw content bytes")
	return cmd
}

// printStructured renders a parsed view where the kind has one; a
// parse failure falls back to raw bytes rather than failing the show.
func printStructured(out io.Writer, obj *object.DecodedObject) error {
	switch obj.Kind {
	case object.KindCommit:
		c, err := object.ParseCommit(obj.Content)
		if err != nil {
			break
		}
		fmt.Fprintf(out, "tree      %s\n", c.Tree)
		for _, parent := range c.Parents {
			fmt.Fprintf(out, "parent    %s\n", parent)
		}
		fmt.Fprintf(out, "author    %s  %s\n", c.Author, c.AuthorDate)
		fmt.Fprintf(out, "committer %s  %s\n\n", c.Committer, c.CommitterDate)
		fmt.Fprint(out, c.Message)
		return nil

	case object.KindTag:
		t, err := object.ParseTag(obj.Content)
		if err != nil {
			break
		}
		fmt.Fprintf(out, "object %s (%s)\n", t.Object, t.TargetKind)
		fmt.Fprintf(out, "tag    %s\n", t.Name)
		fmt.Fprintf(out, "tagger %s  %s\n\n", t.Tagger, t.TaggerDate)
		fmt.Fprint(out, t.Message)
		return nil

	case object.KindTree:
		algo, err := obj.ID.Algo()
		if err != nil {
			break
		}
		entries, err := object.ParseTree(obj.Content, algo)
		if err != nil {
			break
		}
		for _, e := range entries {
			suffix := ""
			if e.IsDir() {
				suffix = "/"
			}
			fmt.Fprintf(out, "%-6s %s %s%s\n", e.Mode, e.ID.Short(), e.Name, suffix)
		}
		return nil

	case object.KindBlob:
		if utf8.Valid(obj.Content) {
			_, err := out.Write(obj.Content)
			return err
		}
		fmt.Fprintf(out, "(binary, %d bytes)\n", obj.Size)
		return nil
	}

	_, err := out.Write(obj.Content)
	return err
}
