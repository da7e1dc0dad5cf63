package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/easelhq/framegit/pkg/syncer"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <source-branch> <target-branch>",
		Short: "Show the file-level delta between two branches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			sourceTree, err := ws.eng.TreeAt(args[0])
			if err != nil {
				return err
			}
			targetTree, err := ws.eng.TreeAt(args[1])
			if err != nil {
				return err
			}

			d := syncer.Classify(sourceTree, targetTree)
			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			dmp := diffmatchpatch.New()

			for _, change := range d.Files {
				switch change.Status {
				case syncer.ClassAdded:
					fmt.Fprintf(out, "%s %s\n", green("A"), change.Path)
				case syncer.ClassModified:
					fmt.Fprintf(out, "%s %s\n", "M", change.Path)
					oldEntry, _ := sourceTree.Lookup(change.Path)
					oldContent, err := ws.src.Blob(oldEntry.SHA)
					if err != nil {
						return fmt.Errorf("read %q at %s: %w", change.Path, args[0], err)
					}
					newContent, err := ws.src.Blob(change.SHA)
					if err != nil {
						return fmt.Errorf("read %q at %s: %w", change.Path, args[1], err)
					}
					diffs := dmp.DiffMain(string(oldContent), string(newContent), false)
					diffs = dmp.DiffCleanupSemantic(diffs)
					fmt.Fprintln(out, dmp.DiffPrettyText(diffs))
				}
			}
			for _, path := range d.Deleted {
				fmt.Fprintf(out, "%s %s\n", red("D"), path)
			}
			return nil
		},
	}
}
