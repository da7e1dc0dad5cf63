package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/easelhq/framegit/pkg/repo"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show staged changes against the current commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			st, err := ws.eng.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "On branch %s\n", st.Branch)

			paths := make([]string, 0, len(st.Entries))
			for path, state := range st.Entries {
				if state != repo.StateUnchanged {
					paths = append(paths, path)
				}
			}
			if len(paths) == 0 {
				fmt.Fprintln(out, "nothing staged for commit")
				return nil
			}
			sort.Strings(paths)

			green := color.New(color.FgGreen).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintln(out, "Changes staged for commit:")
			for _, path := range paths {
				switch st.Entries[path] {
				case repo.StateDeleted:
					fmt.Fprintf(out, "  %s %s\n", red("deleted: "), path)
				case repo.StateAdded:
					fmt.Fprintf(out, "  %s %s\n", green("added:   "), path)
				default:
					fmt.Fprintf(out, "  %s %s\n", green("modified:"), path)
				}
			}
			return nil
		},
	}
}
