package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newBranchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "branches",
		Short: "List branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			branches, err := ws.eng.ListBranches()
			if err != nil {
				return err
			}
			current, _ := ws.eng.CurrentBranch()

			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen).SprintFunc()
			for _, name := range branches {
				if name == current {
					fmt.Fprintf(out, "* %s\n", green(name))
					continue
				}
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
}
