package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the repository mirror in the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			if err := ws.eng.Init(); err != nil {
				return err
			}
			branch, err := ws.eng.CurrentBranch()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized repository on branch %s in %s\n", branch, ws.dir)
			return nil
		},
	}
}
