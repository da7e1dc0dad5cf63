package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>...",
		Short: "Stage file contents for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			for _, path := range args {
				content, err := os.ReadFile(filepath.Join(ws.dir, path))
				if err != nil {
					return fmt.Errorf("read %q: %w", path, err)
				}
				if err := ws.eng.AddFile(filepath.ToSlash(path), content); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "staged %d file(s)\n", len(args))
			return nil
		},
	}
}
